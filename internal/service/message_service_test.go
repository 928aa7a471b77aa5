package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/cache"
	"chatrelay/internal/domain"
	"chatrelay/internal/repository/memory"
)

type fixture struct {
	users    *memory.UserStore
	convs    *memory.ConversationStore
	msgs     *memory.MessageStore
	dir      *Directory
	svc      *MessageService
	clock    float64
	nextID   int
	senderID string
	convID   string
}

// newFixture wires the service against in-memory stores and a disabled cache
// (passthrough mode), with a deterministic clock and id sequence.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	f := &fixture{
		users:    memory.NewUserStore(),
		convs:    memory.NewConversationStore(),
		msgs:     memory.NewMessageStore(),
		senderID: "user-a",
		convID:   "conv-1",
	}
	f.dir = NewDirectory(f.users, f.convs, cache.New(nil, "test", log), 0, log)
	f.svc = NewMessageService(f.msgs, f.dir, log)
	f.svc.now = func() float64 {
		f.clock++
		return f.clock
	}
	f.svc.newID = func() string {
		f.nextID++
		return fmt.Sprintf("msg-%d", f.nextID)
	}

	require.NoError(t, f.users.Create(ctx, &domain.User{ID: "user-a", Name: "Alice", Username: "alice", Status: domain.UserOnline}))
	require.NoError(t, f.users.Create(ctx, &domain.User{ID: "user-b", Name: "Bob", Username: "bob", Status: domain.UserOnline}))
	require.NoError(t, f.convs.Create(ctx, &domain.Conversation{
		ID:        "conv-1",
		Name:      "general",
		CreatorID: "user-a",
		MemberIDs: []string{"user-a", "user-b"},
		CreatedAt: 1,
		Type:      domain.ConversationOneOnOne,
	}))
	return f
}

func TestCreateMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.CreateMessage(ctx, f.convID, f.senderID, "hello there", domain.MessageText)
	require.NoError(t, err)

	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, domain.StatusPending, msg.Status)
	assert.Equal(t, domain.MessageText, msg.Type)
	assert.Equal(t, 1.0, msg.Timestamp)

	stored, err := f.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello there", stored.Content)
}

func TestCreateMessage_ValidationRejectsBeforePersistence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		content string
	}{
		{"too short", "hi"},
		{"empty", ""},
		{"too long", strings.Repeat("x", 201)},
		// Bounds count characters: two CJK runes are six bytes but still short.
		{"too short multibyte", "日本"},
		{"too long multibyte", strings.Repeat("é", 201)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateMessage(ctx, f.convID, f.senderID, tc.content, domain.MessageText)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	// Nothing was persisted.
	msgs, err := f.svc.GetMessages(ctx, f.convID, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCreateMessage_AcceptsFullLengthMultibyteContent(t *testing.T) {
	f := newFixture(t)

	// 200 characters, 400 bytes: at the bound, not over it.
	msg, err := f.svc.CreateMessage(context.Background(), f.convID, f.senderID, strings.Repeat("é", 200), domain.MessageText)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, msg.Status)
}

func TestCreateMessage_DefaultsToText(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.CreateMessage(context.Background(), f.convID, f.senderID, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageText, msg.Type)
}

func TestCreateMessage_RejectsUnknownType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateMessage(context.Background(), f.convID, f.senderID, "hello", "carrier-pigeon")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetMessages_PaginationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Clock produces timestamps 10, 20, 30.
	f.svc.now = func() float64 {
		f.clock += 10
		return f.clock
	}
	for _, content := range []string{"first", "second", "third"} {
		_, err := f.svc.CreateMessage(ctx, f.convID, f.senderID, content, domain.MessageText)
		require.NoError(t, err)
	}

	page, err := f.svc.GetMessages(ctx, f.convID, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 30.0, page[0].Timestamp)
	assert.Equal(t, 20.0, page[1].Timestamp)

	before := page[1].Timestamp
	next, err := f.svc.GetMessages(ctx, f.convID, 2, &before)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, 10.0, next[0].Timestamp)
	assert.Equal(t, "first", next[0].Content)
}

func TestGetMessages_DefaultAndMaxLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < MaxPageSize+20; i++ {
		_, err := f.svc.CreateMessage(ctx, f.convID, f.senderID, "filler message", domain.MessageText)
		require.NoError(t, err)
	}

	page, err := f.svc.GetMessages(ctx, f.convID, 0, nil)
	require.NoError(t, err)
	assert.Len(t, page, DefaultPageSize)

	page, err = f.svc.GetMessages(ctx, f.convID, MaxPageSize+1000, nil)
	require.NoError(t, err)
	assert.Len(t, page, MaxPageSize)
}

func TestUpdateStatus_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateMessage(ctx, f.convID, f.senderID, "hello", domain.MessageText)
		require.NoError(t, err)
	}

	count, err := f.svc.UpdateStatus(ctx, f.convID, domain.StatusDelivered, nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = f.svc.UpdateStatus(ctx, f.convID, domain.StatusDelivered, nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), f.convID, "vanished", nil, nil, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRenderMessageResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.CreateMessage(ctx, f.convID, f.senderID, "hello", domain.MessageText)
	require.NoError(t, err)

	resp, err := f.svc.RenderMessageResponse(ctx, msg)
	require.NoError(t, err)

	assert.Equal(t, msg.ID, resp.ID)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, domain.StatusPending, resp.Status)
	assert.Equal(t, "alice", resp.Sender.Username)
	assert.Equal(t, "general", resp.Conversation.Name)
	assert.Len(t, resp.Conversation.Members, 2)
	assert.Equal(t, "alice", resp.Conversation.Creator.Username)
}

func TestRenderMessageResponse_MissingSenderIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg := &domain.Message{
		ID:             "m1",
		SenderID:       "ghost",
		ConversationID: f.convID,
		Content:        "boo",
		Type:           domain.MessageText,
		Status:         domain.StatusPending,
		Timestamp:      1,
	}

	_, err := f.svc.RenderMessageResponse(ctx, msg)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
