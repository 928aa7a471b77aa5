package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/cache"
	"chatrelay/internal/domain"
	"chatrelay/internal/repository/memory"
)

func newCachedDirectory(t *testing.T) (*Directory, *memory.UserStore, *memory.ConversationStore, *cache.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.New(client, "test", zap.NewNop())

	users := memory.NewUserStore()
	convs := memory.NewConversationStore()
	d := NewDirectory(users, convs, c, time.Minute, zap.NewNop())
	return d, users, convs, c
}

func seedDirectory(t *testing.T, users *memory.UserStore, convs *memory.ConversationStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &domain.User{ID: "u1", Name: "Alice", Username: "alice", Status: domain.UserOnline}))
	require.NoError(t, users.Create(ctx, &domain.User{ID: "u2", Name: "Bob", Username: "bob", Status: domain.UserOnline}))
	require.NoError(t, convs.Create(ctx, &domain.Conversation{
		ID:        "c1",
		Name:      "general",
		CreatorID: "u1",
		MemberIDs: []string{"u1", "u2"},
		CreatedAt: 1,
		Type:      domain.ConversationOneOnOne,
	}))
}

func TestDirectory_ReadThrough(t *testing.T) {
	d, users, convs, c := newCachedDirectory(t)
	seedDirectory(t, users, convs)
	ctx := context.Background()

	// First read misses and populates; second read hits.
	u, err := d.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	before := c.Stats()
	u, err = d.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, before.Hits+1, c.Stats().Hits)
}

func TestDirectory_UpdateInvalidatesDerivedKeys(t *testing.T) {
	d, users, convs, _ := newCachedDirectory(t)
	seedDirectory(t, users, convs)
	ctx := context.Background()

	// Warm every derived key for u1.
	_, err := d.GetUser(ctx, "u1")
	require.NoError(t, err)
	_, err = d.GetUserResponse(ctx, "u1")
	require.NoError(t, err)
	_, err = d.GetAllUsers(ctx)
	require.NoError(t, err)
	_, err = d.GetConversationResponse(ctx, "c1")
	require.NoError(t, err)

	_, err = d.UpdateUserStatus(ctx, "u1", domain.UserOffline)
	require.NoError(t, err)

	// Every read now reflects the update instead of the stale cache entry.
	u, err := d.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserOffline, u.Status)

	resp, err := d.GetUserResponse(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserOffline, resp.Status)

	all, err := d.GetAllUsers(ctx)
	require.NoError(t, err)
	for _, user := range all {
		if user.ID == "u1" {
			assert.Equal(t, domain.UserOffline, user.Status)
		}
	}

	convResp, err := d.GetConversationResponse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserOffline, convResp.Creator.Status)
}

func TestDirectory_CorrectWithCacheDisabled(t *testing.T) {
	users := memory.NewUserStore()
	convs := memory.NewConversationStore()
	d := NewDirectory(users, convs, cache.New(nil, "test", zap.NewNop()), 0, zap.NewNop())
	seedDirectory(t, users, convs)
	ctx := context.Background()

	u, err := d.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = d.UpdateUserStatus(ctx, "u1", domain.UserOffline)
	require.NoError(t, err)

	u, err = d.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserOffline, u.Status)

	resp, err := d.GetConversationResponse(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, resp.Members, 2)
}

func TestDirectory_HasAccess(t *testing.T) {
	d, users, convs, _ := newCachedDirectory(t)
	seedDirectory(t, users, convs)
	ctx := context.Background()

	ok, err := d.HasAccess(ctx, "u1", "c1") // creator
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.HasAccess(ctx, "u2", "c1") // member
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.HasAccess(ctx, "outsider", "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.HasAccess(ctx, "u1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDirectory_GetUserNotFound(t *testing.T) {
	d, users, convs, _ := newCachedDirectory(t)
	seedDirectory(t, users, convs)

	_, err := d.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
