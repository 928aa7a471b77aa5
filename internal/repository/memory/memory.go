// Package memory holds in-process repository implementations. Each store is
// serialized by a single mutex; the hard concurrency lives in the connection
// registry, not here.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"chatrelay/internal/domain"
	"chatrelay/internal/repository"
)

type MessageStore struct {
	mu       sync.Mutex
	messages map[string][]*domain.Message // conversationID -> insertion order
}

func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[string][]*domain.Message)}
}

func (s *MessageStore) Create(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &cp)
	return nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				cp := *m
				return &cp, nil
			}
		}
	}
	return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
}

func (s *MessageStore) GetByConversationPaginated(ctx context.Context, conversationID string, limit int, before *float64) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]

	// Stable sort over the insertion-ordered slice keeps insertion order for
	// equal timestamps.
	sorted := make([]*domain.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})

	out := make([]*domain.Message, 0, max(limit, 0))
	for _, m := range sorted {
		if len(out) >= limit {
			break
		}
		if before != nil && m.Timestamp >= *before {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MessageStore) UpdateStatus(ctx context.Context, conversationID string, upd repository.StatusUpdate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idSet map[string]struct{}
	if upd.MessageIDs != nil {
		idSet = make(map[string]struct{}, len(upd.MessageIDs))
		for _, id := range upd.MessageIDs {
			idSet[id] = struct{}{}
		}
	}

	updated := 0
	for _, m := range s.messages[conversationID] {
		if idSet != nil {
			if _, ok := idSet[m.ID]; !ok {
				continue
			}
		}
		if upd.Before != nil && m.Timestamp >= *upd.Before {
			continue
		}
		if upd.SenderID != "" && m.SenderID != upd.SenderID {
			continue
		}
		if m.Status != upd.Status {
			m.Status = upd.Status
			updated++
		}
	}
	return updated, nil
}

type UserStore struct {
	mu             sync.Mutex
	users          map[string]*domain.User
	usernameToUser map[string]*domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:          make(map[string]*domain.User),
		usernameToUser: make(map[string]*domain.User),
	}
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usernameToUser[user.Username]; ok {
		return fmt.Errorf("username %s taken: %w", user.Username, domain.ErrValidation)
	}
	cp := *user
	s.users[user.ID] = &cp
	s.usernameToUser[user.Username] = &cp
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usernameToUser[username]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) GetAll(ctx context.Context) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *UserStore) UpdateStatus(ctx context.Context, userID string, status domain.UserStatus) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	u.Status = status
	cp := *u
	return &cp, nil
}

type ConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{conversations: make(map[string]*domain.Conversation)}
}

func (s *ConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *conv
	cp.MemberIDs = append([]string(nil), conv.MemberIDs...)
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *ConversationStore) GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	cp := *c
	cp.MemberIDs = append([]string(nil), c.MemberIDs...)
	return &cp, nil
}

func (s *ConversationStore) GetForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Conversation
	for _, c := range s.conversations {
		if c.HasMember(userID) {
			cp := *c
			cp.MemberIDs = append([]string(nil), c.MemberIDs...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *ConversationStore) HasMember(ctx context.Context, conversationID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return false, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	return c.HasMember(userID), nil
}
