package repository

import (
	"context"

	"chatrelay/internal/domain"
)

// StatusUpdate describes a bulk delivery-status change. Every non-zero filter
// must hold simultaneously (logical AND). A message already at the target
// status is not counted as changed.
type StatusUpdate struct {
	Status     domain.DeliveryStatus
	MessageIDs []string // nil means any message
	Before     *float64 // exclusive timestamp bound, nil means no bound
	SenderID   string   // empty means any sender
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, messageID string) (*domain.Message, error)

	// GetByConversationPaginated returns up to limit messages ordered by
	// timestamp descending, stable for equal timestamps. A non-nil before
	// restricts results to timestamp < *before. A non-positive limit yields
	// an empty page; callers normalize defaults before reaching the store.
	GetByConversationPaginated(ctx context.Context, conversationID string, limit int, before *float64) ([]*domain.Message, error)

	// UpdateStatus applies upd to the conversation's messages and returns the
	// number of messages whose status actually changed.
	UpdateStatus(ctx context.Context, conversationID string, upd StatusUpdate) (int, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetAll(ctx context.Context) ([]*domain.User, error)
	UpdateStatus(ctx context.Context, userID string, status domain.UserStatus) (*domain.User, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	GetForUser(ctx context.Context, userID string) ([]*domain.Conversation, error)

	// HasMember reports whether userID is the creator or a member of the
	// conversation. Returns domain.ErrNotFound if the conversation is absent.
	HasMember(ctx context.Context, conversationID, userID string) (bool, error)
}
