package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/repository"
)

const (
	DefaultPageSize = 50

	// MaxPageSize bounds history queries; the previous behavior accepted any
	// limit, which let one request drag an entire conversation into memory.
	MaxPageSize = 200
)

type MessageService struct {
	repo      repository.MessageRepository
	directory *Directory
	log       *zap.Logger

	now   func() float64
	newID func() string
}

func NewMessageService(repo repository.MessageRepository, directory *Directory, log *zap.Logger) *MessageService {
	return &MessageService{
		repo:      repo,
		directory: directory,
		log:       log,
		now:       wallClock,
		newID:     uuid.NewString,
	}
}

// wallClock returns the current time as fractional seconds since the epoch,
// the sole ordering key for messages.
func wallClock() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// CreateMessage validates, persists and returns a new pending message.
// Validation failures reject before any persistence attempt.
func (s *MessageService) CreateMessage(ctx context.Context, conversationID, senderID, content string, msgType domain.MessageType) (*domain.Message, error) {
	msg, err := domain.NewMessage(s.newID(), conversationID, senderID, content, msgType, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	s.log.Info("message created",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", conversationID),
		zap.String("sender_id", senderID),
	)
	return msg, nil
}

// GetMessages returns up to limit messages most-recent-first. A non-nil before
// is an exclusive pagination cursor: only messages with timestamp < *before
// are eligible, so a page boundary never re-returns the boundary message.
func (s *MessageService) GetMessages(ctx context.Context, conversationID string, limit int, before *float64) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return s.repo.GetByConversationPaginated(ctx, conversationID, limit, before)
}

// UpdateStatus bulk-updates delivery status. All supplied filters apply
// simultaneously; the returned count includes only messages whose status
// actually changed, so repeating the same update yields zero.
func (s *MessageService) UpdateStatus(ctx context.Context, conversationID string, status domain.DeliveryStatus, messageIDs []string, before *float64, senderID string) (int, error) {
	if err := domain.ValidateStatus(status); err != nil {
		return 0, err
	}

	count, err := s.repo.UpdateStatus(ctx, conversationID, repository.StatusUpdate{
		Status:     status,
		MessageIDs: messageIDs,
		Before:     before,
		SenderID:   senderID,
	})
	if err != nil {
		return 0, fmt.Errorf("update status: %w", err)
	}

	s.log.Info("message status updated",
		zap.String("conversation_id", conversationID),
		zap.String("status", string(status)),
		zap.Int("updated", count),
	)
	return count, nil
}

// RenderMessageResponse assembles the wire-facing view of a message with the
// sender's and conversation's public profiles resolved through the directory.
func (s *MessageService) RenderMessageResponse(ctx context.Context, msg *domain.Message) (*domain.MessageResponse, error) {
	sender, err := s.directory.GetUserResponse(ctx, msg.SenderID)
	if err != nil {
		return nil, fmt.Errorf("resolve sender %s: %w", msg.SenderID, err)
	}

	conv, err := s.directory.GetConversationResponse(ctx, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation %s: %w", msg.ConversationID, err)
	}

	return &domain.MessageResponse{
		ID:           msg.ID,
		Sender:       *sender,
		Content:      msg.Content,
		Type:         msg.Type,
		Status:       msg.Status,
		Conversation: *conv,
		Timestamp:    msg.Timestamp,
	}, nil
}
