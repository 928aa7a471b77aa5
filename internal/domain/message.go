package domain

import (
	"fmt"
	"unicode/utf8"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
)

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

const (
	MinContentLength = 3
	MaxContentLength = 200
)

// Message is immutable after creation except for Status. Timestamp is the
// ordering key within a conversation; equal timestamps keep insertion order.
type Message struct {
	ID             string         `json:"id"`
	SenderID       string         `json:"sender_id"`
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	Type           MessageType    `json:"type"`
	Status         DeliveryStatus `json:"status"`
	Timestamp      float64        `json:"timestamp"`
}

func NewMessage(id, conversationID, senderID, content string, msgType MessageType, timestamp float64) (*Message, error) {
	if id == "" || conversationID == "" || senderID == "" {
		return nil, fmt.Errorf("%w: missing identifier", ErrInvalidInput)
	}

	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	if msgType == "" {
		msgType = MessageText
	}

	switch msgType {
	case MessageText, MessageImage, MessageVideo:
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrValidation, msgType)
	}

	return &Message{
		ID:             id,
		SenderID:       senderID,
		ConversationID: conversationID,
		Content:        content,
		Type:           msgType,
		Status:         StatusPending,
		Timestamp:      timestamp,
	}, nil
}

func ValidateContent(content string) error {
	// Bounds are in characters, not bytes: multibyte content counts by rune.
	n := utf8.RuneCountInString(content)
	if n < MinContentLength {
		return fmt.Errorf("%w: content must be at least %d characters", ErrValidation, MinContentLength)
	}
	if n > MaxContentLength {
		return fmt.Errorf("%w: content must be at most %d characters", ErrValidation, MaxContentLength)
	}
	return nil
}

func ValidateStatus(status DeliveryStatus) error {
	switch status {
	case StatusPending, StatusDelivered, StatusRead:
		return nil
	default:
		return fmt.Errorf("%w: unknown delivery status %q", ErrValidation, status)
	}
}
