package domain

type ConversationType string

const (
	ConversationGroup    ConversationType = "group"
	ConversationOneOnOne ConversationType = "one_on_one"
)

// Conversation is referenced, not owned, by this service: the core only
// consults membership for authorization and never mutates conversation state.
type Conversation struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatorID string           `json:"creator_id"`
	MemberIDs []string         `json:"member_ids"`
	CreatedAt float64          `json:"created_at"`
	Type      ConversationType `json:"type"`
}

// HasMember reports whether userID is the creator or in the member set.
func (c *Conversation) HasMember(userID string) bool {
	if c.CreatorID == userID {
		return true
	}
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ConversationResponse is the public projection of a conversation.
type ConversationResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Creator   UserResponse     `json:"creator"`
	Members   []UserResponse   `json:"members"`
	CreatedAt float64          `json:"created_at"`
	Type      ConversationType `json:"type"`
}

// MessageResponse is the wire-facing rendering of a message with the sender
// and conversation profiles resolved. Fixed schema, no runtime type probing.
type MessageResponse struct {
	ID           string               `json:"id"`
	Sender       UserResponse         `json:"sender"`
	Content      string               `json:"content"`
	Type         MessageType          `json:"type"`
	Status       DeliveryStatus       `json:"status"`
	Conversation ConversationResponse `json:"conversation"`
	Timestamp    float64              `json:"timestamp"`
}
