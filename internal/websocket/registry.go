package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatrelay/internal/observability"
)

// Registry tracks the live endpoint per (conversation, user). It is the
// exclusive owner of this state; everything here is process-local.
type Registry struct {
	mu            sync.RWMutex
	conversations map[string]map[string]*Session
	service       string
}

func NewRegistry(serviceName string) *Registry {
	return &Registry{
		conversations: make(map[string]map[string]*Session),
		service:       serviceName,
	}
}

// Add registers s as the live endpoint for its (conversation, user) pair.
// Last connect wins: an existing entry is replaced and stops receiving
// broadcasts immediately. The superseded session is returned, not closed —
// closing the transport is the caller's responsibility.
func (r *Registry) Add(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conversations[s.ConversationID] == nil {
		r.conversations[s.ConversationID] = make(map[string]*Session)
	}

	old := r.conversations[s.ConversationID][s.UserID]
	if old != nil {
		observability.GetLogger(context.Background()).Info("replacing existing connection",
			zap.String("conversation_id", s.ConversationID),
			zap.String("user_id", s.UserID),
			zap.String("old_session_id", old.ID),
			zap.String("new_session_id", s.ID),
		)
	}

	r.conversations[s.ConversationID][s.UserID] = s
	return old
}

// Remove drops the entry if present; a no-op otherwise, so it is safe to call
// on every exit path even when Add never ran. Guarded by session identity so a
// late remove from a replaced session cannot evict its replacement.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if users, ok := r.conversations[s.ConversationID]; ok {
		if current, ok := users[s.UserID]; ok && current.ID == s.ID {
			delete(users, s.UserID)
			if len(users) == 0 {
				delete(r.conversations, s.ConversationID)
			}
		}
	}
}

// Broadcast sends payload to every session currently registered for the
// conversation. The recipient set is snapshotted before any send, so
// interleaved connects and disconnects neither deadlock nor extend delivery
// beyond the set that was live when the broadcast began. A failed send removes
// the dead entry and never aborts delivery to the rest. Returns the number of
// recipients the payload was handed to.
func (r *Registry) Broadcast(conversationID string, payload []byte) int {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.conversations[conversationID]))
	for _, s := range r.conversations[conversationID] {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	observability.BroadcastsTotal.WithLabelValues(r.service).Inc()

	delivered := 0
	for _, s := range snapshot {
		if s.TrySend(payload) {
			delivered++
			continue
		}
		// Self-healing: the entry is dead, drop it.
		r.Remove(s)
		observability.BroadcastRecipientsDropped.WithLabelValues(r.service).Inc()
	}
	return delivered
}

// Sessions returns the live sessions for a conversation.
func (r *Registry) Sessions(conversationID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, s := range r.conversations[conversationID] {
		out = append(out, s)
	}
	return out
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, users := range r.conversations {
		for _, s := range users {
			s.Close()
		}
	}
}
