package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/domain"
	"chatrelay/internal/observability"
	"chatrelay/internal/service"
)

type Handler struct {
	registry  *Registry
	messages  *service.MessageService
	directory *service.Directory
	verifier  *auth.Verifier
	service   string
}

func NewHandler(registry *Registry, messages *service.MessageService, directory *service.Directory, verifier *auth.Verifier, serviceName string) *Handler {
	return &Handler{
		registry:  registry,
		messages:  messages,
		directory: directory,
		verifier:  verifier,
		service:   serviceName,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type inboundFrame struct {
	Content string             `json:"content"`
	Type    domain.MessageType `json:"type"`
}

type errorFrame struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeHTTP upgrades the connection and registers it under
// (conversation, user). Authorization is checked before registration, so an
// auth failure never leaves an entry behind.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	token := r.URL.Query().Get("token")

	log := observability.GetLogger(r.Context())

	userID, err := h.verifier.UserID(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ok, err := h.directory.HasAccess(r.Context(), userID, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
		} else {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		}
		return
	}
	if !ok {
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("upgrade error", zap.Error(err))
		return
	}

	session := NewSession(uuid.NewString(), conversationID, userID, conn)

	// Last connect wins. The superseded session stops receiving broadcasts the
	// moment Add returns; closing its transport is on us, not the registry.
	if old := h.registry.Add(session); old != nil {
		old.CloseWithReason(websocket.ClosePolicyViolation, "session replaced")
	}

	session.Start()
	observability.WebSocketConnectionsActive.WithLabelValues(h.service).Inc()
	log.Info("connected",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
	)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.readLoop(session)
}

// readLoop consumes inbound frames until the transport closes. De-registration
// is deferred so every exit path, error paths included, cleans up.
func (h *Handler) readLoop(s *Session) {
	ctx := context.Background()
	log := observability.GetLogger(ctx)

	defer func() {
		h.registry.Remove(s)
		s.Close()
		observability.WebSocketConnectionsActive.WithLabelValues(h.service).Dec()
		log.Info("disconnected",
			zap.String("conversation_id", s.ConversationID),
			zap.String("user_id", s.UserID),
		)
	}()

	for {
		_, data, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read loop error",
					zap.String("user_id", s.UserID),
					zap.Error(err),
				)
			}
			return
		}

		h.handleFrame(ctx, s, data)
	}
}

// handleFrame processes one inbound message: authorize, persist, render,
// broadcast. Per-frame failures answer a structured error frame on the same
// socket and keep the connection open; they never affect other connections.
func (h *Handler) handleFrame(ctx context.Context, s *Session, data []byte) {
	log := observability.GetLogger(ctx)

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(s, "invalid_request", "malformed message frame")
		return
	}

	// Re-checked per message: membership can change while the socket is open.
	ok, err := h.directory.HasAccess(ctx, s.UserID, s.ConversationID)
	if err != nil {
		log.Error("authorization check failed",
			zap.String("conversation_id", s.ConversationID),
			zap.Error(err),
		)
		h.sendError(s, "internal_error", "could not verify conversation access")
		return
	}
	if !ok {
		log.Info("unauthorized send attempt",
			zap.String("conversation_id", s.ConversationID),
			zap.String("user_id", s.UserID),
		)
		h.sendError(s, "forbidden", "access to conversation denied")
		return
	}

	msg, err := h.messages.CreateMessage(ctx, s.ConversationID, s.UserID, frame.Content, frame.Type)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInvalidInput) {
			h.sendError(s, "invalid_request", err.Error())
			return
		}
		log.Error("message creation failed", zap.Error(err))
		h.sendError(s, "internal_error", "could not store message")
		return
	}

	resp, err := h.messages.RenderMessageResponse(ctx, msg)
	if err != nil {
		// The message is persisted; only this delivery is dropped.
		log.Error("message rendering failed",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		h.sendError(s, "internal_error", "could not render message")
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		log.Error("message encoding failed", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}

	h.registry.Broadcast(s.ConversationID, payload)
}

func (h *Handler) sendError(s *Session, code, message string) {
	payload, err := json.Marshal(errorFrame{Error: errorBody{Code: code, Message: message}})
	if err != nil {
		return
	}
	s.TrySend(payload)
}
