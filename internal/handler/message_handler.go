package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/cache"
	"chatrelay/internal/domain"
	"chatrelay/internal/observability"
	"chatrelay/internal/service"
)

type MessageHandler struct {
	messages  *service.MessageService
	directory *service.Directory
	cache     *cache.Cache
}

func NewMessageHandler(messages *service.MessageService, directory *service.Directory, c *cache.Cache) *MessageHandler {
	return &MessageHandler{messages: messages, directory: directory, cache: c}
}

// GetMessages serves paginated history, most-recent-first. The before cursor
// is exclusive. Non-members get 403, never an empty page.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.GetLogger(ctx)
	conversationID := chi.URLParam(r, "conversationID")
	userID := auth.UserID(ctx)

	ok, err := h.directory.HasAccess(ctx, userID, conversationID)
	if err != nil {
		domainError(w, err)
		return
	}
	if !ok {
		log.Info("unauthorized history access",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", userID),
		)
		domainError(w, domain.ErrForbidden)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
	}

	var before *float64
	if v := r.URL.Query().Get("before"); v != "" {
		ts, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "before must be a timestamp")
			return
		}
		before = &ts
	}

	msgs, err := h.messages.GetMessages(ctx, conversationID, limit, before)
	if err != nil {
		log.Error("history query failed", zap.String("conversation_id", conversationID), zap.Error(err))
		domainError(w, err)
		return
	}

	responses := make([]*domain.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp, err := h.messages.RenderMessageResponse(ctx, m)
		if err != nil {
			// Drop the one unrenderable message, keep the page.
			log.Error("message rendering failed", zap.String("message_id", m.ID), zap.Error(err))
			continue
		}
		responses = append(responses, resp)
	}

	writeJSON(w, http.StatusOK, responses)
}

type updateStatusRequest struct {
	Status     domain.DeliveryStatus `json:"status"`
	MessageIDs []string              `json:"message_ids,omitempty"`
	Before     *float64              `json:"before,omitempty"`
	SenderID   string                `json:"sender_id,omitempty"`
}

// UpdateStatus bulk-updates delivery status for a conversation and returns the
// count of messages actually changed.
func (h *MessageHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "conversationID")
	userID := auth.UserID(ctx)

	ok, err := h.directory.HasAccess(ctx, userID, conversationID)
	if err != nil {
		domainError(w, err)
		return
	}
	if !ok {
		domainError(w, domain.ErrForbidden)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	count, err := h.messages.UpdateStatus(ctx, conversationID, req.Status, req.MessageIDs, req.Before, req.SenderID)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": count})
}

// CacheStats exposes the cache's cumulative hit/miss counters and connectivity
// flag for operational dashboards.
func (h *MessageHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}
