package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatrelay/internal/auth"
	"chatrelay/internal/observability"
	"chatrelay/internal/websocket"
)

func NewRouter(ws *websocket.Handler, msgs *MessageHandler, verifier *auth.Verifier, serviceName string) http.Handler {
	r := chi.NewRouter()
	r.Use(observability.MetricsMiddleware(serviceName))

	// The socket authenticates via a query-string token, not the bearer
	// header, so it sits outside the JWT middleware.
	r.Get("/ws/{conversationID}", ws.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(JWT(verifier))
		r.Get("/conversations/{conversationID}/messages", msgs.GetMessages)
		r.Post("/conversations/{conversationID}/messages/status", msgs.UpdateStatus)
		r.Get("/cache/stats", msgs.CacheStats)
	})

	return r
}
