/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Lets an operator dashboard poll the status endpoint

ROUTES:
  /                   Status
  /reload             Manual reload (GET for browsers, POST for scripts)
  /api/messages       JSON chat transport
  /webhooks/twilio    TwiML chat transport

SEE ALSO:
  - handlers.go: Handler implementations
  - cli/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", h.Status)
	r.Get("/reload", h.Reload)
	r.Post("/reload", h.Reload)

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", h.Message)
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/twilio", h.TwilioWebhook)
	})

	return r
}
