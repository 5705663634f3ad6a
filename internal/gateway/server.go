package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	// Agent endpoints. Protected when auth is configured.
	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit))
		}
		r.Route("/api", func(r chi.Router) {
			r.Get("/examples", g.handleExamples())
			r.Get("/sessions", g.handleListSessions())
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", g.handleGetSession())
				r.Delete("/", g.handleDeleteSession())
				r.Post("/messages", g.handlePostMessage())
			})
			r.Get("/bots", g.handleListBots())
			r.Post("/bots/{name}", g.handleAskBot())
		})
		r.Get("/ws/sessions/{id}", g.handleWebSocket())
	})

	// Admin endpoints. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit))
			r.Get("/status", g.handleStatus())
			r.Get("/api/modules", g.handleGetAllModules())
		})
	}

	return r
}
