package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	if g.config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	// Public.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/chat", g.handleChat())
	r.Get("/ws/chat", g.handleChatSocket())
	r.Get("/api/knowledge/search", g.handleKnowledgeSearch())
	r.Get("/api/knowledge/stats", g.handleKnowledgeStats())

	// Webhooks: own HMAC auth per source.
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	// Admin endpoints: auth required. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
			r.Route("/api/sessions", func(r chi.Router) {
				r.Get("/escalated", g.handleListEscalated())
				r.Get("/stats", g.handleSessionStats())
				r.Get("/{id}", g.handleGetSession())
				r.Post("/{id}/escalate", g.handleEscalate())
				r.Post("/{id}/assign", g.handleAssign())
			})
			r.Post("/api/knowledge/refresh", g.handleKnowledgeRefresh())
			r.Get("/api/jobs", g.handleListJobs())
			r.Post("/api/jobs/{id}/run", g.handleRunJob())
			r.Get("/api/audit", g.handleAuditTrail())
			r.Route("/api/cache", func(r chi.Router) {
				r.Get("/stats", g.handleCacheStats())
				r.Delete("/users/{id}", g.handleInvalidateUser())
				r.Delete("/{name}", g.handleClearCache())
			})
		})
	}

	return r
}
