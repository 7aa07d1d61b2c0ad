// internal/api/routes.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes configura e retorna o roteador Chi
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middlewares globais
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // Tempo de cache da preflight
	}))

	r.Get("/healthz", h.handleHealth)
	r.Get("/ws", h.handleWebSocket)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	// Rotas da API V1
	r.Route("/v1", func(r chi.Router) {
		// Endpoints públicos (sem autenticação)
		r.Post("/auth/challenge", h.handleIssueChallenge)
		r.Post("/auth/verify", h.handleVerify)

		// Endpoints protegidos (requerem autenticação)
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/auth", h.handleMe)
			r.Get("/auth/user-exists", h.handleUserExists)
			r.Post("/auth/verify-proof", h.handleVerifyProof)

			r.Put("/channel/direct", h.handleCreateDirect)
			r.Put("/channel/group", h.handleCreateGroup)
			r.Put("/channel/import", h.handleImport)
			r.Get("/channel/list", h.handleListChannels)
			r.Get("/channel/{id}", h.handleGetChannel)
			r.Put("/channel/{id}/key", h.handleSetKey)
		})
	})

	return r
}
