// Package api exposes the approval panel over HTTP: the public auto-approve
// and tier lookup endpoints, operator sign-in, and the authenticated history
// dashboard.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vippanel/internal/auth"
	"vippanel/internal/ledger"
	"vippanel/internal/settle"
)

type Server struct {
	store     ledger.Store
	settler   *settle.Service
	tokens    *auth.TokenService
	directory auth.Directory
	logger    *slog.Logger
}

func NewServer(store ledger.Store, settler *settle.Service, tokens *auth.TokenService, directory auth.Directory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     store,
		settler:   settler,
		tokens:    tokens,
		directory: directory,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.With(s.requireAuth).Get("/verify", s.handleVerify)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/auto-approve", s.handleAutoApprove)
			r.Get("/vip-info", s.handleVIPInfo)
			r.Get("/vip-info/{level}", s.handleVIPInfoLevel)

			r.Route("/management", func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/history", s.handleHistoryList)
				r.Get("/history/export", s.handleHistoryExport)
				r.Get("/history/{id}", s.handleHistoryDetail)
				r.With(s.requireSuperAdmin).Delete("/history/{id}", s.handleHistoryDelete)
				r.Get("/stats", s.handleStats)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "ok",
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"service": "vippanel",
		"endpoints": map[string]string{
			"health":       "GET /health",
			"auto_approve": "POST /api/admin/auto-approve",
			"vip_info":     "GET /api/admin/vip-info[/{level}]",
			"login":        "POST /api/auth/login",
			"history":      "GET /api/admin/management/history",
			"stats":        "GET /api/admin/management/stats",
		},
	})
}
