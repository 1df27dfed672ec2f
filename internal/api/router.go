package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/docgate/internal/site"
)

// buildRouter creates the HTTP router with all routes and middleware.
//
// Login, health, and the WebSocket endpoint sit outside the gate; the
// hash route, the document API, and static files sit behind it.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Login and renewal
	r.Post(s.routes.LoginPage, s.handleLogin)
	r.Post(s.routes.APIRoute(s.routes.Authentication), s.handleLogin)

	r.Get(s.routes.APIRoute("/health"), s.handleHealth)

	// WebSocket handshakes are authorised by the upgrade guard, not the gate
	if s.wsCfg.Path != "" {
		r.Get(s.wsCfg.Path, s.guard.ServeHTTP)
	}

	// Gated routes
	r.Group(func(r chi.Router) {
		r.Use(s.logoutMiddleware)
		r.Use(s.gateMiddleware)

		r.Post(s.routes.APIRoute(s.routes.Hash), s.handleHash)

		r.Route(s.routes.APIRoute("/collections"), func(r chi.Router) {
			r.Get("/", s.handleListCollections)
			r.Post("/", s.handleCreateCollection)
			r.Delete("/{collection}", s.handleDeleteCollection)
		})

		r.Get(s.routes.APIRoute("/audit"), s.handleListAuditLogs)

		r.Route("/db/{collection}", func(r chi.Router) {
			r.Get("/", s.handleFindDocuments)
			r.Post("/", s.handleInsertDocument)
			r.Patch("/", s.handleUpdateDocuments)
			r.Delete("/", s.handleRemoveDocuments)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Put("/", s.handleReplaceDocument)
				r.Patch("/", s.handlePatchDocument)
				r.Delete("/", s.handleRemoveDocument)
			})
		})

		pages := site.Handler(s.cfg.StaticDir)
		r.Get("/*", pages.ServeHTTP)
		r.Head("/*", pages.ServeHTTP)
	})

	return r
}
