package admin

import (
	"github.com/go-chi/chi/v5"

	"github.com/sipico/preview-gate/internal/middleware"
)

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 64 << 10

// NewRouter creates the admin router, to be mounted at /admin.
func (h *Handler) NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	r.Post("/login", h.HandleLogin)
	r.Post("/logout", h.HandleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.RequireAdmin)

		r.Post("/loglevel", h.HandleSetLogLevel)

		r.Get("/grants", h.HandleListGrants)
		r.Post("/grants", h.HandleCreateGrant)
		r.Get("/grants/export.csv", h.HandleExportGrants)
		r.Delete("/grants/{token}", h.HandleDeleteGrant)
	})

	return r
}
