package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/title-ratings/internal/platform/auth"
)

// Mount registers the catalog routes. Admin routes are only mounted when a
// verifier is configured.
func Mount(r chi.Router, c Catalog, verifier *auth.JWTVerifier) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/home", Home(c))
		r.Get("/titles", ListTitles(c))
		r.Get("/titles/{id}", GetTitle(c))
		r.Get("/titles/external/{kind}/{external_id}", EnsureTitle(c))

		if verifier != nil {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireUser(*verifier), auth.RequireRole(auth.RoleAdmin))
				r.Method(http.MethodPost, "/titles/ensure/{kind}/{external_id}", EnsureTitle(c))
			})
		}
	})
}
