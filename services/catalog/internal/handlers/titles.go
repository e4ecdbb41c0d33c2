package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/title-ratings/internal/platform/api"
	"github.com/example/title-ratings/internal/platform/httpserver"
	"github.com/example/title-ratings/services/catalog/internal/query"
	"github.com/example/title-ratings/services/catalog/internal/store"
)

// Catalog is the read path the handlers serve.
type Catalog interface {
	Find(ctx context.Context, req query.Request) (query.Page, error)
	Ensure(ctx context.Context, kind store.Kind, externalID string) (store.ContentRecord, error)
	Get(ctx context.Context, id string) (store.ContentRecord, error)
	Home(ctx context.Context, size int) query.HomeSections
}

// ListTitles handles GET /v1/titles. mode=append returns the load-more shape.
func ListTitles(c Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		req, err := query.ParseParams(r.URL.Query().Get)
		if err != nil {
			writeError(w, rid, err)
			return
		}
		mode := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode")))
		if mode != "" && mode != "page" && mode != "append" {
			writeError(w, rid, &query.ValidationError{Fields: []query.FieldError{
				{Field: "mode", Tag: "oneof", Message: "must be one of: page, append"},
			}})
			return
		}

		page, err := c.Find(r.Context(), req)
		if err != nil {
			writeError(w, rid, err)
			return
		}
		if mode == "append" {
			api.WriteJSON(w, http.StatusOK, page.Append())
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// GetTitle handles GET /v1/titles/{id}
func GetTitle(c Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if id == "" {
			api.Fail(w, rid, errMissingID)
			return
		}
		rec, err := c.Get(r.Context(), id)
		if err != nil {
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

// EnsureTitle handles GET /v1/titles/external/{kind}/{external_id} and
// POST /v1/titles/ensure/{kind}/{external_id}.
func EnsureTitle(c Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		rawKind := chi.URLParam(r, "kind")
		kind, err := store.ParseKind(rawKind)
		if err != nil {
			kind = store.Kind(rawKind)
		}
		rec, err := c.Ensure(r.Context(), kind, chi.URLParam(r, "external_id"))
		if err != nil {
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

// Home handles GET /v1/home?size=N
func Home(c Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		size := 5
		if v := strings.TrimSpace(r.URL.Query().Get("size")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				size = min(n, 50)
			}
		}
		api.WriteJSON(w, http.StatusOK, c.Home(r.Context(), size))
	}
}
