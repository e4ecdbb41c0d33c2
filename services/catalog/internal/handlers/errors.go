package handlers

import (
	"errors"
	"net/http"

	"github.com/example/title-ratings/internal/platform/api"
	"github.com/example/title-ratings/services/catalog/internal/query"
	"github.com/example/title-ratings/services/catalog/internal/store"
	"github.com/example/title-ratings/services/catalog/internal/tmdb"
)

var (
	errTitleNotFound   = api.NewError(http.StatusNotFound, "NOT_FOUND", "title not found")
	errMissingID       = api.NewError(http.StatusBadRequest, "MISSING_ID", "id is required")
	errUpstreamLimited = api.NewError(http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMITED", "external catalog is rate limiting requests")
	errUpstreamDown    = api.NewError(http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "external catalog unavailable")
)

func validationError(verr *query.ValidationError) *api.Error {
	return api.NewError(http.StatusBadRequest, "VALIDATION_ERROR", verr.Error()).
		WithDetails(map[string]any{"fields": verr.Fields})
}

// toAPIError maps domain errors onto the HTTP envelope. Unknown errors pass
// through unchanged and render as 500.
func toAPIError(err error) error {
	var verr *query.ValidationError
	switch {
	case errors.As(err, &verr):
		return validationError(verr)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, tmdb.ErrNotFound):
		return errTitleNotFound
	case errors.Is(err, tmdb.ErrRateLimited):
		return errUpstreamLimited
	case errors.Is(err, tmdb.ErrUnavailable), errors.Is(err, tmdb.ErrMalformed):
		return errUpstreamDown
	}
	return err
}

func writeError(w http.ResponseWriter, requestID string, err error) {
	api.Fail(w, requestID, toAPIError(err))
}
