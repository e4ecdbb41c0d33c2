package query

import (
	"strconv"
	"strings"

	"github.com/example/title-ratings/services/catalog/internal/store"
)

// ParseParams builds a Request from string parameters named like the HTTP
// query string (q, kind, genre, category, min_rating, max_rating, flagged,
// sort, page, page_size). Unparseable numbers are reported as a
// ValidationError; range checks happen in Find.
func ParseParams(get func(key string) string) (Request, error) {
	verr := &ValidationError{}
	val := func(k string) string { return strings.TrimSpace(get(k)) }

	req := Request{
		FreeText: val("q"),
		Kind:     store.Kind(val("kind")),
		Category: val("category"),
		Sort:     Policy(val("sort")),
	}
	intParam := func(k string, dst *int) {
		if v := val(k); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				verr.add(k, "number", "must be an integer")
				return
			}
			*dst = n
		}
	}
	floatParam := func(k string, dst **float64) {
		if v := val(k); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				verr.add(k, "number", "must be a number")
				return
			}
			*dst = &f
		}
	}
	intParam("genre", &req.Genre)
	intParam("page", &req.Page)
	intParam("page_size", &req.PageSize)
	floatParam("min_rating", &req.MinRating)
	floatParam("max_rating", &req.MaxRating)
	if v := val("flagged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			verr.add("flagged", "boolean", "must be true or false")
		}
		req.FlaggedOnly = b
	}

	if len(verr.Fields) > 0 {
		return Request{}, verr
	}
	return req, nil
}
