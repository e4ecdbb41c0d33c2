package query

import (
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseParams(t *testing.T) {
	v := url.Values{}
	v.Set("q", " Foo ")
	v.Set("kind", "TVShow")
	v.Set("genre", "18")
	v.Set("min_rating", "6.5")
	v.Set("flagged", "true")
	v.Set("sort", "byRecency")
	v.Set("page", "2")
	v.Set("page_size", "15")

	got, err := ParseParams(v.Get)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Request{FreeText: "Foo", Kind: "TVShow", Genre: 18, MinRating: ptr(6.5), FlaggedOnly: true, Sort: ByRecency, Page: 2, PageSize: 15}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request (-want +got):\n%s", diff)
	}
}

func TestParseParams_RejectsGarbage(t *testing.T) {
	v := url.Values{}
	v.Set("page", "two")
	v.Set("max_rating", "high")
	v.Set("flagged", "maybe")

	_, err := ParseParams(v.Get)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %+v", verr.Fields)
	}
}
