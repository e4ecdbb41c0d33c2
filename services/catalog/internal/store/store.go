package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate external id")
)

// Kind is the closed set of content kinds.
type Kind string

const (
	KindMovie  Kind = "Movie"
	KindTVShow Kind = "TVShow"
	KindKids   Kind = "KidsContent"
)

var Kinds = []Kind{KindMovie, KindTVShow, KindKids}

func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// ParseKind accepts the canonical names case-insensitively plus the short
// forms the site has always used in links ("tv", "kids").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies":
		return KindMovie, nil
	case "tvshow", "tv", "show", "shows":
		return KindTVShow, nil
	case "kidscontent", "kids":
		return KindKids, nil
	}
	return "", fmt.Errorf("unknown content kind %q", s)
}

// ContentRecord is one title: catalog metadata copied from the external
// catalog plus rating state owned by the rating-submission workflow.
type ContentRecord struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Kind        Kind       `json:"kind"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	PosterRef   string     `json:"poster_ref,omitempty"`
	Description string     `json:"description,omitempty"`
	Popularity  float64    `json:"popularity"`
	GenreTags   []int      `json:"genre_tags"`

	// Rating state. Never written by catalog synchronization.
	Ratings           []float64      `json:"ratings"`
	AverageRating     *float64       `json:"average_rating,omitempty"`
	NegativeFlagCount int            `json:"negative_flag_count"`
	CategoryTally     map[string]int `json:"category_tally"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rated reports whether at least one score was submitted.
func (r ContentRecord) Rated() bool { return len(r.Ratings) > 0 }

// Score is the average rating used for ranking and bounds filtering. It
// prefers the stored average and falls back to the mean of Ratings.
func (r ContentRecord) Score() float64 {
	if r.AverageRating != nil {
		return *r.AverageRating
	}
	if len(r.Ratings) == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.Ratings {
		sum += v
	}
	return sum / float64(len(r.Ratings))
}

// Clone returns a deep copy so callers cannot alias store-owned slices/maps.
func (r ContentRecord) Clone() ContentRecord {
	out := r
	if r.ReleaseDate != nil {
		d := *r.ReleaseDate
		out.ReleaseDate = &d
	}
	if r.AverageRating != nil {
		a := *r.AverageRating
		out.AverageRating = &a
	}
	out.GenreTags = slices.Clone(r.GenreTags)
	out.Ratings = slices.Clone(r.Ratings)
	out.CategoryTally = maps.Clone(r.CategoryTally)
	return out
}

// NewRecord carries the catalog metadata for a record being created.
type NewRecord struct {
	ExternalID  string
	Title       string
	Kind        Kind
	ReleaseDate *time.Time
	PosterRef   string
	Description string
	Popularity  float64
	GenreTags   []int
}

// CatalogUpdate is the only mutation synchronization may apply to an
// existing record: GenreTags are unioned in, Popularity (when set) replaces
// the stored value.
type CatalogUpdate struct {
	GenreTags  []int
	Popularity *float64
}

// Filter is the local predicate over stored records. Zero fields match all.
type Filter struct {
	Kind        Kind
	FreeText    string
	Genre       int
	Category    string
	MinRating   *float64
	MaxRating   *float64
	FlaggedOnly bool
}

// Matches evaluates the full filter in memory.
func (f Filter) Matches(r ContentRecord) bool {
	if q := strings.TrimSpace(f.FreeText); q != "" && !strings.Contains(strings.ToLower(r.Title), strings.ToLower(q)) {
		return false
	}
	return f.MatchesAttributes(r)
}

// MatchesAttributes evaluates every predicate except the free-text title
// match.
func (f Filter) MatchesAttributes(r ContentRecord) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Genre > 0 && !slices.Contains(r.GenreTags, f.Genre) {
		return false
	}
	if c := strings.TrimSpace(f.Category); c != "" && r.CategoryTally[c] <= 0 {
		return false
	}
	if f.MinRating != nil || f.MaxRating != nil {
		if !r.Rated() {
			return false
		}
		s := r.Score()
		if f.MinRating != nil && s < *f.MinRating {
			return false
		}
		if f.MaxRating != nil && s > *f.MaxRating {
			return false
		}
	}
	if f.FlaggedOnly && r.NegativeFlagCount <= 0 {
		return false
	}
	return true
}

// RecordStore is the persistent table of ContentRecords keyed by external id.
// Implementations enforce external id uniqueness themselves: Insert returns
// ErrDuplicate when another writer created the same external id first.
type RecordStore interface {
	GetByID(ctx context.Context, id string) (ContentRecord, error)
	GetByExternalID(ctx context.Context, externalID string) (ContentRecord, error)
	Insert(ctx context.Context, rec NewRecord) (ContentRecord, error)
	MergeCatalog(ctx context.Context, id string, u CatalogUpdate) (ContentRecord, error)
	Find(ctx context.Context, f Filter) ([]ContentRecord, error)
	Ping(ctx context.Context) error
}

// NormalizeTags returns the positive tags sorted and de-duplicated.
func NormalizeTags(tags []int) []int {
	out := make([]int, 0, len(tags))
	for _, t := range tags {
		if t > 0 {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// UnionTags merges add into existing and reports whether anything new was
// added. existing is never shrunk.
func UnionTags(existing, add []int) ([]int, bool) {
	merged := NormalizeTags(append(slices.Clone(existing), add...))
	return merged, !slices.Equal(merged, NormalizeTags(existing))
}
