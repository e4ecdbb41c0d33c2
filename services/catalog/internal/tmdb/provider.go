package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/title-ratings/services/catalog/internal/store"
)

var (
	ErrUnavailable = errors.New("external catalog unavailable")
	ErrRateLimited = errors.New("external catalog rate limited")
	ErrNotFound    = errors.New("external catalog item not found")
	ErrMalformed   = errors.New("external catalog response malformed")
)

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}

// Item is one raw catalog entry, already mapped to local field names.
type Item struct {
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Kind        store.Kind `json:"kind"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	PosterRef   string     `json:"poster_ref,omitempty"`
	Description string     `json:"description,omitempty"`
	Popularity  *float64   `json:"popularity,omitempty"`
	GenreTags   []int      `json:"genre_tags"`
}

// Query describes one external lookup. Kind is required.
type Query struct {
	FreeText string
	Kind     store.Kind
	Genre    int
	Page     int
}

// Provider is the external catalog contract. Search returns an empty slice,
// not an error, when nothing matches. Errors wrap one of ErrUnavailable,
// ErrRateLimited, ErrNotFound or ErrMalformed.
type Provider interface {
	Search(ctx context.Context, q Query) ([]Item, error)
	Get(ctx context.Context, kind store.Kind, externalID string) (Item, error)
}

// ExternalID returns the namespaced identifier for a provider id. Movie and
// TV ids overlap upstream, so TV ids carry a "tv:" prefix.
func ExternalID(kind store.Kind, providerID int64) string {
	if kind == store.KindTVShow {
		return "tv:" + strconv.FormatInt(providerID, 10)
	}
	return strconv.FormatInt(providerID, 10)
}

// ProviderID strips the namespace from an external id.
func ProviderID(kind store.Kind, externalID string) (int64, error) {
	raw := externalID
	if kind == store.KindTVShow {
		raw = strings.TrimPrefix(raw, "tv:")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid external id %q", ErrNotFound, externalID)
	}
	return id, nil
}

type rawItem struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Name         string   `json:"name"`
	ReleaseDate  string   `json:"release_date"`
	FirstAirDate string   `json:"first_air_date"`
	PosterPath   string   `json:"poster_path"`
	Overview     string   `json:"overview"`
	Popularity   *float64 `json:"popularity"`
	GenreIDs     []int    `json:"genre_ids"`
	Genres       []struct {
		ID int `json:"id"`
	} `json:"genres"`
}

type listResponse struct {
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	Results    []json.RawMessage `json:"results"`
}

// decodeItem maps one provider payload. Items without an id are malformed.
func decodeItem(kind store.Kind, b []byte) (Item, error) {
	var raw rawItem
	if err := json.Unmarshal(b, &raw); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.ID <= 0 {
		return Item{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}

	it := Item{
		ExternalID:  ExternalID(kind, raw.ID),
		Title:       firstNonEmpty(raw.Title, raw.Name, "Untitled"),
		Kind:        kind,
		PosterRef:   raw.PosterPath,
		Description: raw.Overview,
		Popularity:  raw.Popularity,
	}
	if d := firstNonEmpty(raw.ReleaseDate, raw.FirstAirDate); d != "" {
		if t, err := time.Parse("2006-01-02", d); err == nil {
			it.ReleaseDate = &t
		}
	}
	tags := append([]int{}, raw.GenreIDs...)
	for _, g := range raw.Genres {
		tags = append(tags, g.ID)
	}
	it.GenreTags = store.NormalizeTags(tags)
	return it, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
