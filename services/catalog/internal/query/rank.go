package query

import (
	"cmp"
	"slices"
	"strings"

	"github.com/example/title-ratings/services/catalog/internal/store"
)

// Policy names a ranking order.
type Policy string

const (
	ByRating        Policy = "byRating"
	ByPopularity    Policy = "byPopularity"
	ByRecency       Policy = "byRecency"
	ByTitle         Policy = "byTitle"
	ByNegativeFlags Policy = "byNegativeFlags"
)

var Policies = []Policy{ByRating, ByPopularity, ByRecency, ByTitle, ByNegativeFlags}

// ParsePolicy accepts a policy name case-insensitively.
func ParsePolicy(s string) (Policy, bool) {
	for _, p := range Policies {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

// Rank sorts recs in place. Rated records always precede unrated ones;
// within a tier the policy key decides, then popularity descending, then id
// ascending, so the order is total.
func Rank(recs []store.ContentRecord, p Policy) {
	key := primaryKey(p)
	slices.SortFunc(recs, func(a, b store.ContentRecord) int {
		if a.Rated() != b.Rated() {
			if a.Rated() {
				return -1
			}
			return 1
		}
		if c := key(a, b); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Popularity, a.Popularity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func primaryKey(p Policy) func(a, b store.ContentRecord) int {
	switch p {
	case ByPopularity:
		return func(a, b store.ContentRecord) int { return cmp.Compare(b.Popularity, a.Popularity) }
	case ByRecency:
		return compareRecency
	case ByTitle:
		return func(a, b store.ContentRecord) int {
			return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		}
	case ByNegativeFlags:
		return func(a, b store.ContentRecord) int { return cmp.Compare(b.NegativeFlagCount, a.NegativeFlagCount) }
	default:
		// Unrated records have no score; they fall through to popularity.
		return func(a, b store.ContentRecord) int {
			if !a.Rated() {
				return 0
			}
			return cmp.Compare(b.Score(), a.Score())
		}
	}
}

// compareRecency orders newest first; records without a date sort oldest.
func compareRecency(a, b store.ContentRecord) int {
	switch {
	case a.ReleaseDate == nil && b.ReleaseDate == nil:
		return 0
	case a.ReleaseDate == nil:
		return 1
	case b.ReleaseDate == nil:
		return -1
	}
	return b.ReleaseDate.Compare(*a.ReleaseDate)
}
