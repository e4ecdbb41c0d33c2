package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/example/title-ratings/services/catalog/internal/store"
	"github.com/example/title-ratings/services/catalog/internal/tmdb"
)

// fakeProvider answers Search from a fixed table and records every query.
type fakeProvider struct {
	mu      sync.Mutex
	items   map[store.Kind][]tmdb.Item
	err     error
	queries []tmdb.Query
	byID    map[string]tmdb.Item
}

func (f *fakeProvider) Search(_ context.Context, q tmdb.Query) ([]tmdb.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.items[q.Kind], nil
}

func (f *fakeProvider) Get(_ context.Context, kind store.Kind, externalID string) (tmdb.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tmdb.Item{}, f.err
	}
	it, ok := f.byID[externalID]
	if !ok {
		return tmdb.Item{}, fmt.Errorf("%w: %s", tmdb.ErrNotFound, externalID)
	}
	return it, nil
}

func newService(st store.RecordStore, p tmdb.Provider) *Service {
	return New(st, p, nil, nil, nil, Config{DefaultPageSize: 10, MaxPageSize: 50})
}

func seedMovies(st *store.MemoryStore, n int) {
	for i := 0; i < n; i++ {
		st.Seed(store.ContentRecord{
			ID:         fmt.Sprintf("m%02d", i),
			ExternalID: fmt.Sprintf("%d", 1000+i),
			Title:      fmt.Sprintf("Movie %02d", i),
			Kind:       store.KindMovie,
			Ratings:    []float64{float64(i%10 + 1)},
			Popularity: float64(i),
		})
	}
}

func TestFind_SecondPageOfTwentyFive(t *testing.T) {
	st := store.NewMemoryStore()
	seedMovies(st, 25)
	st.Seed(store.ContentRecord{ID: "tv1", ExternalID: "tv:1", Title: "Show", Kind: store.KindTVShow, Ratings: []float64{10}})

	svc := newService(st, nil)
	page, err := svc.Find(context.Background(), Request{Kind: store.KindMovie, Sort: ByRating, Page: 2, PageSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalCount != 25 || page.TotalPages != 3 || page.CurrentPage != 2 {
		t.Fatalf("unexpected metadata: %+v", page)
	}

	all, _ := st.Find(context.Background(), store.Filter{Kind: store.KindMovie})
	Rank(all, ByRating)
	if diff := cmp.Diff(ids(all[10:20]), ids(page.Items)); diff != "" {
		t.Fatalf("page 2 (-want +got):\n%s", diff)
	}
}

func TestFind_IsStableAcrossCalls(t *testing.T) {
	st := store.NewMemoryStore()
	seedMovies(st, 25)
	svc := newService(st, nil)
	req := Request{Kind: store.KindMovie, Sort: ByTitle, Page: 1, PageSize: 7}

	first, err := svc.Find(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Find(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("results differ (-first +second):\n%s", diff)
	}
}

func TestFind_SyncsExternalItemsWithoutClobberingRatings(t *testing.T) {
	st := store.NewMemoryStore()
	st.Seed(store.ContentRecord{
		ID: "r42", ExternalID: "42", Title: "Foo", Kind: store.KindMovie,
		Ratings: []float64{8, 6}, GenreTags: []int{1},
	})
	p := &fakeProvider{items: map[store.Kind][]tmdb.Item{
		store.KindMovie: {
			{ExternalID: "42", Title: "Foo", Kind: store.KindMovie, GenreTags: []int{1, 7}},
			{ExternalID: "43", Title: "Foo Returns", Kind: store.KindMovie, GenreTags: []int{7}},
		},
	}}
	svc := newService(st, p)

	page, err := svc.Find(context.Background(), Request{FreeText: "Foo", Kind: store.KindMovie})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalCount != 2 {
		t.Fatalf("expected 2 records, got %d (%v)", page.TotalCount, ids(page.Items))
	}
	if page.Items[0].ExternalID != "42" {
		t.Fatalf("expected the rated record first, got %v", ids(page.Items))
	}
	if diff := cmp.Diff([]float64{8, 6}, page.Items[0].Ratings); diff != "" {
		t.Fatalf("ratings (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 7}, page.Items[0].GenreTags); diff != "" {
		t.Fatalf("genre tags (-want +got):\n%s", diff)
	}
	if st.CountExternal("42") != 1 || st.Len() != 2 {
		t.Fatalf("expected 2 stored records, got %d", st.Len())
	}
}

func TestFind_UnavailableFallsBackToLocal(t *testing.T) {
	st := store.NewMemoryStore()
	seedMovies(st, 3)
	p := &fakeProvider{err: fmt.Errorf("%w: boom", tmdb.ErrUnavailable)}
	svc := newService(st, p)

	page, err := svc.Find(context.Background(), Request{FreeText: "Movie", Kind: store.KindMovie})
	if err != nil {
		t.Fatalf("expected local fallback, got %v", err)
	}
	if page.TotalCount != 3 {
		t.Fatalf("expected 3 local records, got %d", page.TotalCount)
	}

	empty, err := svc.Find(context.Background(), Request{FreeText: "nothing here", Kind: store.KindMovie})
	if err != nil {
		t.Fatalf("expected empty page, got %v", err)
	}
	if empty.TotalCount != 0 || empty.TotalPages != 0 || len(empty.Items) != 0 {
		t.Fatalf("expected an empty page, got %+v", empty)
	}
}

// stallingProvider never answers until its context is done.
type stallingProvider struct{}

func (stallingProvider) Search(ctx context.Context, _ tmdb.Query) ([]tmdb.Item, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %v", tmdb.ErrUnavailable, ctx.Err())
}

func (stallingProvider) Get(ctx context.Context, _ store.Kind, _ string) (tmdb.Item, error) {
	<-ctx.Done()
	return tmdb.Item{}, fmt.Errorf("%w: %v", tmdb.ErrUnavailable, ctx.Err())
}

func TestFind_StalledUpstreamIsBoundedByExternalTimeout(t *testing.T) {
	st := store.NewMemoryStore()
	seedMovies(st, 2)
	svc := New(st, stallingProvider{}, nil, nil, nil, Config{ExternalTimeout: 50 * time.Millisecond})

	start := time.Now()
	page, err := svc.Find(context.Background(), Request{FreeText: "Movie"})
	if err != nil {
		t.Fatalf("expected local results, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected Find to give up on upstream quickly, took %s", elapsed)
	}
	if page.TotalCount != 2 {
		t.Fatalf("expected 2 local records, got %d", page.TotalCount)
	}

	_, err = svc.Ensure(context.Background(), store.KindMovie, "77")
	if !errors.Is(err, tmdb.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from a stalled lookup, got %v", err)
	}
}

func TestFind_HugePageReturnsEmptyPage(t *testing.T) {
	st := store.NewMemoryStore()
	seedMovies(st, 1)
	svc := newService(st, nil)

	req, err := ParseParams(func(k string) string {
		return map[string]string{"page": "100000000000000000", "page_size": "50"}[k]
	})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	page, err := svc.Find(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 0 || page.TotalCount != 1 || page.TotalPages != 1 {
		t.Fatalf("expected an empty page past the end, got %+v", page)
	}
	if page.CurrentPage != MaxPage {
		t.Fatalf("expected page clamped to %d, got %d", MaxPage, page.CurrentPage)
	}
}

func TestFind_SkipsUpstreamWithoutTextOrGenre(t *testing.T) {
	p := &fakeProvider{}
	svc := newService(store.NewMemoryStore(), p)
	if _, err := svc.Find(context.Background(), Request{Kind: store.KindMovie, Category: "drama"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.queries) != 0 {
		t.Fatalf("expected no upstream call, got %+v", p.queries)
	}
}

func TestFind_UnscopedKindQueriesMoviesAndShows(t *testing.T) {
	p := &fakeProvider{items: map[store.Kind][]tmdb.Item{
		store.KindMovie:  {{ExternalID: "1", Title: "Drama Film", Kind: store.KindMovie, GenreTags: []int{18}}},
		store.KindTVShow: {{ExternalID: "tv:1", Title: "Drama Show", Kind: store.KindTVShow, GenreTags: []int{18}}},
	}}
	svc := New(store.NewMemoryStore(), p, nil, nil, nil, Config{ExternalPages: 2})

	page, err := svc.Find(context.Background(), Request{Genre: 18})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalCount != 2 {
		t.Fatalf("expected movie and show, got %v", ids(page.Items))
	}
	if len(p.queries) != 4 {
		t.Fatalf("expected 2 kinds x 2 pages of sub-queries, got %d", len(p.queries))
	}
}

func TestFind_SyncedItemsMustMatchLocalFilter(t *testing.T) {
	p := &fakeProvider{items: map[store.Kind][]tmdb.Item{
		store.KindMovie: {{ExternalID: "1", Title: "Foo", Kind: store.KindMovie}},
	}}
	svc := newService(store.NewMemoryStore(), p)

	page, err := svc.Find(context.Background(), Request{FreeText: "Foo", Kind: store.KindMovie, MinRating: ptr(5.0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalCount != 0 {
		t.Fatalf("expected freshly synced unrated item to be excluded by rating bounds, got %v", ids(page.Items))
	}
}

func TestFind_LocalOnlySkipsUpstream(t *testing.T) {
	p := &fakeProvider{}
	svc := newService(store.NewMemoryStore(), p)
	if _, err := svc.Find(context.Background(), Request{FreeText: "x", LocalOnly: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.queries) != 0 {
		t.Fatalf("expected no upstream call, got %d", len(p.queries))
	}
}

type failingStore struct{ *store.MemoryStore }

func (failingStore) Find(context.Context, store.Filter) ([]store.ContentRecord, error) {
	return nil, errors.New("db down")
}

func TestFind_StoreReadFailureStillReturnsSyncedItems(t *testing.T) {
	p := &fakeProvider{items: map[store.Kind][]tmdb.Item{
		store.KindMovie: {{ExternalID: "1", Title: "Foo", Kind: store.KindMovie}},
	}}
	svc := newService(failingStore{store.NewMemoryStore()}, p)
	page, err := svc.Find(context.Background(), Request{FreeText: "Foo", Kind: store.KindMovie})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalCount != 1 {
		t.Fatalf("expected the synced item, got %+v", page)
	}
}

func TestFind_RejectsInvalidInput(t *testing.T) {
	svc := newService(store.NewMemoryStore(), &fakeProvider{})
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"unknown sort", Request{Sort: "byMood"}, "sort"},
		{"negative page size", Request{PageSize: -1}, "page_size"},
		{"page size over max", Request{PageSize: 51}, "page_size"},
		{"unknown kind", Request{Kind: "Podcast"}, "kind"},
		{"rating out of range", Request{MinRating: ptr(11.0)}, "min_rating"},
		{"inverted bounds", Request{MinRating: ptr(8.0), MaxRating: ptr(2.0)}, "min_rating"},
		{"negative genre", Request{Genre: -3}, "genre"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Find(context.Background(), tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Fields[0].Field != tt.field {
				t.Fatalf("expected field %q, got %+v", tt.field, verr.Fields)
			}
		})
	}
}

func TestFind_NormalizesInput(t *testing.T) {
	st := store.NewMemoryStore()
	seedMovies(st, 3)
	svc := newService(st, nil)
	page, err := svc.Find(context.Background(), Request{Kind: "movie", Sort: "BYTITLE", Page: -4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.CurrentPage != 1 || page.TotalCount != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].Title != "Movie 00" {
		t.Fatalf("expected title order, got %v", ids(page.Items))
	}
}

func TestEnsure(t *testing.T) {
	st := store.NewMemoryStore()
	p := &fakeProvider{byID: map[string]tmdb.Item{
		"tv:5": {ExternalID: "tv:5", Title: "Five", Kind: store.KindTVShow, GenreTags: []int{18}},
	}}
	svc := newService(st, p)

	rec, err := svc.Ensure(context.Background(), store.KindTVShow, "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ExternalID != "tv:5" || rec.Title != "Five" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	again, err := svc.Ensure(context.Background(), store.KindTVShow, "tv:5")
	if err != nil || again.ID != rec.ID {
		t.Fatalf("expected the stored record on the second call, got %+v %v", again, err)
	}

	if _, err := svc.Ensure(context.Background(), store.KindMovie, "404"); !errors.Is(err, tmdb.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var verr *ValidationError
	if _, err := svc.Ensure(context.Background(), "Podcast", ""); !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("expected two validation errors, got %v", err)
	}
}

func TestHome(t *testing.T) {
	st := store.NewMemoryStore()
	seedMovies(st, 8)
	st.Seed(
		store.ContentRecord{ID: "tv1", ExternalID: "tv:1", Title: "Show", Kind: store.KindTVShow, Ratings: []float64{4}},
		store.ContentRecord{ID: "flag", ExternalID: "77", Title: "Flagged", Kind: store.KindMovie, NegativeFlagCount: 9},
	)
	p := &fakeProvider{}
	svc := newService(st, p)

	home := svc.Home(context.Background(), 5)
	if len(home.TopMovies) != 5 || len(home.TopShows) != 1 || len(home.MostFlagged) != 5 {
		t.Fatalf("unexpected section sizes: %d %d %d", len(home.TopMovies), len(home.TopShows), len(home.MostFlagged))
	}
	if home.MostFlagged[0].ID == "flag" {
		t.Fatal("unrated record must not lead a section")
	}
	if len(p.queries) != 0 {
		t.Fatal("home sections must not call upstream")
	}
}
