// Package query is the unified catalog read path: it synchronizes matching
// external items, merges them with local records, ranks and paginates.
package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/title-ratings/services/catalog/internal/metrics"
	"github.com/example/title-ratings/services/catalog/internal/store"
	"github.com/example/title-ratings/services/catalog/internal/syncer"
	"github.com/example/title-ratings/services/catalog/internal/tmdb"
)

type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	// ExternalPages is how many upstream pages each sub-query fetches.
	ExternalPages int
	// ExternalTimeout bounds all upstream work for one Find or Ensure.
	ExternalTimeout time.Duration
}

type Service struct {
	Store    store.RecordStore
	Provider tmdb.Provider
	Sync     *syncer.Synchronizer
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Config   Config
}

// New wires a Service. A nil provider disables external synchronization.
func New(st store.RecordStore, p tmdb.Provider, sy *syncer.Synchronizer, log *zap.Logger, m *metrics.Metrics, cfg Config) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.ExternalPages <= 0 {
		cfg.ExternalPages = 1
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = 10 * time.Second
	}
	if sy == nil {
		sy = syncer.New(st, log, nil, m)
	}
	return &Service{Store: st, Provider: p, Sync: sy, Log: log, Metrics: m, Config: cfg}
}

// Find answers one query. Only invalid input fails; upstream and store
// trouble degrade to whatever local data is reachable.
func (s *Service) Find(ctx context.Context, req Request) (Page, error) {
	req, err := req.normalize(s.Config.DefaultPageSize, s.Config.MaxPageSize)
	if err != nil {
		return Page{}, err
	}
	start := time.Now()
	defer func() { s.Metrics.ObserveFind(string(req.Sort), time.Since(start)) }()

	filter := req.Filter()

	var synced []store.ContentRecord
	if !req.LocalOnly && s.Provider != nil && (filter.FreeText != "" || filter.Genre > 0) {
		items := s.fetchExternal(ctx, req)
		for _, rec := range s.Sync.Sync(ctx, items) {
			// Free-text relevance is the upstream's call; the rest of the
			// filter must still hold locally.
			if filter.MatchesAttributes(rec) {
				synced = append(synced, rec)
			}
		}
	}

	local, err := s.Store.Find(ctx, filter)
	if err != nil {
		s.Log.Error("local find failed", zap.Error(err))
		local = nil
	}

	merged := Merge(local, synced)
	Rank(merged, req.Sort)
	return Paginate(merged, req.Page, req.PageSize), nil
}

// fetchExternal runs every (kind, page) sub-query concurrently under
// ExternalTimeout. Failed or late sub-queries are logged and contribute
// nothing.
func (s *Service) fetchExternal(ctx context.Context, req Request) []tmdb.Item {
	ctx, cancel := context.WithTimeout(ctx, s.Config.ExternalTimeout)
	defer cancel()

	kinds := []store.Kind{req.Kind}
	if req.Kind == "" {
		// Kids titles share the movie id space, so an unscoped query only
		// asks for movies and shows.
		kinds = []store.Kind{store.KindMovie, store.KindTVShow}
	}

	var (
		mu    sync.Mutex
		items []tmdb.Item
		seen  = map[string]bool{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		for page := 1; page <= s.Config.ExternalPages; page++ {
			q := tmdb.Query{FreeText: req.FreeText, Kind: kind, Genre: req.Genre, Page: page}
			g.Go(func() error {
				got, err := s.Provider.Search(gctx, q)
				if err != nil {
					s.Log.Warn("external sub-query failed",
						zap.String("kind", string(q.Kind)),
						zap.Int("page", q.Page),
						zap.Error(err))
					return nil
				}
				mu.Lock()
				defer mu.Unlock()
				for _, it := range got {
					if !seen[it.ExternalID] {
						seen[it.ExternalID] = true
						items = append(items, it)
					}
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return items
}

// Ensure returns the record for externalID, fetching and synchronizing it
// when it is not stored yet.
func (s *Service) Ensure(ctx context.Context, kind store.Kind, externalID string) (store.ContentRecord, error) {
	externalID = strings.TrimSpace(externalID)
	verr := &ValidationError{}
	if !kind.Valid() {
		verr.add("kind", "oneof", "must be one of: Movie, TVShow, KidsContent")
	}
	if externalID == "" {
		verr.add("external_id", "required", "is required")
	}
	if len(verr.Fields) > 0 {
		return store.ContentRecord{}, verr
	}
	if kind == store.KindTVShow && !strings.HasPrefix(externalID, "tv:") {
		externalID = "tv:" + externalID
	}

	rec, err := s.Store.GetByExternalID(ctx, externalID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.ContentRecord{}, err
	}
	if s.Provider == nil {
		return store.ContentRecord{}, store.ErrNotFound
	}
	getCtx, cancel := context.WithTimeout(ctx, s.Config.ExternalTimeout)
	it, err := s.Provider.Get(getCtx, kind, externalID)
	cancel()
	if err != nil {
		return store.ContentRecord{}, err
	}
	return s.Sync.Upsert(ctx, it)
}

// Get returns one record by local id.
func (s *Service) Get(ctx context.Context, id string) (store.ContentRecord, error) {
	return s.Store.GetByID(ctx, id)
}

// HomeSections are the landing page lists.
type HomeSections struct {
	TopMovies   []store.ContentRecord `json:"top_movies"`
	TopShows    []store.ContentRecord `json:"top_shows"`
	MostFlagged []store.ContentRecord `json:"most_flagged_movies"`
}

// Home builds the landing page lists concurrently from local data. A failing
// section is left empty.
func (s *Service) Home(ctx context.Context, size int) HomeSections {
	if size <= 0 {
		size = 5
	}
	size = min(size, s.Config.MaxPageSize)

	out := HomeSections{
		TopMovies:   []store.ContentRecord{},
		TopShows:    []store.ContentRecord{},
		MostFlagged: []store.ContentRecord{},
	}
	sections := []struct {
		name string
		req  Request
		dst  *[]store.ContentRecord
	}{
		{"top_movies", Request{Kind: store.KindMovie, Sort: ByRating}, &out.TopMovies},
		{"top_shows", Request{Kind: store.KindTVShow, Sort: ByRating}, &out.TopShows},
		{"most_flagged_movies", Request{Kind: store.KindMovie, Sort: ByNegativeFlags}, &out.MostFlagged},
	}

	var g errgroup.Group
	for _, sec := range sections {
		sec.req.Page = 1
		sec.req.PageSize = size
		sec.req.LocalOnly = true
		g.Go(func() error {
			page, err := s.Find(ctx, sec.req)
			if err != nil {
				s.Log.Warn("home section failed", zap.String("section", sec.name), zap.Error(err))
				return nil
			}
			*sec.dst = page.Items
			return nil
		})
	}
	_ = g.Wait()
	return out
}
