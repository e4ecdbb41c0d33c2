package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process. It is used by tests and by the
// memory STORE_DRIVER for local development.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]ContentRecord
	byExternal map[string]string
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]ContentRecord),
		byExternal: make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Seed stores fully-formed records, rating state included. Records without
// an ID get one. Seeding an external id that already exists replaces it.
func (s *MemoryStore) Seed(recs ...ContentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		r = r.Clone()
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.CategoryTally == nil {
			r.CategoryTally = map[string]int{}
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = s.now()
			r.UpdatedAt = r.CreatedAt
		}
		r.GenreTags = NormalizeTags(r.GenreTags)
		if old, ok := s.byExternal[r.ExternalID]; ok {
			delete(s.byID, old)
		}
		s.byID[r.ID] = r
		s.byExternal[r.ExternalID] = r.ID
	}
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return ContentRecord{}, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) GetByExternalID(_ context.Context, externalID string) (ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return ContentRecord{}, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) Insert(ctx context.Context, rec NewRecord) (ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return ContentRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byExternal[rec.ExternalID]; ok {
		return ContentRecord{}, ErrDuplicate
	}
	now := s.now()
	r := ContentRecord{
		ID:            uuid.NewString(),
		ExternalID:    rec.ExternalID,
		Title:         rec.Title,
		Kind:          rec.Kind,
		PosterRef:     rec.PosterRef,
		Description:   rec.Description,
		Popularity:    rec.Popularity,
		GenreTags:     NormalizeTags(rec.GenreTags),
		Ratings:       []float64{},
		CategoryTally: map[string]int{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if rec.ReleaseDate != nil {
		d := *rec.ReleaseDate
		r.ReleaseDate = &d
	}
	s.byID[r.ID] = r
	s.byExternal[r.ExternalID] = r.ID
	return r.Clone(), nil
}

func (s *MemoryStore) MergeCatalog(ctx context.Context, id string, u CatalogUpdate) (ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return ContentRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return ContentRecord{}, ErrNotFound
	}
	r.GenreTags, _ = UnionTags(r.GenreTags, u.GenreTags)
	if u.Popularity != nil {
		r.Popularity = *u.Popularity
	}
	r.UpdatedAt = s.now()
	s.byID[id] = r
	return r.Clone(), nil
}

func (s *MemoryStore) Find(ctx context.Context, f Filter) ([]ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ContentRecord, 0)
	for _, r := range s.byID {
		if f.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len reports how many records are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// CountExternal reports how many records carry externalID (at most one).
func (s *MemoryStore) CountExternal(externalID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.byID {
		if r.ExternalID == externalID {
			n++
		}
	}
	return n
}
