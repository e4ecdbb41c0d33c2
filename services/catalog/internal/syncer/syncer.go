// Package syncer turns external catalog items into durable records without
// touching rating state that already exists locally.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/title-ratings/internal/platform/events"
	"github.com/example/title-ratings/services/catalog/internal/metrics"
	"github.com/example/title-ratings/services/catalog/internal/store"
	"github.com/example/title-ratings/services/catalog/internal/tmdb"
)

// Publisher receives record lifecycle events.
type Publisher interface {
	Publish(subject string, props map[string]any)
}

// Recorder receives one sync outcome per processed item.
type Recorder interface {
	ObserveSync(result string)
}

type Synchronizer struct {
	Store   store.RecordStore
	Log     *zap.Logger
	Events  Publisher
	Metrics Recorder
}

func New(st store.RecordStore, log *zap.Logger, ev Publisher, m Recorder) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{Store: st, Log: log, Events: ev, Metrics: m}
}

// Sync upserts every item and returns the resulting records in input order.
// Items that fail are logged and skipped; Sync itself never fails.
func (s *Synchronizer) Sync(ctx context.Context, items []tmdb.Item) []store.ContentRecord {
	out := make([]store.ContentRecord, 0, len(items))
	for _, it := range items {
		rec, err := s.Upsert(ctx, it)
		if err != nil {
			s.Log.Warn("sync item failed",
				zap.String("external_id", it.ExternalID),
				zap.String("kind", string(it.Kind)),
				zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Upsert creates the record for it if absent, otherwise unions its genre
// tags in and refreshes popularity. A concurrent creation of the same
// external id is resolved by re-reading the winner's record.
func (s *Synchronizer) Upsert(ctx context.Context, it tmdb.Item) (store.ContentRecord, error) {
	if it.ExternalID == "" || !it.Kind.Valid() {
		s.observe(metrics.SyncDropped)
		return store.ContentRecord{}, fmt.Errorf("%w: item without external id or kind", tmdb.ErrMalformed)
	}

	rec, err := s.Store.GetByExternalID(ctx, it.ExternalID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		created, err := s.Store.Insert(ctx, newRecord(it))
		if err == nil {
			s.observe(metrics.SyncCreated)
			s.publish(events.SubjectTitleCreated, created)
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			s.observe(metrics.SyncFailed)
			return store.ContentRecord{}, fmt.Errorf("insert %s: %w", it.ExternalID, err)
		}
		rec, err = s.Store.GetByExternalID(ctx, it.ExternalID)
		if err != nil {
			s.observe(metrics.SyncFailed)
			return store.ContentRecord{}, fmt.Errorf("re-read %s after duplicate: %w", it.ExternalID, err)
		}
	default:
		s.observe(metrics.SyncFailed)
		return store.ContentRecord{}, fmt.Errorf("lookup %s: %w", it.ExternalID, err)
	}

	update, changed := catalogUpdate(rec, it)
	if !changed {
		s.observe(metrics.SyncUnchanged)
		return rec, nil
	}
	merged, err := s.Store.MergeCatalog(ctx, rec.ID, update)
	if err != nil {
		s.observe(metrics.SyncFailed)
		return store.ContentRecord{}, fmt.Errorf("merge %s: %w", it.ExternalID, err)
	}
	s.observe(metrics.SyncUpdated)
	s.publish(events.SubjectTitleUpdated, merged)
	return merged, nil
}

func newRecord(it tmdb.Item) store.NewRecord {
	nr := store.NewRecord{
		ExternalID:  it.ExternalID,
		Title:       it.Title,
		Kind:        it.Kind,
		ReleaseDate: it.ReleaseDate,
		PosterRef:   it.PosterRef,
		Description: it.Description,
		GenreTags:   it.GenreTags,
	}
	if it.Popularity != nil {
		nr.Popularity = *it.Popularity
	}
	return nr
}

// catalogUpdate reports the catalog-owned changes it brings to rec.
func catalogUpdate(rec store.ContentRecord, it tmdb.Item) (store.CatalogUpdate, bool) {
	var u store.CatalogUpdate
	_, tagsChanged := store.UnionTags(rec.GenreTags, it.GenreTags)
	if tagsChanged {
		u.GenreTags = it.GenreTags
	}
	if it.Popularity != nil && *it.Popularity != rec.Popularity {
		u.Popularity = it.Popularity
	}
	return u, tagsChanged || u.Popularity != nil
}

func (s *Synchronizer) observe(result string) {
	if s.Metrics != nil {
		s.Metrics.ObserveSync(result)
	}
}

func (s *Synchronizer) publish(subject string, rec store.ContentRecord) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(subject, map[string]any{
		"record_id":   rec.ID,
		"external_id": rec.ExternalID,
		"kind":        string(rec.Kind),
		"title":       rec.Title,
	})
}
