package tmdb

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/title-ratings/services/catalog/internal/store"
)

// Cache is the subset of cache.RedisCache CachedProvider needs.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// CachedProvider memoizes successful upstream answers to spare the rate
// budget. Cache failures fall through to the wrapped provider.
type CachedProvider struct {
	Next  Provider
	Cache Cache
	Log   *zap.Logger
}

func NewCachedProvider(next Provider, c Cache, log *zap.Logger) *CachedProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedProvider{Next: next, Cache: c, Log: log}
}

func (p *CachedProvider) Search(ctx context.Context, q Query) ([]Item, error) {
	key := fmt.Sprintf("tmdb:search:%s:%d:%d:%s", q.Kind, q.Genre, max(q.Page, 1), strings.ToLower(strings.TrimSpace(q.FreeText)))
	var items []Item
	if ok, err := p.Cache.Get(ctx, key, &items); err != nil {
		p.Log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return items, nil
	}

	items, err := p.Next.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := p.Cache.Set(ctx, key, items); err != nil {
		p.Log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return items, nil
}

func (p *CachedProvider) Get(ctx context.Context, kind store.Kind, externalID string) (Item, error) {
	key := fmt.Sprintf("tmdb:item:%s:%s", kind, externalID)
	var it Item
	if ok, err := p.Cache.Get(ctx, key, &it); err != nil {
		p.Log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return it, nil
	}

	it, err := p.Next.Get(ctx, kind, externalID)
	if err != nil {
		return Item{}, err
	}
	if err := p.Cache.Set(ctx, key, it); err != nil {
		p.Log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return it, nil
}
