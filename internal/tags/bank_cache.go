package tags

import (
	"context"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-planner/internal/platform/cache"
)

// JSONCache is the subset of the cache client CachedBank needs.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CachedBank keeps facet tag lists in a shared cache in front of another
// Bank. Cache failures are logged and bypassed.
type CachedBank struct {
	next  Bank
	cache JSONCache
	ttl   time.Duration
}

// NewCachedBank wraps next with a cache. A non-positive ttl disables caching.
func NewCachedBank(next Bank, c JSONCache, ttl time.Duration) *CachedBank {
	return &CachedBank{next: next, cache: c, ttl: ttl}
}

func (b *CachedBank) AvailableTags(ctx context.Context, facetID string) ([]string, error) {
	if b.cache == nil || b.ttl <= 0 {
		return b.next.AvailableTags(ctx, facetID)
	}

	key := cache.Key("tags", facetID)
	var cached []string
	hit, err := b.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		slog.Warn("tag cache read failed", "facet", facetID, "error", err)
	}
	if hit {
		return cached, nil
	}

	available, err := b.next.AvailableTags(ctx, facetID)
	if err != nil {
		return nil, err
	}
	if len(available) > 0 {
		if err := b.cache.SetJSON(ctx, key, available, b.ttl); err != nil {
			slog.Warn("tag cache write failed", "facet", facetID, "error", err)
		}
	}
	return available, nil
}
