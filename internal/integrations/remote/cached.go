package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/TrackLedger/internal/cache"
	"github.com/BearBump/TrackLedger/internal/models"
)

// Cached serves repeat lookups from a BytesCache. Only successful lookups are
// cached; cache failures fall through to the wrapped client.
type Cached struct {
	next  Client
	cache cache.BytesCache
	ttl   time.Duration
}

func NewCached(next Client, c cache.BytesCache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl}
}

func (c *Cached) Lookup(ctx context.Context, trackingNumber string) (Status, error) {
	tn := models.CanonicalTrackingNumber(trackingNumber)
	key := "status:" + tn

	if c.cache != nil && c.ttl > 0 {
		if b, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var st Status
			if json.Unmarshal(b, &st) == nil {
				return st, nil
			}
		}
	}

	st, err := c.next.Lookup(ctx, tn)
	if err != nil {
		return Status{}, err
	}

	if c.cache != nil && c.ttl > 0 {
		if b, err := json.Marshal(st); err == nil {
			_ = c.cache.Set(ctx, key, b, c.ttl)
		}
	}
	return st, nil
}
