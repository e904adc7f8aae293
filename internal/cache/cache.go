package cache

import (
	"context"
	"time"
)

// BytesCache: best-effort кэш; промах или ошибка не должны ломать запрос.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Limiter is a fixed-window counter keyed by caller-chosen strings.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}
