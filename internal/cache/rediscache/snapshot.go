package rediscache

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// SnapshotBackend stores whole store snapshots as plain Redis strings without TTL.
type SnapshotBackend struct {
	c      *redis.Client
	prefix string
}

func NewSnapshotBackend(c *redis.Client, prefix string) *SnapshotBackend {
	return &SnapshotBackend{c: c, prefix: prefix}
}

func (b *SnapshotBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.c.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get snapshot")
	}
	return val, true, nil
}

func (b *SnapshotBackend) Save(ctx context.Context, key string, value []byte) error {
	if err := b.c.Set(ctx, b.prefix+key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis set snapshot")
	}
	return nil
}
