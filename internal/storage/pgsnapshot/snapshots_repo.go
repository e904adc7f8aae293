package pgsnapshot

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	selectSnapshot = `SELECT data FROM store_snapshots WHERE key = $1`
	upsertSnapshot = `
INSERT INTO store_snapshots (key, data, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	selectUpdatedAt = `SELECT updated_at FROM store_snapshots WHERE key = $1`
)

// Load returns the snapshot stored under key; ok is false when there is none.
func (s *Storage) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(ctx, selectSnapshot, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "select snapshot")
	}
	return data, true, nil
}

// Save overwrites the snapshot under key. The value must be valid JSON.
func (s *Storage) Save(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.Exec(ctx, upsertSnapshot, key, value, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "upsert snapshot")
	}
	return nil
}

// UpdatedAt reports when the snapshot under key was last written.
func (s *Storage) UpdatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	var at time.Time
	err := s.db.QueryRow(ctx, selectUpdatedAt, key).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "select updated_at")
	}
	return at, true, nil
}
