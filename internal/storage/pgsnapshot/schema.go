package pgsnapshot

import (
	"context"

	"github.com/pkg/errors"
)

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS store_snapshots (
  key TEXT PRIMARY KEY,
  data JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`

func (s *Storage) initSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createSnapshotsTable); err != nil {
		return errors.Wrap(err, "init schema")
	}
	return nil
}
