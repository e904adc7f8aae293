// Package leveldbkv keeps store snapshots in an embedded LevelDB directory.
package leveldbkv

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
)

const currentVersion = 1

var (
	versionKey     = []byte("meta:version")
	snapshotPrefix = []byte("snapshot:")
)

type Storage struct {
	db *leveldb.DB
}

// Open opens (or creates) the database directory. A read-only open fails if
// the directory does not exist yet.
func Open(path string, readOnly bool) (*Storage, error) {
	opt := &ldb_opt.Options{
		ErrorIfExist:   false,
		ErrorIfMissing: readOnly,
		ReadOnly:       readOnly,
	}
	db, err := leveldb.OpenFile(path, opt)
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb")
	}

	version, err := readVersion(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	switch {
	case version == 0 && !readOnly:
		if err := writeVersion(db, currentVersion); err != nil {
			_ = db.Close()
			return nil, err
		}
	case version > currentVersion:
		_ = db.Close()
		return nil, errors.Errorf("leveldb version %d is newer than supported %d", version, currentVersion)
	}
	return &Storage{db: db}, nil
}

func readVersion(db *leveldb.DB) (int, error) {
	v, err := db.Get(versionKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read version")
	}
	if len(v) != 4 {
		return 0, errors.Errorf("incompatible version length: expected 4, got %d", len(v))
	}
	return int(binary.BigEndian.Uint32(v)), nil
}

func writeVersion(db *leveldb.DB, version int) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(version))
	return errors.Wrap(db.Put(versionKey, v, nil), "write version")
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func snapshotKey(key string) []byte {
	return append(append([]byte{}, snapshotPrefix...), key...)
}

func (s *Storage) Load(_ context.Context, key string) ([]byte, bool, error) {
	v, err := s.db.Get(snapshotKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get snapshot")
	}
	return v, true, nil
}

// Save writes synchronously so an acknowledged mutation survives a crash.
func (s *Storage) Save(_ context.Context, key string, value []byte) error {
	if err := s.db.Put(snapshotKey(key), value, &ldb_opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "put snapshot")
	}
	return nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	return errors.Wrap(s.db.Delete(snapshotKey(key), nil), "delete snapshot")
}

// Keys lists snapshot keys in byte order.
func (s *Storage) Keys(_ context.Context) ([]string, error) {
	it := s.db.NewIterator(ldb_util.BytesPrefix(snapshotPrefix), nil)
	defer it.Release()

	var out []string
	for it.Next() {
		out = append(out, string(it.Key()[len(snapshotPrefix):]))
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate")
	}
	return out, nil
}
