// Package store is the client-side shipment reconciliation store: the admin
// ledger, the per-user claim table and the per-number status history, kept in
// memory and snapshotted to a durable key-value backend after every mutation.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultKey is the backend key the whole store is saved under.
const DefaultKey = "trackingStore"

var ErrEmptyTrackingNumber = errors.New("tracking number is required")

// errNoChange aborts a mutation that turned out to be a no-op; nothing is saved.
var errNoChange = errors.New("no change")

// Backend is a durable key-value medium holding the serialized store.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultUser sets the user id used when callers pass an empty one.
func WithDefaultUser(userID string) Option {
	return func(s *Store) {
		if userID != "" {
			s.defaultUser = userID
		}
	}
}

// Store is safe for concurrent use: mutations (including the synchronous save)
// hold the write lock, reads hold the read lock.
type Store struct {
	mu sync.RWMutex

	backend     Backend
	key         string
	log         *zap.Logger
	now         func() time.Time
	defaultUser string

	st state
}

type state struct {
	ledger  []models.AdminRecord
	claims  map[string][]models.UserShipment
	history map[string][]models.HistoryEntry
}

func emptyState() state {
	return state{
		ledger:  []models.AdminRecord{},
		claims:  map[string][]models.UserShipment{},
		history: map[string][]models.HistoryEntry{},
	}
}

// New builds an empty store. A nil backend keeps the store memory-only.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		key:         DefaultKey,
		log:         zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
		defaultUser: models.DefaultUserID,
		st:          emptyState(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DefaultUser is the user id that empty ids resolve to.
func (s *Store) DefaultUser() string {
	return s.defaultUser
}

// Key is the backend key the snapshot is saved under.
func (s *Store) Key() string {
	return s.key
}

func (s *Store) userKey(userID string) string {
	if userID == "" {
		return s.defaultUser
	}
	return userID
}

// mutate runs fn under the write lock and persists the result. If fn or the
// save fails, the in-memory state is rolled back to what it was before.
func (s *Store) mutate(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.st.clone()
	if err := fn(); err != nil {
		s.st = prev
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	if err := s.saveLocked(ctx); err != nil {
		s.st = prev
		return err
	}
	return nil
}

func (st state) clone() state {
	out := state{
		ledger:  append([]models.AdminRecord{}, st.ledger...),
		claims:  make(map[string][]models.UserShipment, len(st.claims)),
		history: make(map[string][]models.HistoryEntry, len(st.history)),
	}
	for k, v := range st.claims {
		out.claims[k] = append([]models.UserShipment{}, v...)
	}
	for k, v := range st.history {
		out.history[k] = append([]models.HistoryEntry{}, v...)
	}
	return out
}

// ClaimRef ties a claimed shipment to the user holding it.
type ClaimRef struct {
	UserID   string
	Shipment models.UserShipment
}

// Claimed returns every claimed shipment across users, users sorted by id and
// shipments in claim order.
func (s *Store) Claimed() []ClaimRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.st.claims))
	for u := range s.st.claims {
		users = append(users, u)
	}
	sort.Strings(users)

	var out []ClaimRef
	for _, u := range users {
		for _, sh := range s.st.claims[u] {
			out = append(out, ClaimRef{UserID: u, Shipment: sh})
		}
	}
	return out
}
