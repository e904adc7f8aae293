package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// snapshotVersion 2 stores canonical tracking numbers and enum statuses.
// Records without a version field come from the web client and may carry
// free-form statuses and mixed-case numbers.
const snapshotVersion = 2

type snapshot struct {
	Version           int                              `json:"version,omitempty"`
	AdminTrackingData []models.AdminRecord             `json:"adminTrackingData"`
	UserTrackingData  []keyedList[models.UserShipment] `json:"userTrackingData"`
	StatusHistory     []keyedList[models.HistoryEntry] `json:"statusHistory"`
}

// keyedList is one map entry encoded as a two-element JSON array: [key, items].
type keyedList[T any] struct {
	Key   string
	Items []T
}

func (p keyedList[T]) MarshalJSON() ([]byte, error) {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	return json.Marshal([]any{p.Key, items})
}

func (p *keyedList[T]) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return errors.Errorf("expected [key, list] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Key); err != nil {
		return errors.Wrap(err, "pair key")
	}
	if err := json.Unmarshal(raw[1], &p.Items); err != nil {
		return errors.Wrap(err, "pair items")
	}
	return nil
}

// Save writes the whole store to the backend under the store key.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	b, err := encodeSnapshot(s.st)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := s.backend.Save(ctx, s.key, b); err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	return nil
}

// Load replaces the in-memory state with the backend's record.
//
// A missing record leaves the store empty. A record that cannot be decoded is
// logged and the store is reset to empty; only backend read errors are returned.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	b, ok, err := s.backend.Load(ctx, s.key)
	if err != nil {
		return errors.Wrap(err, "load snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok || len(b) == 0 {
		s.st = emptyState()
		return nil
	}
	st, err := s.decodeSnapshot(b)
	if err != nil {
		s.log.Warn("tracking store snapshot is unreadable, starting empty",
			zap.String("key", s.key), zap.Error(err))
		s.st = emptyState()
		return nil
	}
	s.st = st
	return nil
}

func encodeSnapshot(st state) ([]byte, error) {
	snap := snapshot{
		Version:           snapshotVersion,
		AdminTrackingData: st.ledger,
		UserTrackingData:  make([]keyedList[models.UserShipment], 0, len(st.claims)),
		StatusHistory:     make([]keyedList[models.HistoryEntry], 0, len(st.history)),
	}
	if snap.AdminTrackingData == nil {
		snap.AdminTrackingData = []models.AdminRecord{}
	}
	for _, uid := range sortedKeys(st.claims) {
		snap.UserTrackingData = append(snap.UserTrackingData, keyedList[models.UserShipment]{Key: uid, Items: st.claims[uid]})
	}
	for _, tn := range sortedKeys(st.history) {
		snap.StatusHistory = append(snap.StatusHistory, keyedList[models.HistoryEntry]{Key: tn, Items: st.history[tn]})
	}
	return json.Marshal(snap)
}

func (s *Store) decodeSnapshot(b []byte) (state, error) {
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return state{}, err
	}
	if snap.Version > snapshotVersion {
		return state{}, errors.Errorf("snapshot version %d is newer than supported %d", snap.Version, snapshotVersion)
	}

	st := emptyState()
	seen := map[string]struct{}{}
	for _, rec := range snap.AdminTrackingData {
		rec.TrackingNumber = models.CanonicalTrackingNumber(rec.TrackingNumber)
		if _, dup := seen[rec.TrackingNumber]; dup {
			// lookup всегда отдавал первую запись, её и оставляем
			continue
		}
		seen[rec.TrackingNumber] = struct{}{}
		rec.Status = s.migrateStatus(rec.Status)
		st.ledger = append(st.ledger, rec)
	}
	for _, p := range snap.UserTrackingData {
		uid := s.userKey(p.Key)
		for _, sh := range p.Items {
			sh.TrackingNumber = models.CanonicalTrackingNumber(sh.TrackingNumber)
			sh.Status = s.migrateStatus(sh.Status)
			if sh.Quantity < 1 {
				sh.Quantity = 1
			}
			if sh.Quantity > MaxQuantity {
				sh.Quantity = MaxQuantity
			}
			if containsShipment(st.claims[uid], sh.TrackingNumber) {
				// старые снапшоты могли хранить "abc1" и "ABC1" как разные записи
				continue
			}
			st.claims[uid] = append(st.claims[uid], sh)
		}
	}
	for _, p := range snap.StatusHistory {
		tn := models.CanonicalTrackingNumber(p.Key)
		for _, h := range p.Items {
			h.Status = s.migrateStatus(h.Status)
			st.history[tn] = append(st.history[tn], h)
		}
	}
	return st, nil
}

func (s *Store) migrateStatus(raw models.Status) models.Status {
	st, ok := models.ParseStatus(string(raw))
	if !ok {
		s.log.Warn("unrecognised status in snapshot", zap.String("status", string(raw)), zap.String("mapped_to", string(st)))
	}
	return st
}

func containsShipment(list []models.UserShipment, tn string) bool {
	for _, sh := range list {
		if sh.TrackingNumber == tn {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
