package store

import (
	"context"
	"time"

	"github.com/BearBump/TrackLedger/internal/models"
)

// RecordStatusChange appends a status transition to the number's history log.
// Prior entries are never touched.
func (s *Store) RecordStatusChange(ctx context.Context, trackingNumber string, status models.Status) error {
	tn := models.CanonicalTrackingNumber(trackingNumber)
	if tn == "" {
		return ErrEmptyTrackingNumber
	}
	return s.mutate(ctx, func() error {
		s.appendStatusChangeLocked(tn, status, s.now())
		return nil
	})
}

// History returns a copy of the number's history in insertion order.
func (s *Store) History(trackingNumber string) []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.HistoryEntry{}, s.st.history[models.CanonicalTrackingNumber(trackingNumber)]...)
}

func (s *Store) appendStatusChangeLocked(tn string, status models.Status, at time.Time) {
	s.st.history[tn] = append(s.st.history[tn], models.HistoryEntry{
		Status:  status,
		Date:    at,
		Details: "Status updated to " + string(status),
	})
}
