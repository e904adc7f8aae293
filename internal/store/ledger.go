package store

import (
	"context"
	"fmt"

	"github.com/BearBump/TrackLedger/internal/models"
)

const detailsRegisteredByAdmin = "Registered by admin"

// Register upserts an admin ledger record and returns a confirmation line.
//
// A new number is appended and gets its first history entry if it has none.
// A status change on an existing number is recorded in the history log and
// pushed into every user's cached shipment status.
func (s *Store) Register(ctx context.Context, trackingNumber string, status models.Status) (string, error) {
	tn := models.CanonicalTrackingNumber(trackingNumber)
	if tn == "" {
		return "", ErrEmptyTrackingNumber
	}

	var msg string
	err := s.mutate(ctx, func() error {
		now := s.now()
		i := s.findAdminLocked(tn)
		if i < 0 {
			s.st.ledger = append(s.st.ledger, models.AdminRecord{
				TrackingNumber: tn,
				Status:         status,
				LastUpdated:    now,
			})
			if len(s.st.history[tn]) == 0 {
				s.st.history[tn] = []models.HistoryEntry{{Status: status, Date: now, Details: detailsRegisteredByAdmin}}
			}
			msg = fmt.Sprintf("Tracking number %s registered with status %s.", tn, status)
			return nil
		}

		rec := &s.st.ledger[i]
		prev := rec.Status
		rec.Status = status
		rec.LastUpdated = now
		if prev == status {
			msg = fmt.Sprintf("Tracking number %s is already registered with status %s.", tn, status)
			return nil
		}
		s.appendStatusChangeLocked(tn, status, now)
		s.syncClaimStatusLocked(tn, status, now)
		msg = fmt.Sprintf("Tracking number %s updated from %s to %s.", tn, prev, status)
		return nil
	})
	if err != nil {
		return "", err
	}
	return msg, nil
}

// Lookup finds the admin record for a tracking number, case-insensitively.
func (s *Store) Lookup(trackingNumber string) (models.AdminRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(models.CanonicalTrackingNumber(trackingNumber))
}

// Ledger returns a copy of the admin ledger in registration order.
func (s *Store) Ledger() []models.AdminRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AdminRecord{}, s.st.ledger...)
}

func (s *Store) lookupLocked(tn string) (models.AdminRecord, bool) {
	i := s.findAdminLocked(tn)
	if i < 0 {
		return models.AdminRecord{}, false
	}
	return s.st.ledger[i], true
}

// findAdminLocked returns the first match; legacy snapshots may hold duplicates.
func (s *Store) findAdminLocked(tn string) int {
	for i := range s.st.ledger {
		if s.st.ledger[i].TrackingNumber == tn {
			return i
		}
	}
	return -1
}
