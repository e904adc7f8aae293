package store

import (
	"context"
	"time"

	"github.com/BearBump/TrackLedger/internal/models"
)

// Shipments returns a copy of the user's claimed shipments in claim order.
func (s *Store) Shipments(userID string) []models.UserShipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.UserShipment{}, s.st.claims[s.userKey(userID)]...)
}

// Delete removes the user's shipment and the number's entire history log.
// The admin record, if any, stays. It reports whether a shipment was removed.
func (s *Store) Delete(ctx context.Context, userID, trackingNumber string) (bool, error) {
	tn := models.CanonicalTrackingNumber(trackingNumber)
	uid := s.userKey(userID)

	removed := false
	err := s.mutate(ctx, func() error {
		i := s.findClaimLocked(uid, tn)
		if i < 0 {
			return errNoChange
		}
		list := s.st.claims[uid]
		s.st.claims[uid] = append(list[:i:i], list[i+1:]...)
		if len(s.st.claims[uid]) == 0 {
			delete(s.st.claims, uid)
		}
		delete(s.st.history, tn)
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *Store) findClaimLocked(uid, tn string) int {
	for i, sh := range s.st.claims[uid] {
		if sh.TrackingNumber == tn {
			return i
		}
	}
	return -1
}

// syncClaimStatusLocked pushes a status into every user's cached copy of tn.
// It returns whether any claimed shipment changed status.
func (s *Store) syncClaimStatusLocked(tn string, status models.Status, at time.Time) bool {
	changed := false
	for uid, list := range s.st.claims {
		for i := range list {
			if list[i].TrackingNumber != tn {
				continue
			}
			if list[i].Status != status {
				changed = true
			}
			list[i].Status = status
			list[i].LastUpdated = at
		}
		s.st.claims[uid] = list
	}
	return changed
}
