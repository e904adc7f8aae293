package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BearBump/TrackLedger/internal/models"
)

const (
	MsgAlreadyAdded = "You have already added this tracking number."

	DetailsSeededFromAdmin = "Seeded from admin registration"
	DetailsAwaitingAdmin   = "User added; awaiting admin registration"

	defaultProduct = "Package"

	// EstimatedDeliveryWindow is added to the claim date for the delivery estimate.
	EstimatedDeliveryWindow = 60 * 24 * time.Hour
)

type ClaimInput struct {
	TrackingNumber string
	Sender         string
	Quantity       float64
	Product        string
	UserID         string
	// UserMark is the user's own shipping-mark identifier, if known.
	UserMark *string
}

type Result struct {
	OK       bool
	Message  string
	Shipment *models.UserShipment
}

// Claim registers a tracking number as belonging to the user.
//
// A duplicate claim is reported as a failed Result and leaves the store
// untouched. The returned error is only set when persisting failed, in which
// case nothing was kept either.
func (s *Store) Claim(ctx context.Context, in ClaimInput) (Result, error) {
	tn := models.CanonicalTrackingNumber(in.TrackingNumber)
	if tn == "" {
		return Result{}, ErrEmptyTrackingNumber
	}
	uid := s.userKey(in.UserID)

	var res Result
	err := s.mutate(ctx, func() error {
		if s.findClaimLocked(uid, tn) >= 0 {
			res = Result{OK: false, Message: MsgAlreadyAdded}
			return errNoChange
		}

		now := s.now()
		admin, known := s.lookupLocked(tn)

		sh := models.UserShipment{
			TrackingNumber:     tn,
			Sender:             in.Sender,
			Product:            in.Product,
			Quantity:           normalizeQuantity(in.Quantity),
			UserTrackingNumber: copyMark(in.UserMark),
			Status:             models.StatusPending,
			AddedDate:          now,
			LastUpdated:        now,
		}
		if sh.Product == "" {
			sh.Product = defaultProduct
		}
		details := DetailsAwaitingAdmin
		if known {
			sh.Status = admin.Status
			details = DetailsSeededFromAdmin
		}
		s.st.claims[uid] = append(s.st.claims[uid], sh)

		if len(s.st.history[tn]) == 0 {
			s.st.history[tn] = []models.HistoryEntry{{Status: sh.Status, Date: now, Details: details}}
		}

		msg := fmt.Sprintf("Added %s: %d item(s) from %s.", tn, sh.Quantity, senderLabel(sh.Sender))
		if known {
			msg += fmt.Sprintf(" Admin has already registered this number (status: %s).", admin.Status)
		} else {
			msg += " Waiting for admin to register this number."
		}
		res = Result{OK: true, Message: msg, Shipment: &sh}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// MaxQuantity caps claimed item counts; larger inputs are clamped to it.
const MaxQuantity = math.MaxInt32

func normalizeQuantity(q float64) int {
	if math.IsNaN(q) || math.IsInf(q, 0) || q < 1 {
		return 1
	}
	if q >= MaxQuantity {
		return MaxQuantity
	}
	return int(q)
}

func copyMark(mark *string) *string {
	if mark == nil || *mark == "" {
		return nil
	}
	m := *mark
	return &m
}

func senderLabel(sender string) string {
	if sender == "" {
		return "unknown sender"
	}
	return sender
}

type CheckOutcome int

const (
	// Unknown: neither the user nor an admin has the number.
	Unknown CheckOutcome = iota
	// KnownUnclaimed: an admin registered it but the user has not claimed it.
	KnownUnclaimed
	// Tracked: the user has claimed it.
	Tracked
)

func (o CheckOutcome) String() string {
	switch o {
	case Tracked:
		return "tracked"
	case KnownUnclaimed:
		return "known_unclaimed"
	default:
		return "unknown"
	}
}

type CheckResult struct {
	Outcome        CheckOutcome
	TrackingNumber string
	Message        string

	// Tracked
	Shipment          *models.UserShipment
	Narrative         string
	History           []models.HistoryEntry
	EstimatedDelivery *time.Time

	// KnownUnclaimed
	Admin *models.AdminRecord
}

// Check reports what the store knows about a tracking number for the user.
func (s *Store) Check(trackingNumber, userID string) CheckResult {
	tn := models.CanonicalTrackingNumber(trackingNumber)

	s.mu.RLock()
	defer s.mu.RUnlock()

	uid := s.userKey(userID)
	if i := s.findClaimLocked(uid, tn); i >= 0 {
		sh := s.st.claims[uid][i]
		res := CheckResult{
			Outcome:        Tracked,
			TrackingNumber: tn,
			Shipment:       &sh,
			Narrative:      sh.Status.Narrative(),
			History:        append([]models.HistoryEntry{}, s.st.history[tn]...),
			Message:        fmt.Sprintf("Current status: %s", sh.Status),
		}
		if sh.Status != models.StatusOnReturn {
			eta := sh.AddedDate.Add(EstimatedDeliveryWindow)
			res.EstimatedDelivery = &eta
		}
		return res
	}

	if rec, ok := s.lookupLocked(tn); ok {
		return CheckResult{
			Outcome:        KnownUnclaimed,
			TrackingNumber: tn,
			Admin:          &rec,
			Message: fmt.Sprintf("Tracking number %s is registered (status: %s, last updated: %s). Add it to your shipments to follow it.",
				tn, rec.Status, rec.LastUpdated.Format(time.RFC3339)),
		}
	}

	return CheckResult{
		Outcome:        Unknown,
		TrackingNumber: tn,
		Message:        fmt.Sprintf("Tracking number %s was not found. Ask an admin to register it first.", tn),
	}
}

// Report renders the result as the multi-line text shown to users.
func (r CheckResult) Report() string {
	if r.Outcome != Tracked || r.Shipment == nil {
		return r.Message
	}

	var b strings.Builder
	sh := r.Shipment
	fmt.Fprintf(&b, "Tracking number: %s\n", sh.TrackingNumber)
	fmt.Fprintf(&b, "Status: %s\n", sh.Status)
	fmt.Fprintf(&b, "%s\n", r.Narrative)
	fmt.Fprintf(&b, "Product: %s x%d\n", sh.Product, sh.Quantity)
	if sh.Sender != "" {
		fmt.Fprintf(&b, "Sender: %s\n", sh.Sender)
	}
	if sh.UserTrackingNumber != nil {
		fmt.Fprintf(&b, "Shipping mark: %s\n", *sh.UserTrackingNumber)
	}
	if r.EstimatedDelivery != nil {
		fmt.Fprintf(&b, "Estimated delivery: %s\n", r.EstimatedDelivery.Format("2006-01-02"))
	}
	if len(r.History) > 0 {
		b.WriteString("History:\n")
		for _, h := range r.History {
			fmt.Fprintf(&b, "  %s  %-22s %s\n", h.Date.Format("2006-01-02 15:04"), h.Status, h.Details)
		}
	}
	return b.String()
}

// RemoteUpdate is a status fetched from the remote tracking service.
type RemoteUpdate struct {
	TrackingNumber string
	Status         models.Status
	LastUpdated    time.Time
	ShippingMark   *string
}

// ApplyRemoteStatus refreshes every claimed copy of the number from a remote
// status. History only grows when the status actually changed. It reports
// false without touching anything when nobody claimed the number.
func (s *Store) ApplyRemoteStatus(ctx context.Context, upd RemoteUpdate) (bool, error) {
	tn := models.CanonicalTrackingNumber(upd.TrackingNumber)
	if tn == "" {
		return false, ErrEmptyTrackingNumber
	}

	claimed := false
	err := s.mutate(ctx, func() error {
		for uid := range s.st.claims {
			if s.findClaimLocked(uid, tn) >= 0 {
				claimed = true
				break
			}
		}
		if !claimed {
			return errNoChange
		}

		at := upd.LastUpdated
		if at.IsZero() {
			at = s.now()
		}
		if s.syncClaimStatusLocked(tn, upd.Status, at) {
			s.appendStatusChangeLocked(tn, upd.Status, s.now())
		}
		if upd.ShippingMark != nil && *upd.ShippingMark != "" {
			for uid, list := range s.st.claims {
				for i := range list {
					if list[i].TrackingNumber == tn && list[i].UserTrackingNumber == nil {
						mark := *upd.ShippingMark
						list[i].UserTrackingNumber = &mark
					}
				}
				s.st.claims[uid] = list
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}
