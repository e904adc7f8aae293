package shipments

import (
	"context"
	"time"

	"github.com/BearBump/TrackLedger/internal/broker/messages"
	"github.com/BearBump/TrackLedger/internal/integrations/remote"
	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/BearBump/TrackLedger/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	maxTrackingNumberLen = 64

	// NoteWaitingForAdmin is shown when the remote service does not know the number yet.
	NoteWaitingForAdmin = "Waiting for admin to register this tracking number"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoRemote        = errors.New("remote tracking is not configured")
)

type Store interface {
	Claim(ctx context.Context, in store.ClaimInput) (store.Result, error)
	Check(trackingNumber, userID string) store.CheckResult
	Register(ctx context.Context, trackingNumber string, status models.Status) (string, error)
	RecordStatusChange(ctx context.Context, trackingNumber string, status models.Status) error
	Delete(ctx context.Context, userID, trackingNumber string) (bool, error)
	Shipments(userID string) []models.UserShipment
	History(trackingNumber string) []models.HistoryEntry
	Lookup(trackingNumber string) (models.AdminRecord, bool)
	Ledger() []models.AdminRecord
	ApplyRemoteStatus(ctx context.Context, upd store.RemoteUpdate) (bool, error)
	Claimed() []store.ClaimRef
	DefaultUser() string
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type Service struct {
	store  Store
	remote remote.Client
	pub    Publisher
	topic  string
	log    *zap.Logger
	now    func() time.Time
}

// New wires the service. remoteClient may be nil: Refresh then fails with ErrNoRemote.
func New(st Store, remoteClient remote.Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  st,
		remote: remoteClient,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithPublisher enables shipment events on topic.
func (s *Service) WithPublisher(p Publisher, topic string) *Service {
	s.pub = p
	s.topic = topic
	return s
}

func validateTrackingNumber(tn string) error {
	tn = models.CanonicalTrackingNumber(tn)
	if tn == "" {
		return errors.Wrap(ErrInvalidArgument, "trackingNumber is required")
	}
	if len(tn) > maxTrackingNumberLen {
		return errors.Wrapf(ErrInvalidArgument, "trackingNumber is longer than %d", maxTrackingNumberLen)
	}
	return nil
}

func (s *Service) Claim(ctx context.Context, in store.ClaimInput) (store.Result, error) {
	if err := validateTrackingNumber(in.TrackingNumber); err != nil {
		return store.Result{}, err
	}
	res, err := s.store.Claim(ctx, in)
	if err != nil {
		return store.Result{}, err
	}
	if res.OK && res.Shipment != nil {
		s.publish(ctx, messages.ShipmentClaimed, in.UserID, res.Shipment.TrackingNumber, res.Shipment.Status)
	}
	return res, nil
}

func (s *Service) Check(trackingNumber, userID string) store.CheckResult {
	return s.store.Check(trackingNumber, userID)
}

func (s *Service) Lookup(trackingNumber string) (models.AdminRecord, bool) {
	return s.store.Lookup(trackingNumber)
}

func (s *Service) Ledger() []models.AdminRecord {
	return s.store.Ledger()
}

func (s *Service) List(userID string) []models.UserShipment {
	return s.store.Shipments(userID)
}

func (s *Service) History(trackingNumber string) []models.HistoryEntry {
	return s.store.History(trackingNumber)
}

// Register upserts the admin record and notifies every claimant when the
// status moved.
func (s *Service) Register(ctx context.Context, trackingNumber string, status models.Status) (string, error) {
	if err := validateTrackingNumber(trackingNumber); err != nil {
		return "", err
	}
	tn := models.CanonicalTrackingNumber(trackingNumber)
	prev, known := s.store.Lookup(tn)

	msg, err := s.store.Register(ctx, tn, status)
	if err != nil {
		return "", err
	}
	if known && prev.Status != status {
		s.notifyClaimants(ctx, tn, status)
	}
	return msg, nil
}

func (s *Service) RecordStatusChange(ctx context.Context, trackingNumber string, status models.Status) error {
	if err := validateTrackingNumber(trackingNumber); err != nil {
		return err
	}
	return s.store.RecordStatusChange(ctx, trackingNumber, status)
}

func (s *Service) Delete(ctx context.Context, userID, trackingNumber string) (bool, error) {
	removed, err := s.store.Delete(ctx, userID, trackingNumber)
	if err != nil {
		return false, err
	}
	if removed {
		s.publish(ctx, messages.ShipmentDeleted, userID, models.CanonicalTrackingNumber(trackingNumber), "")
	}
	return removed, nil
}

type RefreshResult struct {
	// Waiting is set when the remote service does not know the number yet.
	Waiting bool
	Note    string
	Changed bool
	Check   store.CheckResult
}

// Refresh pulls the remote status for the user's number and folds it into
// every claimed copy.
func (s *Service) Refresh(ctx context.Context, userID, trackingNumber string) (RefreshResult, error) {
	if err := validateTrackingNumber(trackingNumber); err != nil {
		return RefreshResult{}, err
	}
	tn := models.CanonicalTrackingNumber(trackingNumber)

	before := s.store.Check(tn, userID)
	_, err := s.RefreshNumber(ctx, tn)
	if errors.Is(err, remote.ErrNotFound) {
		return RefreshResult{Waiting: true, Note: NoteWaitingForAdmin, Check: before}, nil
	}
	if err != nil {
		return RefreshResult{}, err
	}

	after := s.store.Check(tn, userID)
	res := RefreshResult{Check: after}
	if before.Shipment != nil && after.Shipment != nil {
		res.Changed = before.Shipment.Status != after.Shipment.Status
	}
	return res, nil
}

// RefreshNumber looks the number up remotely and applies the result to all
// claimants. It returns the remote status.
func (s *Service) RefreshNumber(ctx context.Context, trackingNumber string) (models.Status, error) {
	if s.remote == nil {
		return "", ErrNoRemote
	}
	tn := models.CanonicalTrackingNumber(trackingNumber)

	st, err := s.remote.Lookup(ctx, tn)
	if err != nil {
		return "", err
	}

	prev := s.claimedStatuses(tn)
	applied, err := s.store.ApplyRemoteStatus(ctx, store.RemoteUpdate{
		TrackingNumber: tn,
		Status:         st.Status,
		LastUpdated:    st.LastUpdated,
		ShippingMark:   st.ShippingMark,
	})
	if err != nil {
		return "", err
	}
	if applied {
		for uid, old := range prev {
			if old != st.Status {
				s.publish(ctx, messages.ShipmentStatusChanged, uid, tn, st.Status)
			}
		}
	}
	return st.Status, nil
}

// ApplyAdminEvent folds an admin status message from the broker into the ledger.
func (s *Service) ApplyAdminEvent(ctx context.Context, msg messages.AdminStatusChanged) error {
	if err := validateTrackingNumber(msg.TrackingNumber); err != nil {
		return err
	}
	status, ok := models.ParseStatus(msg.Status)
	if !ok {
		s.log.Warn("admin event with unrecognised status",
			zap.String("tracking_number", msg.TrackingNumber),
			zap.String("status", msg.Status),
			zap.String("mapped_to", status.String()))
	}
	_, err := s.Register(ctx, msg.TrackingNumber, status)
	return err
}

// ActiveNumber is a claimed tracking number that can still change status.
type ActiveNumber struct {
	TrackingNumber string
	Status         models.Status
}

// ActiveNumbers lists claimed, non-terminal numbers once each, in claim order.
func (s *Service) ActiveNumbers() []ActiveNumber {
	seen := map[string]struct{}{}
	var out []ActiveNumber
	for _, ref := range s.store.Claimed() {
		sh := ref.Shipment
		if sh.Status.Terminal() {
			continue
		}
		if _, ok := seen[sh.TrackingNumber]; ok {
			continue
		}
		seen[sh.TrackingNumber] = struct{}{}
		out = append(out, ActiveNumber{TrackingNumber: sh.TrackingNumber, Status: sh.Status})
	}
	return out
}

func (s *Service) claimedStatuses(tn string) map[string]models.Status {
	out := map[string]models.Status{}
	for _, ref := range s.store.Claimed() {
		if ref.Shipment.TrackingNumber == tn {
			out[ref.UserID] = ref.Shipment.Status
		}
	}
	return out
}

func (s *Service) notifyClaimants(ctx context.Context, tn string, status models.Status) {
	for _, ref := range s.store.Claimed() {
		if ref.Shipment.TrackingNumber == tn {
			s.publish(ctx, messages.ShipmentStatusChanged, ref.UserID, tn, status)
		}
	}
}

func (s *Service) publish(ctx context.Context, typ messages.ShipmentEventType, userID, tn string, status models.Status) {
	if s.pub == nil {
		return
	}
	if userID == "" {
		userID = s.store.DefaultUser()
	}
	ev := messages.NewShipmentEvent(typ, userID, tn, status.String(), s.now())
	if err := s.pub.PublishJSON(ctx, s.topic, tn, ev); err != nil {
		s.log.Warn("publish shipment event",
			zap.String("type", string(typ)),
			zap.String("tracking_number", tn),
			zap.Error(err))
	}
}
