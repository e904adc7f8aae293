package shipments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/TrackLedger/internal/broker/messages"
	"github.com/BearBump/TrackLedger/internal/integrations/remote"
	remotemocks "github.com/BearBump/TrackLedger/internal/integrations/remote/mocks"
	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/BearBump/TrackLedger/internal/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	shipmentsmocks "github.com/BearBump/TrackLedger/internal/services/shipments/mocks"
)

type ServiceSuite struct {
	suite.Suite

	st     *store.Store
	remote *remotemocks.MockClient
	pub    *shipmentsmocks.MockPublisher
	svc    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.st = store.New(nil)
	s.remote = &remotemocks.MockClient{}
	s.pub = &shipmentsmocks.MockPublisher{}
	s.svc = New(s.st, s.remote, nil).WithPublisher(s.pub, "shipment-events")
}

func eventOf(typ messages.ShipmentEventType, userID, tn string) any {
	return mock.MatchedBy(func(ev messages.ShipmentEvent) bool {
		return ev.Type == typ && ev.UserID == userID && ev.TrackingNumber == tn && ev.EventID != ""
	})
}

func (s *ServiceSuite) TestClaim_PublishesOnSuccessOnly() {
	s.pub.On("PublishJSON", mock.Anything, "shipment-events", "AB1", eventOf(messages.ShipmentClaimed, "default", "AB1")).
		Return(nil).
		Once()

	res, err := s.svc.Claim(context.Background(), store.ClaimInput{TrackingNumber: "ab1"})
	s.Require().NoError(err)
	s.Require().True(res.OK)

	res, err = s.svc.Claim(context.Background(), store.ClaimInput{TrackingNumber: "AB1"})
	s.Require().NoError(err)
	s.Require().False(res.OK)
	s.pub.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestEventsUseConfiguredDefaultUser() {
	st := store.New(nil, store.WithDefaultUser("alice"))
	svc := New(st, s.remote, nil).WithPublisher(s.pub, "shipment-events")

	s.pub.On("PublishJSON", mock.Anything, "shipment-events", "D1", eventOf(messages.ShipmentClaimed, "alice", "D1")).
		Return(nil).
		Once()
	s.pub.On("PublishJSON", mock.Anything, "shipment-events", "D1", eventOf(messages.ShipmentDeleted, "alice", "D1")).
		Return(nil).
		Once()

	res, err := svc.Claim(context.Background(), store.ClaimInput{TrackingNumber: "d1"})
	s.Require().NoError(err)
	s.Require().True(res.OK)
	s.Require().Len(st.Shipments("alice"), 1)

	removed, err := svc.Delete(context.Background(), "", "D1")
	s.Require().NoError(err)
	s.Require().True(removed)
	s.pub.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestClaim_Validation() {
	_, err := s.svc.Claim(context.Background(), store.ClaimInput{TrackingNumber: " "})
	s.Require().ErrorIs(err, ErrInvalidArgument)

	long := make([]byte, maxTrackingNumberLen+1)
	for i := range long {
		long[i] = 'A'
	}
	_, err = s.svc.Claim(context.Background(), store.ClaimInput{TrackingNumber: string(long)})
	s.Require().ErrorIs(err, ErrInvalidArgument)
	s.pub.AssertNotCalled(s.T(), "PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestClaim_PublishErrorIsNotReturned() {
	s.pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("kafka down")).
		Once()

	res, err := s.svc.Claim(context.Background(), store.ClaimInput{TrackingNumber: "P1", UserID: "u"})
	s.Require().NoError(err)
	s.Require().True(res.OK)
}

func (s *ServiceSuite) TestRegister_StatusChangeNotifiesClaimants() {
	ctx := context.Background()
	s.pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, eventOf(messages.ShipmentClaimed, "alice", "R1")).Return(nil).Once()
	s.pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, eventOf(messages.ShipmentClaimed, "bob", "R1")).Return(nil).Once()

	_, err := s.svc.Register(ctx, "R1", models.StatusInChinaWarehouse)
	s.Require().NoError(err)
	_, err = s.svc.Claim(ctx, store.ClaimInput{TrackingNumber: "R1", UserID: "alice"})
	s.Require().NoError(err)
	_, err = s.svc.Claim(ctx, store.ClaimInput{TrackingNumber: "R1", UserID: "bob"})
	s.Require().NoError(err)

	// same status: nothing to announce
	_, err = s.svc.Register(ctx, "r1", models.StatusInChinaWarehouse)
	s.Require().NoError(err)

	s.pub.On("PublishJSON", mock.Anything, mock.Anything, "R1", eventOf(messages.ShipmentStatusChanged, "alice", "R1")).Return(nil).Once()
	s.pub.On("PublishJSON", mock.Anything, mock.Anything, "R1", eventOf(messages.ShipmentStatusChanged, "bob", "R1")).Return(nil).Once()
	msg, err := s.svc.Register(ctx, "R1", models.StatusInTransit)
	s.Require().NoError(err)
	s.Require().Contains(msg, "updated")
	s.pub.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestRefresh_AppliesRemoteStatus() {
	ctx := context.Background()
	s.pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, eventOf(messages.ShipmentClaimed, "u", "F1")).Return(nil).Once()
	_, err := s.svc.Claim(ctx, store.ClaimInput{TrackingNumber: "F1", UserID: "u"})
	s.Require().NoError(err)

	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s.remote.On("Lookup", mock.Anything, "F1").
		Return(remote.Status{TrackingNumber: "F1", Status: models.StatusInTransit, LastUpdated: at}, nil).
		Once()
	s.pub.On("PublishJSON", mock.Anything, mock.Anything, "F1", eventOf(messages.ShipmentStatusChanged, "u", "F1")).Return(nil).Once()

	res, err := s.svc.Refresh(ctx, "u", "f1")
	s.Require().NoError(err)
	s.Require().False(res.Waiting)
	s.Require().True(res.Changed)
	s.Require().Equal(store.Tracked, res.Check.Outcome)
	s.Require().Equal(models.StatusInTransit, res.Check.Shipment.Status)
	s.Require().Equal(at, res.Check.Shipment.LastUpdated)
	s.remote.AssertExpectations(s.T())
	s.pub.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestRefresh_NotFoundMeansWaiting() {
	s.remote.On("Lookup", mock.Anything, "W1").Return(remote.Status{}, remote.ErrNotFound).Once()

	res, err := s.svc.Refresh(context.Background(), "", "w1")
	s.Require().NoError(err)
	s.Require().True(res.Waiting)
	s.Require().Equal(NoteWaitingForAdmin, res.Note)
	s.Require().Equal(store.Unknown, res.Check.Outcome)
}

func (s *ServiceSuite) TestRefresh_RemoteErrorReturned() {
	want := errors.New("timeout")
	s.remote.On("Lookup", mock.Anything, "E1").Return(remote.Status{}, want).Once()

	_, err := s.svc.Refresh(context.Background(), "", "E1")
	s.Require().ErrorIs(err, want)
}

func (s *ServiceSuite) TestApplyAdminEvent() {
	ctx := context.Background()
	err := s.svc.ApplyAdminEvent(ctx, messages.AdminStatusChanged{TrackingNumber: "k1", Status: "IN_TRANSIT"})
	s.Require().NoError(err)
	rec, ok := s.svc.Lookup("K1")
	s.Require().True(ok)
	s.Require().Equal(models.StatusInTransit, rec.Status)

	err = s.svc.ApplyAdminEvent(ctx, messages.AdminStatusChanged{TrackingNumber: "k2", Status: "teleported"})
	s.Require().NoError(err)
	rec, ok = s.svc.Lookup("K2")
	s.Require().True(ok)
	s.Require().Equal(models.StatusReceivedAtWarehouse, rec.Status)

	err = s.svc.ApplyAdminEvent(ctx, messages.AdminStatusChanged{Status: "Delivered"})
	s.Require().ErrorIs(err, ErrInvalidArgument)
}

func (s *ServiceSuite) TestDelete_PublishesWhenRemoved() {
	ctx := context.Background()
	s.pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, eventOf(messages.ShipmentClaimed, "default", "D1")).Return(nil).Once()
	s.pub.On("PublishJSON", mock.Anything, mock.Anything, "D1", eventOf(messages.ShipmentDeleted, "default", "D1")).Return(nil).Once()

	_, err := s.svc.Claim(ctx, store.ClaimInput{TrackingNumber: "D1"})
	s.Require().NoError(err)

	removed, err := s.svc.Delete(ctx, "", "d1")
	s.Require().NoError(err)
	s.Require().True(removed)

	removed, err = s.svc.Delete(ctx, "", "d1")
	s.Require().NoError(err)
	s.Require().False(removed)
	s.pub.AssertExpectations(s.T())
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
