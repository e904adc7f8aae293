package refresher

import (
	"testing"
	"time"

	"github.com/BearBump/TrackLedger/internal/models"
	refreshermocks "github.com/BearBump/TrackLedger/internal/services/refresher/mocks"
	"github.com/stretchr/testify/suite"
)

type PlannerSuite struct {
	suite.Suite
}

func (s *PlannerSuite) TestBackoffDelay() {
	p := NewPlanner(PlannerConfig{}, nil)
	s.Equal(5*time.Minute, p.BackoffDelay(0))
	s.Equal(5*time.Minute, p.BackoffDelay(1))
	s.Equal(15*time.Minute, p.BackoffDelay(2))
	s.Equal(30*time.Minute, p.BackoffDelay(3))
	s.Equal(60*time.Minute, p.BackoffDelay(4))
	s.Equal(60*time.Minute, p.BackoffDelay(100))
}

func (s *PlannerSuite) TestNextCheckDelay_Delivered() {
	m := &refreshermocks.Rand{}
	p := NewPlanner(DefaultPlannerConfig(), m)
	s.Equal(365*24*time.Hour, p.NextCheckDelay(models.StatusDelivered))
	m.AssertNotCalled(s.T(), "Intn", 0)
}

func (s *PlannerSuite) TestNextCheckDelay_InTransit_UsesRand() {
	m := &refreshermocks.Rand{}
	// 30..120 минут = 1800..7200 секунд, Intn получает размер диапазона
	m.On("Intn", 5401).Return(600).Once()

	p := NewPlanner(DefaultPlannerConfig(), m)
	s.Equal(40*time.Minute, p.NextCheckDelay(models.StatusInTransit))
	m.AssertExpectations(s.T())
}

func (s *PlannerSuite) TestNextCheckDelay_FixedRangeSkipsRand() {
	m := &refreshermocks.Rand{}
	p := NewPlanner(PlannerConfig{InTransitMinDelay: time.Minute, InTransitMaxDelay: time.Minute}, m)
	s.Equal(time.Minute, p.NextCheckDelay(models.StatusOnReturn))
	m.AssertExpectations(s.T())
}

func (s *PlannerSuite) TestNextCheckDelay_WarehouseAndPending() {
	p := NewPlanner(PlannerConfig{WarehouseDelay: 2 * time.Hour, PendingDelay: 10 * time.Minute}, nil)
	s.Equal(2*time.Hour, p.NextCheckDelay(models.StatusInChinaWarehouse))
	s.Equal(2*time.Hour, p.NextCheckDelay(models.StatusReceivedAtWarehouse))
	s.Equal(10*time.Minute, p.NextCheckDelay(models.StatusPending))
	s.Equal(10*time.Minute, p.WaitingDelay())
}

func (s *PlannerSuite) TestNewPlanner_MaxBelowMin() {
	p := NewPlanner(PlannerConfig{InTransitMinDelay: time.Hour, InTransitMaxDelay: time.Minute}, nil)
	s.Equal(time.Hour, p.NextCheckDelay(models.StatusInTransit))
}

func TestPlannerSuite(t *testing.T) {
	suite.Run(t, new(PlannerSuite))
}
