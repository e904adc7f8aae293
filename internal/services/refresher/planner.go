package refresher

import (
	"math/rand"
	"time"

	"github.com/BearBump/TrackLedger/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	DeliveredDelay time.Duration // default: 365 days

	InTransitMinDelay time.Duration // default: 30 minutes
	InTransitMaxDelay time.Duration // default: 120 minutes

	WarehouseDelay time.Duration // default: 6 hours
	PendingDelay   time.Duration // default: 1 hour; also used while the remote does not know the number

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		DeliveredDelay: 365 * 24 * time.Hour,

		InTransitMinDelay: 30 * time.Minute,
		InTransitMaxDelay: 120 * time.Minute,

		WarehouseDelay: 6 * time.Hour,
		PendingDelay:   time.Hour,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	cfg.DeliveredDelay = orDefault(cfg.DeliveredDelay, def.DeliveredDelay)
	cfg.InTransitMinDelay = orDefault(cfg.InTransitMinDelay, def.InTransitMinDelay)
	cfg.InTransitMaxDelay = orDefault(cfg.InTransitMaxDelay, def.InTransitMaxDelay)
	if cfg.InTransitMaxDelay < cfg.InTransitMinDelay {
		cfg.InTransitMaxDelay = cfg.InTransitMinDelay
	}
	cfg.WarehouseDelay = orDefault(cfg.WarehouseDelay, def.WarehouseDelay)
	cfg.PendingDelay = orDefault(cfg.PendingDelay, def.PendingDelay)
	cfg.Backoff1 = orDefault(cfg.Backoff1, def.Backoff1)
	cfg.Backoff2 = orDefault(cfg.Backoff2, def.Backoff2)
	cfg.Backoff3 = orDefault(cfg.Backoff3, def.Backoff3)
	cfg.Backoff4 = orDefault(cfg.Backoff4, def.Backoff4)
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// NextCheckDelay picks how long to wait before asking the remote again.
func (p *Planner) NextCheckDelay(status models.Status) time.Duration {
	switch status {
	case models.StatusDelivered:
		return p.cfg.DeliveredDelay
	case models.StatusInTransit, models.StatusOnReturn:
		min := p.cfg.InTransitMinDelay
		max := p.cfg.InTransitMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		if secMax < secMin {
			secMax = secMin
		}
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	case models.StatusInChinaWarehouse, models.StatusOnWayToWarehouse, models.StatusReceivedAtWarehouse:
		return p.cfg.WarehouseDelay
	default:
		return p.cfg.PendingDelay
	}
}

// WaitingDelay is used while the remote service does not know the number.
func (p *Planner) WaitingDelay() time.Duration {
	return p.cfg.PendingDelay
}

func (p *Planner) BackoffDelay(failCount int) time.Duration {
	switch {
	case failCount <= 1:
		return p.cfg.Backoff1
	case failCount == 2:
		return p.cfg.Backoff2
	case failCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
