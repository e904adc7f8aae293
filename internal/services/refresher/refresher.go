// Package refresher periodically pulls remote statuses for claimed shipments.
package refresher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackLedger/internal/cache"
	"github.com/BearBump/TrackLedger/internal/integrations/remote"
	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/BearBump/TrackLedger/internal/services/shipments"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Source interface {
	ActiveNumbers() []shipments.ActiveNumber
	RefreshNumber(ctx context.Context, trackingNumber string) (models.Status, error)
}

// RateLimiter caps remote lookups per minute across all track-store instances.
type RateLimiter = cache.Limiter

type schedule struct {
	nextAt time.Time
	fails  int
}

type Refresher struct {
	src     Source
	rl      RateLimiter
	planner *Planner
	log     *zap.Logger
	now     func() time.Time

	interval           time.Duration
	batchSize          int
	concurrency        int
	rateLimitPerMinute int64

	triggerCh chan struct{}

	mu    sync.Mutex
	sched map[string]schedule

	startedAt           time.Time
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalChecked        atomic.Int64
	totalChanged        atomic.Int64
	totalWaiting        atomic.Int64
	totalThrottled      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(src Source, rl RateLimiter, log *zap.Logger) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Refresher{
		src:                src,
		rl:                 rl,
		planner:            NewPlanner(DefaultPlannerConfig(), nil),
		log:                log,
		now:                now,
		interval:           30 * time.Second,
		batchSize:          100,
		concurrency:        4,
		rateLimitPerMinute: 60,
		triggerCh:          make(chan struct{}, 1),
		sched:              map[string]schedule{},
		startedAt:          now(),
	}
}

func (r *Refresher) WithSettings(interval time.Duration, batchSize, concurrency int, rlPerMin int64) *Refresher {
	if interval > 0 {
		r.interval = interval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if rlPerMin > 0 {
		r.rateLimitPerMinute = rlPerMin
	}
	return r
}

func (r *Refresher) WithPlanner(p *Planner) *Refresher {
	if p != nil {
		r.planner = p
	}
	return r
}

// Trigger forces an immediate cycle with every active number due (non-blocking).
func (r *Refresher) Trigger() {
	r.lastTriggerUnixNano.Store(r.now().UnixNano())
	r.mu.Lock()
	r.sched = map[string]schedule{}
	r.mu.Unlock()
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	Scheduled      int        `json:"scheduled"`
	TotalChecked   int64      `json:"totalChecked"`
	TotalChanged   int64      `json:"totalChanged"`
	TotalWaiting   int64      `json:"totalWaiting"`
	TotalThrottled int64      `json:"totalThrottled"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Refresher) Stats() Stats {
	st := Stats{
		StartedAt:      r.startedAt,
		TotalChecked:   r.totalChecked.Load(),
		TotalChanged:   r.totalChanged.Load(),
		TotalWaiting:   r.totalWaiting.Load(),
		TotalThrottled: r.totalThrottled.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.mu.Lock()
	st.Scheduled = len(r.sched)
	r.mu.Unlock()
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Refresher) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runOnce(ctx)
		case <-r.triggerCh:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) due(now time.Time) []shipments.ActiveNumber {
	active := r.src.ActiveNumbers()

	r.mu.Lock()
	defer r.mu.Unlock()

	live := make(map[string]struct{}, len(active))
	var out []shipments.ActiveNumber
	for _, a := range active {
		live[a.TrackingNumber] = struct{}{}
		if sc, ok := r.sched[a.TrackingNumber]; ok && sc.nextAt.After(now) {
			continue
		}
		if len(out) < r.batchSize {
			out = append(out, a)
		}
	}
	// удалённые или доставленные номера больше не планируем
	for tn := range r.sched {
		if _, ok := live[tn]; !ok {
			delete(r.sched, tn)
		}
	}
	return out
}

func (r *Refresher) runOnce(ctx context.Context) {
	now := r.now()
	r.lastCycleUnixNano.Store(now.UnixNano())

	items := r.due(now)

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, it := range items {
		it := it
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := r.processOne(ctx, it); err != nil {
				r.totalErrors.Add(1)
				r.lastErrorMu.Lock()
				r.lastError = err.Error()
				r.lastErrorMu.Unlock()
				r.log.Error("refresh tracking", zap.String("tracking_number", it.TrackingNumber), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

func (r *Refresher) processOne(ctx context.Context, it shipments.ActiveNumber) error {
	now := r.now()

	if r.rl != nil && r.rateLimitPerMinute > 0 {
		minuteKey := "rl:remote:" + now.Format("200601021504")
		allowed, n, err := r.rl.Allow(ctx, minuteKey, r.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return errors.Wrap(err, "rate limit")
		}
		if !allowed {
			// номер остаётся due и уйдёт в следующем цикле
			r.totalThrottled.Add(1)
			r.log.Debug("remote rate limit exceeded", zap.Int64("count", n))
			return nil
		}
	}

	status, err := r.src.RefreshNumber(ctx, it.TrackingNumber)
	r.totalChecked.Add(1)

	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.sched[it.TrackingNumber]
	switch {
	case errors.Is(err, remote.ErrNotFound):
		r.totalWaiting.Add(1)
		sc.fails = 0
		sc.nextAt = now.Add(r.planner.WaitingDelay())
		err = nil
	case err != nil:
		sc.fails++
		sc.nextAt = now.Add(r.planner.BackoffDelay(sc.fails))
	default:
		if status != it.Status {
			r.totalChanged.Add(1)
		}
		sc.fails = 0
		sc.nextAt = now.Add(r.planner.NextCheckDelay(status))
	}
	r.sched[it.TrackingNumber] = sc
	return err
}
