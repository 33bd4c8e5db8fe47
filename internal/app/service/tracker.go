package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/aggregate"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/pkg/metrics"
	"networth_aggregator/internal/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTrackerRunning is returned by Run when the tracker loop is already active.
var ErrTrackerRunning = errors.New("tracker is already running")

// Subscription receives the latest tracked snapshot whenever the total changes.
// Slow readers only ever see the most recent snapshot.
type Subscription struct {
	ID string
	C  <-chan aggregate.Snapshot
}

// Tracker keeps the net worth of one selection up to date in the background.
// Changing the selection starts a new epoch; reports from earlier cycles are discarded.
type Tracker struct {
	portfolio *PortfolioServiceImpl
	interval  time.Duration
	logger    *zap.Logger
	sum       *aggregate.Sum
	kick      chan struct{}
	running   atomic.Bool

	mu       sync.Mutex
	sel      port.Selection
	plan     []contributor
	holdings []entity.ValuedHolding
	cancel   context.CancelFunc
	cycleID  uint64
	inFlight bool

	subsMu sync.Mutex
	subs   map[string]chan aggregate.Snapshot
}

// NewTracker creates a tracker that refreshes every interval.
func NewTracker(portfolio *PortfolioServiceImpl, interval time.Duration, logger *zap.Logger) *Tracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := &Tracker{
		portfolio: portfolio,
		interval:  interval,
		logger:    logger.Named("Tracker"),
		sum:       aggregate.NewSum(SumNetWorth, nil),
		kick:      make(chan struct{}, 1),
		subs:      make(map[string]chan aggregate.Snapshot),
	}
	t.sum.OnChange(t.publish)
	return t
}

// Select replaces the tracked selection and returns the new epoch. The cycle
// in flight for the previous selection is cancelled.
func (t *Tracker) Select(sel port.Selection) (uint64, error) {
	plan, err := t.portfolio.plan(kindHolding, sel)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.inFlight = false
	t.sel, t.plan, t.holdings = sel, plan, nil
	epoch := t.sum.Reset(contributorKeys(plan))
	t.mu.Unlock()

	t.logger.Info("Selection changed",
		zap.Uint64("epoch", epoch),
		zap.Int("accounts", len(sel.Accounts)),
		zap.Uint64s("chain_ids", sel.ChainIDs),
		zap.Int("contributors", len(plan)))

	select {
	case t.kick <- struct{}{}:
	default:
	}
	return epoch, nil
}

// Run refreshes the selection every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrTrackerRunning
	}
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("Tracker started", zap.Duration("interval", t.interval))
	t.startCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			if t.cancel != nil {
				t.cancel()
				t.cancel = nil
			}
			t.mu.Unlock()
			t.logger.Info("Tracker stopped")
			return nil
		case <-ticker.C:
			t.startCycle(ctx)
		case <-t.kick:
			t.startCycle(ctx)
		}
	}
}

// startCycle launches one evaluation of the current plan unless one is still running.
func (t *Tracker) startCycle(ctx context.Context) {
	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		t.logger.Debug("Previous cycle still running, skipping tick")
		return
	}
	cycleCtx, cancel := context.WithTimeout(ctx, t.portfolio.cycleTimeout)
	t.cancel = cancel
	t.cycleID++
	id := t.cycleID
	t.inFlight = true
	plan := t.plan
	epoch := t.sum.Epoch()
	t.mu.Unlock()

	go func() {
		defer cancel()
		holdings := t.portfolio.evaluate(cycleCtx, t.sum, epoch, plan)

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.sum.Epoch() == epoch {
			t.holdings = holdings
		}
		if t.cycleID == id {
			t.inFlight = false
			t.cancel = nil
		}
	}()
}

// Snapshot returns the tracked selection, the current sum and the holdings of the last finished cycle.
func (t *Tracker) Snapshot() (port.Selection, aggregate.Snapshot, []entity.ValuedHolding) {
	t.mu.Lock()
	sel := t.sel
	holdings := append([]entity.ValuedHolding(nil), t.holdings...)
	t.mu.Unlock()
	return sel, t.sum.Snapshot(), holdings
}

// Subscribe registers a listener. The current snapshot is delivered immediately.
func (t *Tracker) Subscribe() Subscription {
	ch := make(chan aggregate.Snapshot, 1)
	id := uuid.NewString()
	ch <- t.sum.Snapshot()

	t.subsMu.Lock()
	t.subs[id] = ch
	t.subsMu.Unlock()
	return Subscription{ID: id, C: ch}
}

// Unsubscribe removes a listener and closes its channel.
func (t *Tracker) Unsubscribe(id string) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
	}
}

func (t *Tracker) publish(snap aggregate.Snapshot) {
	metrics.AggregateTotalUSD.WithLabelValues(snap.Name).Set(utils.USDFloat(snap.Total))
	complete := 0.0
	if snap.Complete {
		complete = 1
	}
	metrics.AggregateComplete.WithLabelValues(snap.Name).Set(complete)

	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- snap:
		default:
			// replace the unread snapshot with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
