// schedule verification of paid orders against the chains

package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"go-cryptopay/payment/config"
	"go-cryptopay/payment/db"
)

type processor interface {
	Process(ctx context.Context, o db.Order) (Outcome, error)
}

// Scheduler polls the store every interval and verifies due orders one at a time.
// A poll never starts while the previous one is still draining its batch.
type Scheduler struct {
	store           OrderStore
	dispatcher      processor
	lock            TickLock
	interval        time.Duration
	limit           int
	recheckInterval time.Duration
	metrics         *Metrics
	logger          *zap.Logger
	now             func() time.Time

	running atomic.Bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewScheduler(store OrderStore, dispatcher processor, cfg *config.Config, lock TickLock, metrics *Metrics, logger *zap.Logger) *Scheduler {
	if lock == nil {
		lock = noopLock{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Scheduler{
		store:           store,
		dispatcher:      dispatcher,
		lock:            lock,
		interval:        cfg.PollInterval,
		limit:           cfg.BatchLimit,
		recheckInterval: cfg.RecheckInterval,
		metrics:         metrics,
		logger:          logger.With(zap.String("module", "scheduler")),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Start polls in the background until ctx is cancelled or GracefulStop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		s.logger.Info("scheduler started", zap.Duration("interval", s.interval), zap.Int("limit", s.limit))
		for {
			select {
			case <-ticker.C:
				if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
					s.logger.Error("poll failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// GracefulStop stops polling and waits for the batch in flight.
func (s *Scheduler) GracefulStop() {
	s.logger.Info("shutting down")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("shutdown complete")
}

// Tick selects one batch of due orders and processes them sequentially. It
// returns ErrTickInProgress without touching the store if another tick runs.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.pollSkipped.Inc()
		return 0, ErrTickInProgress
	}
	defer s.running.Store(false)

	lease, ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		s.metrics.pollSkipped.Inc()
		return 0, ErrTickInProgress
	}
	defer releaseLease(ctx, lease, s.logger)

	start := time.Now()
	defer func() { s.metrics.pollDuration.Observe(time.Since(start).Seconds()) }()

	orders, err := s.store.SelectDueOrders(ctx, s.limit, s.now().Add(-s.recheckInterval))
	if err != nil {
		return 0, err
	}
	if len(orders) == 0 {
		return 0, nil
	}
	s.logger.Debug("checking orders", zap.Int("count", len(orders)))

	processed := 0
	for i, o := range orders {
		if ctx.Err() != nil {
			break
		}
		// the lease must outlive the order about to be verified
		if i > 0 {
			if err := lease.Extend(ctx); err != nil {
				return processed, fmt.Errorf("batch stopped after %d orders: %w", processed, err)
			}
		}
		// errors are logged by the dispatcher and must not stop the batch
		outcome, _ := s.dispatcher.Process(ctx, o)
		s.logger.Debug("order processed", zap.String("order_id", o.OrderID), zap.String("outcome", string(outcome)))
		processed++
	}
	return processed, nil
}

func releaseLease(ctx context.Context, lease Lease, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		logger.Warn("failed to release tick lock", zap.Error(err))
	}
}
