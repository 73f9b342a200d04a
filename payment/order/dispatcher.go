package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-cryptopay/payment/chain"
	"go-cryptopay/payment/config"
	"go-cryptopay/payment/db"
)

// OrderStore is what the engine needs from persistence.
type OrderStore interface {
	SelectDueOrders(ctx context.Context, limit int, checkedBefore time.Time) ([]db.Order, error)
	MarkConfirmed(ctx context.Context, orderID string) error
	MarkFailed(ctx context.Context, orderID string) error
	TouchLastChecked(ctx context.Context, orderID string, at time.Time) error
}

type VerifierRouter interface {
	For(c chain.Chain, t chain.Token) (chain.Verifier, error)
}

// Outcome is what the dispatcher did with one order.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
	OutcomeWaiting   Outcome = "waiting"
	OutcomeError     Outcome = "error"
)

const touchTimeout = 5 * time.Second

// Dispatcher verifies one order and applies the status policy:
//
//	Confirmed -> success (verify=true)
//	Rejected  -> failed once older than MaxPendingDuration, otherwise unchanged
//	Pending   -> unchanged, or failed past the deadline under PendingExpire
//	error     -> unchanged, retried on a later poll
type Dispatcher struct {
	store              OrderStore
	router             VerifierRouter
	maxPendingDuration time.Duration
	pendingPolicy      config.PendingPolicy
	metrics            *Metrics
	logger             *zap.Logger
	now                func() time.Time
}

func NewDispatcher(store OrderStore, router VerifierRouter, cfg *config.Config, metrics *Metrics, logger *zap.Logger) *Dispatcher {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		store:              store,
		router:             router,
		maxPendingDuration: cfg.MaxPendingDuration,
		pendingPolicy:      cfg.PendingPolicy,
		metrics:            metrics,
		logger:             logger.With(zap.String("module", "dispatcher")),
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// Process runs one verification pass for o. LastCheckedAt is refreshed exactly
// once whatever happens, so a failing order is not picked again on the next tick.
func (d *Dispatcher) Process(ctx context.Context, o db.Order) (outcome Outcome, err error) {
	logger := d.logger.With(zap.String("order_id", o.OrderID), zap.String("chain", o.Chain))

	defer func() {
		if r := recover(); r != nil {
			outcome, err = OutcomeError, fmt.Errorf("verifier panic: %v", r)
		}

		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
		defer cancel()
		if touchErr := d.store.TouchLastChecked(touchCtx, o.OrderID, d.now()); touchErr != nil {
			logger.Error("failed to refresh last checked time", zap.Error(touchErr))
		}

		if err != nil {
			d.metrics.errors.WithLabelValues(o.Chain).Inc()
			logger.Error("verification failed", zap.Error(err))
		}
	}()

	verdict, err := d.verify(ctx, o)
	if err != nil {
		return OutcomeError, err
	}
	d.metrics.verifications.WithLabelValues(o.Chain, o.Token, verdict.String()).Inc()

	switch verdict {
	case chain.Confirmed:
		if err := d.store.MarkConfirmed(ctx, o.OrderID); err != nil {
			return OutcomeError, fmt.Errorf("mark confirmed: %w", err)
		}
		d.metrics.transitions.WithLabelValues(db.StatusSuccess).Inc()
		logger.Info("payment confirmed", zap.String("tx_hash", o.Hash()))
		return OutcomeConfirmed, nil

	case chain.Rejected:
		return d.failIfExpired(ctx, o, logger, "payment rejected")

	default:
		if d.pendingPolicy == config.PendingExpire {
			return d.failIfExpired(ctx, o, logger, "payment still pending")
		}
		logger.Debug("payment pending")
		return OutcomeWaiting, nil
	}
}

func (d *Dispatcher) verify(ctx context.Context, o db.Order) (chain.Verdict, error) {
	p, err := toPayment(o)
	if err != nil {
		// an order the engine cannot route never becomes valid; let it expire
		d.logger.Warn("unverifiable order", zap.String("order_id", o.OrderID), zap.Error(err))
		return chain.Rejected, nil
	}

	v, err := d.router.For(p.Chain, p.Token)
	if errors.Is(err, chain.ErrUnsupportedRoute) {
		d.logger.Warn("no verifier for order", zap.String("order_id", o.OrderID), zap.Error(err))
		return chain.Rejected, nil
	}
	if err != nil {
		return chain.Pending, err
	}
	return v.Verify(ctx, p)
}

func (d *Dispatcher) failIfExpired(ctx context.Context, o db.Order, logger *zap.Logger, reason string) (Outcome, error) {
	elapsed := d.now().Sub(o.Timestamp)
	if elapsed <= d.maxPendingDuration {
		logger.Debug(reason, zap.Duration("elapsed", elapsed))
		return OutcomeWaiting, nil
	}

	if err := d.store.MarkFailed(ctx, o.OrderID); err != nil {
		return OutcomeError, fmt.Errorf("mark failed: %w", err)
	}
	d.metrics.transitions.WithLabelValues(db.StatusFailed).Inc()
	logger.Info(reason+", order expired", zap.Duration("elapsed", elapsed))
	return OutcomeFailed, nil
}

func toPayment(o db.Order) (chain.Payment, error) {
	c, err := chain.ParseChain(o.Chain)
	if err != nil {
		return chain.Payment{}, err
	}
	t, err := chain.ParseToken(o.Token)
	if err != nil {
		return chain.Payment{}, err
	}
	if o.Hash() == "" {
		return chain.Payment{}, fmt.Errorf("%w: no transaction hash", ErrInvalidOrder)
	}
	return chain.Payment{
		OrderID:   o.OrderID,
		Chain:     c,
		Token:     t,
		Sender:    o.Sender,
		Recipient: o.Recipient,
		Amount:    o.Amount,
		TxHash:    o.Hash(),
	}, nil
}
