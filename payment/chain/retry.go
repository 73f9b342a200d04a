package chain

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxTries        = 3
	DefaultCallTimeout     = 5 * time.Second
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
)

// Retrier runs one outbound call with a per-attempt timeout and a bounded
// number of attempts separated by jittered exponential backoff.
type Retrier struct {
	MaxTries        uint
	CallTimeout     time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter
	Logger  *zap.Logger
}

func NewRetrier(maxTries uint, callTimeout time.Duration, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		MaxTries:        maxTries,
		CallTimeout:     callTimeout,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Logger:          logger,
	}
}

func (r *Retrier) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		b.MaxInterval = r.MaxInterval
	}
	return b
}

// Retry calls fn until it succeeds, returns a permanent error, or the attempt
// budget is spent. ErrNotFound and ErrMalformed are never retried. The last
// transient error is returned wrapped in a NetworkError.
func Retry[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	maxTries := r.MaxTries
	if maxTries == 0 {
		maxTries = DefaultMaxTries
	}
	callTimeout := r.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	attempt := func() (T, error) {
		var zero T
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return zero, backoff.Permanent(err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		res, err := fn(callCtx)
		if err != nil && (errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed)) {
			return zero, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, next time.Duration) {
		logger.Warn("call failed, retrying", zap.String("op", op), zap.Duration("backoff", next), zap.Error(err))
	}

	res, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed) {
			return res, err
		}
		return res, &NetworkError{Op: op, Err: err}
	}
	return res, nil
}
