package pg

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

// ResilienceConfig mirrors spec §4.4's resilience wrapper knobs.
type ResilienceConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TotalTimeout   time.Duration
	BulkheadLimit  int

	BreakerFailureRatio float64
	BreakerMinRequests  uint32
	BreakerOpenDuration time.Duration

	RetryMaxElapsed time.Duration
}

func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		ConnectTimeout:      3 * time.Second,
		ReadTimeout:         10 * time.Second,
		TotalTimeout:        15 * time.Second,
		BulkheadLimit:       50,
		BreakerFailureRatio: 0.5,
		BreakerMinRequests:  10,
		BreakerOpenDuration: 30 * time.Second,
		RetryMaxElapsed:     7 * time.Second, // covers the 1s/2s/4s backoff schedule
	}
}

// ResilientClient wraps a vendor Client with timeouts, a circuit
// breaker, bounded retry on safe operations only, and a bulkhead, per
// spec §4.4's "Resilience wrapper". It implements Client itself so
// callers depend on the same interface regardless of wrapping.
type ResilientClient struct {
	inner   Client
	cfg     ResilienceConfig
	breaker *gobreaker.CircuitBreaker[any]
	sem     chan struct{}
	logger  *zap.Logger
}

func NewResilientClient(inner Client, cfg ResilienceConfig, logger *zap.Logger) *ResilientClient {
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "pg_client",
		Timeout: cfg.BreakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("pg circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &ResilientClient{
		inner:   inner,
		cfg:     cfg,
		breaker: breaker,
		sem:     make(chan struct{}, cfg.BulkheadLimit),
		logger:  logger,
	}
}

func (r *ResilientClient) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ResilientClient) release() { <-r.sem }

// withTimeout derives a deadline bounded by cfg.TotalTimeout from ctx,
// per spec §4.4 ("Exceeded -> synthetic failure returned to caller,
// original call cancelled").
func (r *ResilientClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.TotalTimeout)
}

// call runs fn through the bulkhead and circuit breaker, translating
// breaker-open and timeout outcomes into typed apperr values.
func (r *ResilientClient) call(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, apperr.NewTimeoutError("SYS_004", "pg bulkhead: context cancelled waiting for a slot")
	}
	defer r.release()

	cctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return fn(cctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, apperr.NewUpstreamError("PAY_005", "pg circuit breaker open", err)
	}
	if err != nil {
		if cctx.Err() != nil {
			return nil, apperr.NewTimeoutError("SYS_003", "pg call timed out")
		}
		return nil, apperr.NewUpstreamError("PAY_005", "pg call failed", err)
	}
	return result, nil
}

// callWithRetry is like call but retries the operation with exponential
// backoff and jitter, for the safe idempotent operations only (spec
// §4.4: "Retries only safe, explicitly idempotent PG operations (cancel,
// refund); approval/confirm are not retried automatically").
func (r *ResilientClient) callWithRetry(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = r.cfg.RetryMaxElapsed

	var result interface{}
	operation := func() error {
		res, err := r.call(ctx, fn)
		if err != nil {
			if ae, ok := apperr.As(err); ok && ae.Kind == apperr.KindUpstream {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if ae, ok := apperr.As(err); ok {
			return nil, ae
		}
		return nil, apperr.NewUpstreamError("PAY_005", "pg call failed after retries", err)
	}
	return result, nil
}

func (r *ResilientClient) RequestApproval(ctx context.Context, orderRef string, amount int64, currency, method string) (ApprovalResult, error) {
	res, err := r.call(ctx, func(ctx context.Context) (interface{}, error) {
		return r.inner.RequestApproval(ctx, orderRef, amount, currency, method)
	})
	if err != nil {
		return ApprovalResult{}, err
	}
	return res.(ApprovalResult), nil
}

func (r *ResilientClient) Confirm(ctx context.Context, pgKey string) error {
	_, err := r.call(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, r.inner.Confirm(ctx, pgKey)
	})
	return err
}

func (r *ResilientClient) Cancel(ctx context.Context, pgKey, reason string) error {
	_, err := r.callWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, r.inner.Cancel(ctx, pgKey, reason)
	})
	return err
}

func (r *ResilientClient) Refund(ctx context.Context, pgKey string, amount int64, reason string) (string, error) {
	res, err := r.callWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return r.inner.Refund(ctx, pgKey, amount, reason)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}
