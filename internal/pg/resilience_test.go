package pg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

func TestResilientClient_HappyPathDelegatesToInner(t *testing.T) {
	inner := NewMockClient(zap.NewNop())
	rc := NewResilientClient(inner, DefaultResilienceConfig(), zap.NewNop())

	res, err := rc.RequestApproval(context.Background(), "order-1", 1000, "KRW", "CARD")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.NotEmpty(t, res.PGTransactionID)
}

func TestResilientClient_OpensBreakerAfterFailureRatioExceeded(t *testing.T) {
	inner := NewMockClient(zap.NewNop())
	inner.FailNext(100)

	cfg := DefaultResilienceConfig()
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	rc := NewResilientClient(inner, cfg, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := rc.RequestApproval(context.Background(), "order-1", 1000, "KRW", "CARD")
		require.Error(t, err)
	}

	_, err := rc.RequestApproval(context.Background(), "order-1", 1000, "KRW", "CARD")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "PAY_005", ae.Code)
}

func TestResilientClient_TimesOutOnSlowPG(t *testing.T) {
	inner := NewMockClient(zap.NewNop()).WithSleep(func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	cfg := DefaultResilienceConfig()
	cfg.TotalTimeout = 10 * time.Millisecond
	rc := NewResilientClient(inner, cfg, zap.NewNop())

	_, err := rc.RequestApproval(context.Background(), "order-1", 1000, "KRW", "CARD")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindTimeout, ae.Kind)
}

func TestResilientClient_RetriesCancelOnTransientFailure(t *testing.T) {
	inner := NewMockClient(zap.NewNop())
	inner.FailNext(1)

	cfg := DefaultResilienceConfig()
	rc := NewResilientClient(inner, cfg, zap.NewNop())

	err := rc.Cancel(context.Background(), "key-1", "test")
	require.NoError(t, err)
}
