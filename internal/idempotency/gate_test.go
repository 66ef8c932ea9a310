package idempotency

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"context"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisCache(client)
	store := NewMemoryStore(time.Now)
	return NewGate(cache, store, zap.NewNop())
}

func TestGate_FirstAttemptIsMiss(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()
	key := Key{TenantID: "default", Endpoint: "/api/v1/payments", ClientKey: "550e8400-e29b-41d4-a716-446655440000"}

	res, err := g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)
	require.Equal(t, DecisionMiss, res.Decision)
}

func TestGate_ConcurrentDuplicateIsProcessing(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()
	key := Key{TenantID: "default", Endpoint: "/api/v1/payments", ClientKey: "550e8400-e29b-41d4-a716-446655440000"}

	_, err := g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)

	res, err := g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)
	require.Equal(t, DecisionProcessing, res.Decision)
}

func TestGate_SamePayloadAfterStoreIsByteIdenticalHit(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()
	key := Key{TenantID: "default", Endpoint: "/api/v1/payments", ClientKey: "550e8400-e29b-41d4-a716-446655440000"}

	_, err := g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)

	response := []byte(`{"id":"123"}`)
	require.NoError(t, g.Store(ctx, key, "hash-a", response, 201, DefaultTTL))

	res, err := g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)
	require.Equal(t, DecisionHit, res.Decision)
	require.Equal(t, response, res.Response)
	require.Equal(t, 201, res.HTTPStatus)
}

func TestGate_DifferentPayloadIsConflict(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()
	key := Key{TenantID: "default", Endpoint: "/api/v1/payments", ClientKey: "550e8400-e29b-41d4-a716-446655440000"}

	_, err := g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)

	res, err := g.AcquireLock(ctx, key, "hash-b", DefaultTTL)
	require.NoError(t, err)
	require.Equal(t, DecisionConflict, res.Decision)
}

func TestGate_ReleaseLockAllowsRetry(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()
	key := Key{TenantID: "default", Endpoint: "/api/v1/payments", ClientKey: "550e8400-e29b-41d4-a716-446655440000"}

	_, err := g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)

	require.NoError(t, g.ReleaseLock(ctx, key))

	res, err := g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)
	require.Equal(t, DecisionMiss, res.Decision)
}

func TestGate_FallsBackToDurableTierWhenCacheErrors(t *testing.T) {
	store := NewMemoryStore(time.Now)
	g := NewGate(brokenCache{}, store, zap.NewNop())
	ctx := context.Background()
	key := Key{TenantID: "default", Endpoint: "/api/v1/payments", ClientKey: "550e8400-e29b-41d4-a716-446655440000"}

	res, err := g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)
	require.Equal(t, DecisionMiss, res.Decision)

	res, err = g.AcquireLock(ctx, key, "hash-a", DefaultTTL)
	require.NoError(t, err)
	require.Equal(t, DecisionProcessing, res.Decision)
}

type brokenCache struct{}

func (brokenCache) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, assertErr
}
func (brokenCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, assertErr }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error { return assertErr }
func (brokenCache) Del(context.Context, string) error                        { return assertErr }

var assertErr = errDown{}

type errDown struct{}

func (errDown) Error() string { return "cache down" }
