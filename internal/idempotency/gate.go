package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Gate is the two-tier idempotency gate described in spec §4.1.
type Gate struct {
	cache  Cache
	store  Store
	logger *zap.Logger
}

func NewGate(cache Cache, store Store, logger *zap.Logger) *Gate {
	return &Gate{cache: cache, store: store, logger: logger}
}

func cacheKey(k Key) string {
	return "idemp:" + k.TenantID + ":" + k.Endpoint + ":" + k.ClientKey
}

// AcquireLock implements spec §4.1's acquire_lock operation.
func (g *Gate) AcquireLock(ctx context.Context, key Key, payloadHash string, ttl time.Duration) (Result, error) {
	ck := cacheKey(key)

	entry := cacheEntry{PayloadHash: payloadHash, Status: "processing"}
	raw, err := encodeEntry(entry)
	if err != nil {
		return Result{}, err
	}

	set, cacheErr := g.cache.SetNX(ctx, ck, raw, ttl)
	if cacheErr != nil {
		g.logger.Warn("idempotency fast tier error, falling back to durable tier", zap.Error(cacheErr))
		return g.acquireFromStore(ctx, key, payloadHash, ttl)
	}

	if set {
		// Best-effort durable placeholder; the durable tier is authoritative
		// if the fast tier later disappears (TTL eviction, restart, ...).
		if err := g.store.InsertPlaceholder(ctx, key, payloadHash, ttl); err != nil {
			g.logger.Warn("failed to write durable idempotency placeholder", zap.Error(err))
		}
		return Result{Decision: DecisionMiss}, nil
	}

	existing, ok, err := g.cache.Get(ctx, ck)
	if err != nil {
		g.logger.Warn("idempotency fast tier read error, falling back to durable tier", zap.Error(err))
		return g.acquireFromStore(ctx, key, payloadHash, ttl)
	}
	if !ok {
		// Lost a race against TTL expiry between SetNX and Get; retry once
		// against the durable tier rather than spuriously reporting MISS twice.
		return g.acquireFromStore(ctx, key, payloadHash, ttl)
	}

	ce, err := decodeEntry(existing)
	if err != nil {
		return Result{}, err
	}

	return decideFromEntry(ce, payloadHash), nil
}

func (g *Gate) acquireFromStore(ctx context.Context, key Key, payloadHash string, ttl time.Duration) (Result, error) {
	rec, err := g.store.Get(ctx, key)
	if err == ErrNotFound {
		if insErr := g.store.InsertPlaceholder(ctx, key, payloadHash, ttl); insErr != nil {
			if insErr == ErrAlreadyExists {
				// Lost the race; re-read and decide.
				rec, err = g.store.Get(ctx, key)
				if err != nil {
					return Result{}, err
				}
				return decideFromRecord(rec, payloadHash), nil
			}
			return Result{}, insErr
		}
		return Result{Decision: DecisionMiss}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return decideFromRecord(rec, payloadHash), nil
}

func decideFromEntry(ce cacheEntry, payloadHash string) Result {
	if ce.PayloadHash != payloadHash {
		return Result{Decision: DecisionConflict}
	}
	if ce.Status != "completed" {
		return Result{Decision: DecisionProcessing}
	}
	return Result{Decision: DecisionHit, Response: ce.Response, HTTPStatus: ce.HTTPStatus}
}

func decideFromRecord(rec *Record, payloadHash string) Result {
	if rec.PayloadHash != payloadHash {
		return Result{Decision: DecisionConflict}
	}
	if len(rec.Response) == 0 {
		return Result{Decision: DecisionProcessing}
	}
	return Result{Decision: DecisionHit, Response: rec.Response, HTTPStatus: rec.HTTPStatus}
}

// Store implements spec §4.1's store operation: the durable write must
// succeed for the call to succeed; the fast-tier write is logged-but-non-fatal.
func (g *Gate) Store(ctx context.Context, key Key, payloadHash string, response []byte, status int, ttl time.Duration) error {
	if err := g.store.Complete(ctx, key, payloadHash, response, status, ttl); err != nil {
		return err
	}

	entry := cacheEntry{PayloadHash: payloadHash, Status: "completed", Response: response, HTTPStatus: status}
	raw, err := encodeEntry(entry)
	if err != nil {
		return nil // durable write already succeeded; encoding the cache mirror is non-fatal
	}
	if err := g.cache.Set(ctx, cacheKey(key), raw, ttl); err != nil {
		g.logger.Warn("failed to mirror idempotency response into fast tier", zap.Error(err))
	}
	return nil
}

// ReleaseLock implements spec §4.1's release_lock operation: removes the
// placeholder from both tiers, used on upstream exceptions before any
// state change has been committed.
func (g *Gate) ReleaseLock(ctx context.Context, key Key) error {
	if err := g.cache.Del(ctx, cacheKey(key)); err != nil {
		g.logger.Warn("failed to release fast tier idempotency lock", zap.Error(err))
	}
	return g.store.Delete(ctx, key)
}
