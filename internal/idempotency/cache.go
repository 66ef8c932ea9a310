package idempotency

import (
	"context"
	"encoding/json"
	"time"
)

// cacheEntry is what the fast tier stores: either an in-flight marker or a
// completed response, matching spec §4.1's "processing"/response states.
type cacheEntry struct {
	PayloadHash string `json:"hash"`
	Status      string `json:"status"` // "processing" | "completed"
	Response    []byte `json:"response,omitempty"`
	HTTPStatus  int    `json:"http_status,omitempty"`
}

// Cache is the fast-tier collaborator interface from spec §6
// (Cache.setNX/get/del), scoped to whatever raw bytes the idempotency gate
// needs to stash.
type Cache interface {
	// SetNX atomically sets key to value with the given TTL only if absent.
	// Returns false if a live key already existed (no write performed).
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the stored value, or ok=false if absent/expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set overwrites key unconditionally, refreshing its TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes key.
	Del(ctx context.Context, key string) error
}

func encodeEntry(e cacheEntry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(raw []byte) (cacheEntry, error) {
	var e cacheEntry
	err := json.Unmarshal(raw, &e)
	return e, err
}
