// Package idempotency implements the two-tier idempotency gate from
// spec §4.1: a fast cache tier plus a durable relational tier, used to
// deduplicate client retries, detect payload conflicts, and serialize
// concurrent duplicate attempts.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Decision is the outcome of AcquireLock.
type Decision string

const (
	DecisionMiss       Decision = "MISS"
	DecisionHit        Decision = "HIT"
	DecisionConflict   Decision = "CONFLICT"
	DecisionProcessing Decision = "PROCESSING"
)

// DefaultTTL is the default idempotency record lifetime (spec §4.1).
const DefaultTTL = 24 * time.Hour

// Key identifies a single idempotency slot: (tenant, endpoint, client key).
type Key struct {
	TenantID string
	Endpoint string
	ClientKey string
}

// Record is the durable-tier row (§3 IdempotencyRecord). A record with a
// zero Response is "in-flight"; a non-nil Response with HTTPStatus set is
// "completed". Absence (no row, or ExpiresAt <= now) is "absent/expired".
type Record struct {
	TenantID   string
	Endpoint   string
	ClientKey  string
	PayloadHash string
	Response   []byte
	HTTPStatus int
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// HashPayload computes the canonical payload hash used to detect
// same-key-different-body conflicts (spec §4.1).
func HashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Result is returned by AcquireLock.
type Result struct {
	Decision   Decision
	Response   []byte
	HTTPStatus int
}

// Store is the durable-tier contract; implemented over the relational
// store in internal/repository.
type Store interface {
	// InsertPlaceholder creates an in-flight row. Must fail (ErrAlreadyExists)
	// if a live row already exists for the key.
	InsertPlaceholder(ctx context.Context, key Key, payloadHash string, ttl time.Duration) error

	// Get returns the record for key, or ErrNotFound if absent/expired.
	Get(ctx context.Context, key Key) (*Record, error)

	// Complete writes the completed response onto the existing row.
	Complete(ctx context.Context, key Key, payloadHash string, response []byte, status int, ttl time.Duration) error

	// Delete removes the row (used by ReleaseLock).
	Delete(ctx context.Context, key Key) error
}

// ErrNotFound is returned by Store.Get when no live record exists.
var ErrNotFound = recordNotFoundError{}

type recordNotFoundError struct{}

func (recordNotFoundError) Error() string { return "idempotency record not found" }

// ErrAlreadyExists is returned by Store.InsertPlaceholder on a UNIQUE
// constraint collision (concurrent first attempt already in flight).
var ErrAlreadyExists = recordExistsError{}

type recordExistsError struct{}

func (recordExistsError) Error() string { return "idempotency record already exists" }
