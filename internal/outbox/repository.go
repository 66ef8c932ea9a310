package outbox

import (
	"context"
	"time"
)

// Repository is the collaborator the publisher and janitor depend on. The
// GORM implementation lives in internal/repository and is responsible for
// the SELECT ... FOR UPDATE SKIP LOCKED claim semantics spec §4.2 requires.
type Repository interface {
	// Insert writes a PENDING row. Callers are expected to run this inside
	// the same transaction as the aggregate state change it records.
	Insert(ctx context.Context, event Event) error

	// ClaimBatch atomically selects up to limit PENDING rows (oldest
	// first), flips them to PROCESSING with claimedAt=now, and returns
	// them. Implemented with FOR UPDATE SKIP LOCKED so concurrent
	// publisher instances never claim the same row.
	ClaimBatch(ctx context.Context, limit int) ([]Event, error)

	// MarkPublished transitions a claimed row to PUBLISHED.
	MarkPublished(ctx context.Context, eventID string, publishedAt time.Time) error

	// MarkFailedAttempt increments retry_count and either resets the row
	// to PENDING with next_attempt_at pushed out by Backoff(retry_count)
	// (more attempts remain) or moves it to FAILED (max exceeded),
	// recording lastErr either way.
	MarkFailedAttempt(ctx context.Context, eventID string, maxRetries int, lastErr string) error

	// ReclaimStuck resets PROCESSING rows whose claimedAt is older than
	// olderThan back to PENDING, for janitor crash recovery.
	ReclaimStuck(ctx context.Context, olderThan time.Time) (int64, error)

	// DeletePublishedBefore purges PUBLISHED rows older than the given
	// time, bounding outbox table growth.
	DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error)

	// ListByStatus returns the most recent rows in the given status, for
	// the admin observability endpoint. An empty status returns all rows.
	ListByStatus(ctx context.Context, tenantID string, status Status, page, limit int) ([]Event, int64, error)
}
