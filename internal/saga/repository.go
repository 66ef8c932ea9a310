package saga

import (
	"context"
	"time"
)

// Repository is the persistence collaborator the Engine depends on. The
// GORM implementation lives in internal/repository.
type Repository interface {
	// FindByCorrelation returns an existing instance for
	// (tenantID, correlationID) if one exists, implementing spec §4.3's
	// "retry with the same correlation returns the existing instance"
	// dedup rule.
	FindByCorrelation(ctx context.Context, tenantID, correlationID string) (*Instance, error)

	// Create inserts a new STARTED instance plus its PENDING step rows,
	// atomically.
	Create(ctx context.Context, instance *Instance, steps []StepRecord) error

	// ClaimNext claims one instance owned by no one (or whose lease has
	// expired) via
	// UPDATE ... WHERE status IN (STARTED, PROCESSING) AND claim_lease < now,
	// setting a fresh claim_lease. Returns nil, nil if nothing claimable.
	ClaimNext(ctx context.Context, now time.Time, leaseDuration time.Duration) (*Instance, error)

	// Get loads an instance and its steps by id.
	Get(ctx context.Context, sagaID string) (*Instance, []StepRecord, error)

	// UpdateInstance persists instance status/current_step/context/error.
	UpdateInstance(ctx context.Context, instance *Instance) error

	// UpdateStep persists a single step's status/data/error.
	UpdateStep(ctx context.Context, step *StepRecord) error
}
