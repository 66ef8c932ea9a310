package credit

import (
	"context"
	"time"
)

// Reservation tracks a RESERVE ledger entry's disposition, so Confirm/
// Cancel can re-check it hasn't already been settled (spec §4.5:
// "Both re-check that the reservation has not already been
// confirmed/cancelled (idempotent)").
type Reservation struct {
	ID        string
	TenantID  string
	UserID    string
	Amount    int64
	Status    ReservationStatus
	CreatedAt time.Time
}

type ReservationStatus string

const (
	ReservationOpen      ReservationStatus = "OPEN"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Repository is the persistence contract the application service depends
// on; the GORM implementation lives in internal/repository.
type Repository interface {
	// GetOrCreate loads the Credit row for a user, creating a
	// zero-balance row on first use.
	GetOrCreate(ctx context.Context, tenantID, userID string) (*Credit, error)

	// Update persists a Credit row with optimistic locking, appends the
	// given ledger entry, and (for Reserve) records the reservation row.
	// Callers must treat a version conflict as a retryable error.
	Update(ctx context.Context, c *Credit, entry LedgerEntry) error

	// GetReservation loads a reservation by id for idempotent
	// Confirm/Cancel re-checks.
	GetReservation(ctx context.Context, tenantID, reservationID string) (*Reservation, error)

	// MarkReservation transitions a reservation to CONFIRMED/CANCELLED.
	MarkReservation(ctx context.Context, tenantID, reservationID string, status ReservationStatus) error

	// Ledger returns all ledger entries for a user, oldest first, for
	// balance reconstruction and audits.
	Ledger(ctx context.Context, tenantID, userID string) ([]LedgerEntry, error)
}
