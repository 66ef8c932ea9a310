package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for Payment aggregates.
type Repository interface {
	// FindByID retrieves a payment by its unique ID, tenant-scoped.
	FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*Payment, error)

	// FindByOrderID retrieves the (at most one, spec §3 unique constraint)
	// payment for an order.
	FindByOrderID(ctx context.Context, tenantID string, orderID uuid.UUID) (*Payment, error)

	// FindByPGTransactionID looks up the payment a gateway webhook
	// delivery refers to.
	FindByPGTransactionID(ctx context.Context, tenantID, pgTransactionID string) (*Payment, error)

	// ListAll retrieves payments with pagination, for admin observability.
	ListAll(ctx context.Context, tenantID string, page, limit int) ([]*Payment, int64, error)

	// Save persists a new payment aggregate.
	Save(ctx context.Context, p *Payment) error

	// Update persists changes to an existing payment aggregate with
	// optimistic locking: callers must treat a zero RowsAffected as a
	// version conflict.
	Update(ctx context.Context, p *Payment) error
}
