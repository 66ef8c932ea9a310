package refund

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract the application service
// depends on; the GORM implementation lives in internal/repository.
type Repository interface {
	Save(ctx context.Context, r *Refund) error
	Update(ctx context.Context, r *Refund) error
	FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*Refund, error)
	ListByPayment(ctx context.Context, tenantID string, paymentID uuid.UUID) ([]*Refund, error)

	// SumCompleted returns the total of COMPLETED refund amounts for a
	// payment, used to enforce spec §3's "sum of completed refunds <=
	// payment amount" invariant.
	SumCompleted(ctx context.Context, tenantID string, paymentID uuid.UUID) (int64, error)
}
