package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the collaborator the application service depends on; the
// GORM implementation lives in internal/repository.
type Repository interface {
	Save(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, tenantID, userID string, page, limit int) ([]*Order, int64, error)
}
