// Package order is the Order aggregate from spec §3, styled after the
// teacher's internal/domain/payment package: private fields, explicit
// getters, state-transition methods that return typed errors instead of
// silently no-oping, and a Reconstitute constructor for repository
// rehydration.
package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// LineItem is an immutable entry of an Order.
type LineItem struct {
	ProductID string
	Quantity  int64
	UnitPrice int64
}

func (li LineItem) subtotal() int64 {
	return li.Quantity * li.UnitPrice
}

// Order is the aggregate root for a billable request.
type Order struct {
	id          uuid.UUID
	tenantID    string
	userID      string
	currency    string
	lineItems   []LineItem
	totalAmount int64
	status      Status
	metadata    map[string]string
	createdAt   time.Time
	updatedAt   time.Time
	paidAt      *time.Time
	completedAt *time.Time
}

// New creates a PENDING order, deriving totalAmount from the line items.
// Per spec §3, line_items must be non-empty and total_amount must be
// non-negative (always true for positive quantities and non-negative unit
// prices).
func New(tenantID, userID, currency string, lineItems []LineItem, metadata map[string]string) (*Order, error) {
	if len(lineItems) == 0 {
		return nil, apperr.NewValidationError("ORD_002", "order must have at least one line item")
	}

	var total int64
	for _, li := range lineItems {
		if li.Quantity <= 0 || li.UnitPrice < 0 {
			return nil, apperr.NewValidationError("ORD_002", "line item quantity must be positive and unit price non-negative")
		}
		total += li.subtotal()
	}

	now := time.Now().UTC()
	return &Order{
		id:          uuid.New(),
		tenantID:    tenantID,
		userID:      userID,
		currency:    currency,
		lineItems:   lineItems,
		totalAmount: total,
		status:      StatusPending,
		metadata:    metadata,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// --- Getters ---

func (o *Order) ID() uuid.UUID              { return o.id }
func (o *Order) TenantID() string           { return o.tenantID }
func (o *Order) UserID() string             { return o.userID }
func (o *Order) Currency() string           { return o.currency }
func (o *Order) LineItems() []LineItem      { return o.lineItems }
func (o *Order) TotalAmount() int64         { return o.totalAmount }
func (o *Order) Status() Status             { return o.status }
func (o *Order) Metadata() map[string]string { return o.metadata }
func (o *Order) CreatedAt() time.Time       { return o.createdAt }
func (o *Order) UpdatedAt() time.Time       { return o.updatedAt }
func (o *Order) PaidAt() *time.Time         { return o.paidAt }
func (o *Order) CompletedAt() *time.Time    { return o.completedAt }

// --- Behavior / State Transitions ---

// MarkPaid transitions PENDING -> PAID once the payment settles.
func (o *Order) MarkPaid() error {
	if o.status != StatusPending {
		return apperr.NewInvalidStateError("ORD_003", string(o.status), string(StatusPaid))
	}
	now := time.Now().UTC()
	o.status = StatusPaid
	o.paidAt = &now
	o.updatedAt = now
	return nil
}

// Complete transitions PAID -> COMPLETED once downstream service
// execution has succeeded.
func (o *Order) Complete() error {
	if o.status != StatusPaid {
		return apperr.NewInvalidStateError("ORD_003", string(o.status), string(StatusCompleted))
	}
	now := time.Now().UTC()
	o.status = StatusCompleted
	o.completedAt = &now
	o.updatedAt = now
	return nil
}

// Cancel transitions PENDING -> CANCELLED; used when payment never
// starts (e.g. client abandons checkout).
func (o *Order) Cancel() error {
	if o.status != StatusPending {
		return apperr.NewInvalidStateError("ORD_003", string(o.status), string(StatusCancelled))
	}
	now := time.Now().UTC()
	o.status = StatusCancelled
	o.updatedAt = now
	return nil
}

// Fail transitions any non-terminal status to FAILED, used by saga
// compensation when payment or service execution cannot be completed.
func (o *Order) Fail() error {
	if o.status == StatusCompleted || o.status == StatusCancelled || o.status == StatusFailed {
		return apperr.NewInvalidStateError("ORD_003", string(o.status), string(StatusFailed))
	}
	now := time.Now().UTC()
	o.status = StatusFailed
	o.updatedAt = now
	return nil
}

// Reconstitute rebuilds an Order from persisted data.
func Reconstitute(
	id uuid.UUID,
	tenantID, userID, currency string,
	lineItems []LineItem,
	totalAmount int64,
	status Status,
	metadata map[string]string,
	createdAt, updatedAt time.Time,
	paidAt, completedAt *time.Time,
) *Order {
	return &Order{
		id:          id,
		tenantID:    tenantID,
		userID:      userID,
		currency:    currency,
		lineItems:   lineItems,
		totalAmount: totalAmount,
		status:      status,
		metadata:    metadata,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		paidAt:      paidAt,
		completedAt: completedAt,
	}
}
