// Package refund is the Refund aggregate from spec §3, following the same
// private-field/getter/state-transition shape as the order and payment
// aggregates.
package refund

import (
	"time"

	"github.com/google/uuid"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Refund is a requested refund against a settled Payment. Spec §3
// invariant: sum of completed refund amounts for a payment never
// exceeds the payment amount; enforced by the caller (application
// service) which has visibility into sibling refunds, not by this type
// in isolation.
type Refund struct {
	id          uuid.UUID
	tenantID    string
	paymentID   uuid.UUID
	amount      int64
	currency    string
	status      Status
	reason      string
	pgRefundID  string
	createdAt   time.Time
	updatedAt   time.Time
	completedAt *time.Time
	failedAt    *time.Time
}

// New creates a REQUESTED refund. amount > 0; currency is validated by
// the caller to match the originating payment's currency.
func New(tenantID string, paymentID uuid.UUID, amount int64, currency, reason string) (*Refund, error) {
	if amount <= 0 {
		return nil, apperr.NewValidationError("PAY_007", "refund amount must be positive")
	}
	now := time.Now().UTC()
	return &Refund{
		id:        uuid.New(),
		tenantID:  tenantID,
		paymentID: paymentID,
		amount:    amount,
		currency:  currency,
		status:    StatusRequested,
		reason:    reason,
		createdAt: now,
		updatedAt: now,
	}, nil
}

func (r *Refund) ID() uuid.UUID         { return r.id }
func (r *Refund) TenantID() string      { return r.tenantID }
func (r *Refund) PaymentID() uuid.UUID  { return r.paymentID }
func (r *Refund) Amount() int64         { return r.amount }
func (r *Refund) Currency() string      { return r.currency }
func (r *Refund) Status() Status        { return r.status }
func (r *Refund) Reason() string        { return r.reason }
func (r *Refund) PGRefundID() string    { return r.pgRefundID }
func (r *Refund) CreatedAt() time.Time  { return r.createdAt }
func (r *Refund) UpdatedAt() time.Time  { return r.updatedAt }
func (r *Refund) CompletedAt() *time.Time { return r.completedAt }
func (r *Refund) FailedAt() *time.Time  { return r.failedAt }

// StartProcessing transitions REQUESTED -> PROCESSING before the PG call.
func (r *Refund) StartProcessing() error {
	if r.status != StatusRequested {
		return apperr.NewInvalidStateError("PAY_006", string(r.status), string(StatusProcessing))
	}
	r.status = StatusProcessing
	r.updatedAt = time.Now().UTC()
	return nil
}

// Complete transitions PROCESSING -> COMPLETED once the PG confirms the
// refund.
func (r *Refund) Complete(pgRefundID string) error {
	if r.status != StatusProcessing {
		return apperr.NewInvalidStateError("PAY_006", string(r.status), string(StatusCompleted))
	}
	now := time.Now().UTC()
	r.status = StatusCompleted
	r.pgRefundID = pgRefundID
	r.completedAt = &now
	r.updatedAt = now
	return nil
}

// Fail transitions PROCESSING -> FAILED.
func (r *Refund) Fail(reason string) error {
	if r.status != StatusProcessing {
		return apperr.NewInvalidStateError("PAY_006", string(r.status), string(StatusFailed))
	}
	now := time.Now().UTC()
	r.status = StatusFailed
	r.reason = reason
	r.failedAt = &now
	r.updatedAt = now
	return nil
}

// Reconstitute rebuilds a Refund from persisted data.
func Reconstitute(
	id uuid.UUID,
	tenantID string,
	paymentID uuid.UUID,
	amount int64,
	currency string,
	status Status,
	reason, pgRefundID string,
	createdAt, updatedAt time.Time,
	completedAt, failedAt *time.Time,
) *Refund {
	return &Refund{
		id:          id,
		tenantID:    tenantID,
		paymentID:   paymentID,
		amount:      amount,
		currency:    currency,
		status:      status,
		reason:      reason,
		pgRefundID:  pgRefundID,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		completedAt: completedAt,
		failedAt:    failedAt,
	}
}
