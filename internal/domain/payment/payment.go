// Package payment is the Payment aggregate and state machine from spec
// §3/§4.4, adapted from the teacher's escrow Payment aggregate: private
// fields, explicit getters, state-transition methods that return typed
// errors instead of silently no-oping, and a Reconstitute constructor for
// repository rehydration.
package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

// Status is one node of the strictly enforced state machine from spec
// §4.4:
//
//	READY -> PROCESSING
//	PROCESSING -> APPROVED | FAILED
//	APPROVED -> CONFIRMED | FAILED
//	CONFIRMED -> REFUNDED
//	(FAILED and REFUNDED are terminal)
type Status string

const (
	StatusReady      Status = "READY"
	StatusProcessing Status = "PROCESSING"
	StatusApproved   Status = "APPROVED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
)

// DefaultMaxApprovalAge is the default window IsApprovalExpired uses,
// per spec §4.4 ("default max age 24h").
const DefaultMaxApprovalAge = 24 * time.Hour

// Payment is the aggregate root for a single settlement against an Order.
type Payment struct {
	id              uuid.UUID
	tenantID        string
	orderID         uuid.UUID
	amount          int64
	currency        string
	status          Status
	paymentMethod   string
	pgTransactionID string
	pgPaymentKey    string
	failureReason   string
	version         int64
	createdAt       time.Time
	updatedAt       time.Time
	processingAt    *time.Time
	approvedAt      *time.Time
	confirmedAt     *time.Time
	failedAt        *time.Time
	refundedAt      *time.Time
}

// New creates a READY payment for an order. Spec §3: amount > 0.
func New(tenantID string, orderID uuid.UUID, amount int64, currency string) (*Payment, error) {
	if amount <= 0 {
		return nil, apperr.NewValidationError("PAY_006", "payment amount must be positive")
	}
	now := time.Now().UTC()
	return &Payment{
		id:        uuid.New(),
		tenantID:  tenantID,
		orderID:   orderID,
		amount:    amount,
		currency:  currency,
		status:    StatusReady,
		version:   1,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// --- Getters ---

func (p *Payment) ID() uuid.UUID           { return p.id }
func (p *Payment) TenantID() string        { return p.tenantID }
func (p *Payment) OrderID() uuid.UUID      { return p.orderID }
func (p *Payment) Amount() int64           { return p.amount }
func (p *Payment) Currency() string        { return p.currency }
func (p *Payment) Status() Status          { return p.status }
func (p *Payment) PaymentMethod() string   { return p.paymentMethod }
func (p *Payment) PGTransactionID() string { return p.pgTransactionID }
func (p *Payment) PGPaymentKey() string    { return p.pgPaymentKey }
func (p *Payment) FailureReason() string   { return p.failureReason }
func (p *Payment) Version() int64          { return p.version }
func (p *Payment) CreatedAt() time.Time    { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time    { return p.updatedAt }
func (p *Payment) ProcessingAt() *time.Time { return p.processingAt }
func (p *Payment) ApprovedAt() *time.Time  { return p.approvedAt }
func (p *Payment) ConfirmedAt() *time.Time { return p.confirmedAt }
func (p *Payment) FailedAt() *time.Time    { return p.failedAt }
func (p *Payment) RefundedAt() *time.Time  { return p.refundedAt }

// --- Behavior / State Transitions ---

// StartProcessing transitions READY -> PROCESSING, recording the chosen
// payment method before requesting approval from the PG.
func (p *Payment) StartProcessing(paymentMethod string) error {
	if p.status != StatusReady {
		return apperr.NewInvalidStateError("PAY_006", string(p.status), string(StatusProcessing))
	}
	now := time.Now().UTC()
	p.status = StatusProcessing
	p.paymentMethod = paymentMethod
	p.processingAt = &now
	p.updatedAt = now
	return nil
}

// Approve transitions PROCESSING -> APPROVED once the PG authorizes (the
// hold side of the two-phase commit, spec §4.4).
func (p *Payment) Approve(pgTransactionID, pgPaymentKey string) error {
	if p.status != StatusProcessing {
		return apperr.NewInvalidStateError("PAY_006", string(p.status), string(StatusApproved))
	}
	now := time.Now().UTC()
	p.status = StatusApproved
	p.pgTransactionID = pgTransactionID
	p.pgPaymentKey = pgPaymentKey
	p.approvedAt = &now
	p.updatedAt = now
	return nil
}

// IsApprovalExpired is a pure query the confirmation step uses to decide
// whether to proceed, per spec §4.4. maxAge <= 0 uses DefaultMaxApprovalAge.
func (p *Payment) IsApprovalExpired(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxApprovalAge
	}
	if p.processingAt == nil {
		return false
	}
	return now.Sub(*p.processingAt) > maxAge
}

// Confirm transitions APPROVED -> CONFIRMED, the settle side of the
// two-phase commit. The saga only calls this after downstream service
// execution has succeeded.
func (p *Payment) Confirm() error {
	if p.status != StatusApproved {
		return apperr.NewInvalidStateError("PAY_006", string(p.status), string(StatusConfirmed))
	}
	now := time.Now().UTC()
	p.status = StatusConfirmed
	p.confirmedAt = &now
	p.updatedAt = now
	return nil
}

// Fail transitions PROCESSING or APPROVED -> FAILED. FAILED is absorbing.
func (p *Payment) Fail(reason string) error {
	if p.status != StatusProcessing && p.status != StatusApproved {
		return apperr.NewInvalidStateError("PAY_006", string(p.status), string(StatusFailed))
	}
	now := time.Now().UTC()
	p.status = StatusFailed
	p.failureReason = reason
	p.failedAt = &now
	p.updatedAt = now
	return nil
}

// Refund transitions CONFIRMED -> REFUNDED. REFUNDED is absorbing.
func (p *Payment) Refund() error {
	if p.status != StatusConfirmed {
		return apperr.NewInvalidStateError("PAY_006", string(p.status), string(StatusRefunded))
	}
	now := time.Now().UTC()
	p.status = StatusRefunded
	p.refundedAt = &now
	p.updatedAt = now
	return nil
}

// IncrementVersion bumps the optimistic-lock version.
func (p *Payment) IncrementVersion() {
	p.version++
	p.updatedAt = time.Now().UTC()
}

// statusRank orders statuses for webhook out-of-order tolerance (spec
// §4.4): an incoming update whose rank is <= the current rank is a
// no-op.
var statusRank = map[Status]int{
	StatusReady:      0,
	StatusProcessing: 1,
	StatusApproved:   2,
	StatusConfirmed:  3,
	StatusFailed:     4,
	StatusRefunded:   5,
}

// StatusRank exposes statusRank for webhook reconciliation.
func StatusRank(s Status) int {
	return statusRank[s]
}

// Reconstitute rebuilds a Payment from persisted data.
func Reconstitute(
	id uuid.UUID,
	tenantID string,
	orderID uuid.UUID,
	amount int64,
	currency string,
	status Status,
	paymentMethod, pgTransactionID, pgPaymentKey, failureReason string,
	version int64,
	createdAt, updatedAt time.Time,
	processingAt, approvedAt, confirmedAt, failedAt, refundedAt *time.Time,
) *Payment {
	return &Payment{
		id:              id,
		tenantID:        tenantID,
		orderID:         orderID,
		amount:          amount,
		currency:        currency,
		status:          status,
		paymentMethod:   paymentMethod,
		pgTransactionID: pgTransactionID,
		pgPaymentKey:    pgPaymentKey,
		failureReason:   failureReason,
		version:         version,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
		processingAt:    processingAt,
		approvedAt:      approvedAt,
		confirmedAt:     confirmedAt,
		failedAt:        failedAt,
		refundedAt:      refundedAt,
	}
}
