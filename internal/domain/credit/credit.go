// Package credit implements the prepaid Credit aggregate and its
// append-only CreditLedger from spec §3/§4.5: two-phase reserve/confirm,
// cancel, and refund, all expressed as ledger-appending transitions on an
// optimistically-locked balance, in the teacher's aggregate style.
package credit

import (
	"time"

	"github.com/google/uuid"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

// EntryType is one kind of immutable CreditLedger record, per spec §3.
type EntryType string

const (
	EntryCharge  EntryType = "CHARGE"
	EntryReserve EntryType = "RESERVE"
	EntryConfirm EntryType = "CONFIRM"
	EntryCancel  EntryType = "CANCEL"
	EntryRefund  EntryType = "REFUND"
	EntryExpire  EntryType = "EXPIRE"
)

// LedgerEntry is one immutable row of the credit ledger.
type LedgerEntry struct {
	ID           uuid.UUID
	TenantID     string
	UserID       string
	Type         EntryType
	Amount       int64
	BalanceAfter int64
	ReferenceID  string
	CreatedAt    time.Time
}

// Credit is the per-user prepaid balance aggregate. Invariant:
// 0 <= reserved_amount <= balance; available = balance - reserved_amount.
type Credit struct {
	tenantID       string
	userID         string
	balance        int64
	reservedAmount int64
	version        int64
	updatedAt      time.Time
}

// New creates a zero-balance Credit row for a user.
func New(tenantID, userID string) *Credit {
	return &Credit{
		tenantID:  tenantID,
		userID:    userID,
		version:   1,
		updatedAt: time.Now().UTC(),
	}
}

func (c *Credit) TenantID() string       { return c.tenantID }
func (c *Credit) UserID() string         { return c.userID }
func (c *Credit) Balance() int64         { return c.balance }
func (c *Credit) ReservedAmount() int64  { return c.reservedAmount }
func (c *Credit) Available() int64       { return c.balance - c.reservedAmount }
func (c *Credit) Version() int64         { return c.version }
func (c *Credit) UpdatedAt() time.Time   { return c.updatedAt }

// Reserve is Phase 1 of the two-phase deduction (spec §4.5): verify
// available >= amount, append RESERVE, bump reserved_amount and version.
// referenceID identifies the reservation; callers typically use the
// ledger entry id returned here as the reservation id.
func (c *Credit) Reserve(amount int64, referenceID string) (LedgerEntry, error) {
	if amount <= 0 {
		return LedgerEntry{}, apperr.NewValidationError("CRD_002", "reserve amount must be positive")
	}
	if c.Available() < amount {
		return LedgerEntry{}, apperr.NewValidationError("CRD_002", "insufficient available credit")
	}
	now := time.Now().UTC()
	c.reservedAmount += amount
	c.version++
	c.updatedAt = now
	return LedgerEntry{
		ID:           uuid.New(),
		TenantID:     c.tenantID,
		UserID:       c.userID,
		Type:         EntryReserve,
		Amount:       amount,
		BalanceAfter: c.balance,
		ReferenceID:  referenceID,
		CreatedAt:    now,
	}, nil
}

// Confirm is Phase 2a: settle a reservation, moving amount from
// reserved_amount into a realized balance deduction. Idempotent: confirming
// or cancelling twice is rejected by the caller re-checking the
// reservation's ledger state (the aggregate itself has no notion of
// reservation identity beyond the amount it is told to settle).
func (c *Credit) Confirm(amount int64, referenceID string) (LedgerEntry, error) {
	if amount <= 0 || amount > c.reservedAmount {
		return LedgerEntry{}, apperr.NewInvariantError("CRD_003", "confirm amount exceeds reserved amount")
	}
	now := time.Now().UTC()
	c.balance -= amount
	c.reservedAmount -= amount
	c.version++
	c.updatedAt = now
	return LedgerEntry{
		ID:           uuid.New(),
		TenantID:     c.tenantID,
		UserID:       c.userID,
		Type:         EntryConfirm,
		Amount:       -amount,
		BalanceAfter: c.balance,
		ReferenceID:  referenceID,
		CreatedAt:    now,
	}, nil
}

// Cancel is Phase 2b: release a reservation without charging the user.
func (c *Credit) Cancel(amount int64, referenceID string) (LedgerEntry, error) {
	if amount <= 0 || amount > c.reservedAmount {
		return LedgerEntry{}, apperr.NewInvariantError("CRD_003", "cancel amount exceeds reserved amount")
	}
	now := time.Now().UTC()
	c.reservedAmount -= amount
	c.version++
	c.updatedAt = now
	return LedgerEntry{
		ID:           uuid.New(),
		TenantID:     c.tenantID,
		UserID:       c.userID,
		Type:         EntryCancel,
		Amount:       -amount,
		BalanceAfter: c.balance,
		ReferenceID:  referenceID,
		CreatedAt:    now,
	}, nil
}

// Refund credits the user's balance back, e.g. after a payment refund.
func (c *Credit) Refund(amount int64, referenceID string) (LedgerEntry, error) {
	if amount <= 0 {
		return LedgerEntry{}, apperr.NewValidationError("CRD_002", "refund amount must be positive")
	}
	now := time.Now().UTC()
	c.balance += amount
	c.version++
	c.updatedAt = now
	return LedgerEntry{
		ID:           uuid.New(),
		TenantID:     c.tenantID,
		UserID:       c.userID,
		Type:         EntryRefund,
		Amount:       amount,
		BalanceAfter: c.balance,
		ReferenceID:  referenceID,
		CreatedAt:    now,
	}, nil
}

// Charge applies a direct, non-reserved deduction (e.g. a top-up plan's
// recurring charge). Included for ledger completeness per spec §4.5's
// consistency invariant, which names CHARGE among the balance-affecting
// entry types.
func (c *Credit) Charge(amount int64, referenceID string) (LedgerEntry, error) {
	if amount <= 0 || amount > c.Available() {
		return LedgerEntry{}, apperr.NewValidationError("CRD_002", "insufficient available credit")
	}
	now := time.Now().UTC()
	c.balance -= amount
	c.version++
	c.updatedAt = now
	return LedgerEntry{
		ID:           uuid.New(),
		TenantID:     c.tenantID,
		UserID:       c.userID,
		Type:         EntryCharge,
		Amount:       -amount,
		BalanceAfter: c.balance,
		ReferenceID:  referenceID,
		CreatedAt:    now,
	}, nil
}

// Reconstitute rebuilds a Credit row from persisted data.
func Reconstitute(tenantID, userID string, balance, reservedAmount, version int64, updatedAt time.Time) *Credit {
	return &Credit{
		tenantID:       tenantID,
		userID:         userID,
		balance:        balance,
		reservedAmount: reservedAmount,
		version:        version,
		updatedAt:      updatedAt,
	}
}

// ReconstructBalance replays a ledger to derive the balance and reserved
// amount snapshot, per spec §4.5's consistency invariant and §8's
// testable property that the snapshot is reconstructable from the
// ledger alone.
func ReconstructBalance(entries []LedgerEntry) (balance, reserved int64) {
	for _, e := range entries {
		switch e.Type {
		case EntryCharge, EntryConfirm, EntryExpire:
			balance += e.Amount // already signed negative
		case EntryRefund:
			balance += e.Amount
		}
		switch e.Type {
		case EntryReserve:
			reserved += e.Amount
		case EntryConfirm, EntryCancel:
			reserved += e.Amount // already signed negative
		}
	}
	return balance, reserved
}
