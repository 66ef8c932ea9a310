// Package pg is the payment gateway adapter boundary from spec §4.4: a
// single vendor-agnostic interface plus a resilience wrapper (timeouts,
// circuit breaker, limited retry, bulkhead) around whatever vendor
// implementation is injected. Adapted from the teacher's
// internal/adapter StripeAdapter anti-corruption-layer pattern.
package pg

import "context"

// ApprovalResult is the outcome of requesting a hold/authorization.
type ApprovalResult struct {
	PGTransactionID string
	PGKey           string
	OK              bool
	Error           string
}

// Client is the PG adapter contract from spec §4.4. Implementations are
// per-vendor; the core depends only on this interface.
type Client interface {
	// RequestApproval requests a hold/authorization for orderRef.
	RequestApproval(ctx context.Context, orderRef string, amount int64, currency, method string) (ApprovalResult, error)

	// Confirm settles a previously approved hold, identified by pgKey.
	Confirm(ctx context.Context, pgKey string) error

	// Cancel releases a hold without charging the customer. Safe to
	// retry (idempotent on the vendor side).
	Cancel(ctx context.Context, pgKey, reason string) error

	// Refund refunds part or all of a settled charge. Safe to retry.
	Refund(ctx context.Context, pgKey string, amount int64, reason string) (pgRefundID string, err error)
}
