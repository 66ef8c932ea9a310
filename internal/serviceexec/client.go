// Package serviceexec models the "Execute Service" step of the payment
// saga (spec §4.3): the arbitrary client service FluxPay fronts rendering
// whatever the customer paid for. Grounded on the same narrow-client-
// interface-plus-mock shape as internal/pg (itself grounded on the
// teacher's stripe_adapter.go anti-corruption layer), since FluxPay is
// domain-agnostic and has no concrete service integration of its own.
package serviceexec

import "context"

// Client is the collaborator interface the saga's execute_service step
// calls. A real deployment would implement this against the fronted
// service's own API; FluxPay ships MockClient for local runs and tests.
type Client interface {
	// Execute asks the fronted service to render order orderID. It must be
	// safe to call more than once for the same orderID (the saga may retry
	// after a crash before this step's compensator has run).
	Execute(ctx context.Context, tenantID, orderID string) error

	// Cancel compensates a successful Execute, e.g. voiding a reservation
	// the fronted service made. Called when a later saga step fails.
	Cancel(ctx context.Context, tenantID, orderID string) error
}
