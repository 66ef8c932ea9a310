// Package tenant propagates the request-scoped tenant id through the call
// tree via a context value, never a process global, per spec §4.6/§9.
//
// FluxPay standardizes on "default" as the reserved tenant id for
// single-tenant deployments; "__default__" is never produced or accepted
// (spec §9 open question — pick one convention and enforce it end to end).
package tenant

import (
	"context"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

// Header is the well-known header every tenant-scoped request must carry.
const Header = "X-Tenant-Id"

// Default is FluxPay's single reserved default tenant id.
const Default = "default"

type ctxKey struct{}

// WithTenant returns a context carrying the given tenant id.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// FromContext extracts the tenant id previously attached with WithTenant.
// Returns "" if none was attached — callers on tenant-required paths must
// treat that as MissingTenant rather than silently falling back to Default.
func FromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// Require extracts the tenant id or returns a MissingTenant (TNT_001) error.
func Require(ctx context.Context) (string, error) {
	t := FromContext(ctx)
	if t == "" {
		return "", apperr.NewValidationError("TNT_001", "X-Tenant-Id header is required")
	}
	return t, nil
}

// ScopedKey builds a colon-joined cache/partition/rate-limit key that always
// carries the tenant id, per spec §4.6 ("All keys ... include tenant_id").
func ScopedKey(tenantID string, parts ...string) string {
	key := tenantID
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
