// Package tenantctx is the tenant context engine. The ambient tenant identity
// for a request or background-job pass lives in the context.Context and
// survives every suspension point by construction. Repositories operating on
// tenant-owned entities must call Require; read-only paths that tolerate
// absence (health, metrics) may call Current.
package tenantctx

import (
	"context"
	"errors"

	"github.com/opsplane/opsplane-backend/pkg/log"
)

var ErrTenantContextMissing = errors.New("tenant not found in context")

type (
	tenantIDContextKey      struct{}
	userIDContextKey        struct{}
	correlationIDContextKey struct{}
)

// NoTenant is the label used on metrics and log lines produced outside any
// tenant scope.
const NoTenant = "no_tenant"

// WithTenant installs the tenant id in the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	ctx = context.WithValue(ctx, tenantIDContextKey{}, tenantID)
	return log.Set(ctx, log.Ctx(ctx).WithField("tenant_id", tenantID))
}

// Current returns the ambient tenant id, or false when none is installed.
func Current(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantIDContextKey{}).(string)
	if !ok || tenantID == "" {
		return "", false
	}
	return tenantID, true
}

// Require returns the ambient tenant id or ErrTenantContextMissing. Every
// repository method on a tenant-owned entity goes through here.
func Require(ctx context.Context) (string, error) {
	tenantID, ok := Current(ctx)
	if !ok {
		return "", ErrTenantContextMissing
	}
	return tenantID, nil
}

// CurrentOrNoTenant returns the ambient tenant id, defaulting to NoTenant.
// Intended for metric labels, never for data access.
func CurrentOrNoTenant(ctx context.Context) string {
	if tenantID, ok := Current(ctx); ok {
		return tenantID
	}
	return NoTenant
}

// RunWithTenant installs tenantID for the duration of fn, including any
// goroutines fn derives from the context. Scheduled jobs wrap each per-tenant
// pass in this.
func RunWithTenant(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	return fn(WithTenant(ctx, tenantID))
}

// WithUser stores the acting user id in the context.
func WithUser(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userIDContextKey{}, userID)
	return log.Set(ctx, log.Ctx(ctx).WithField("user_id", userID))
}

// UserID returns the acting user id, if any.
func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey{}).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// WithCorrelationID stores the correlation id in the context and on the
// context logger.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	ctx = context.WithValue(ctx, correlationIDContextKey{}, correlationID)
	return log.Set(ctx, log.Ctx(ctx).WithField("correlation_id", correlationID))
}

// CorrelationID returns the correlation id, if any.
func CorrelationID(ctx context.Context) string {
	correlationID, _ := ctx.Value(correlationIDContextKey{}).(string)
	return correlationID
}
