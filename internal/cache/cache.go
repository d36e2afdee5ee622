// Package cache provides tenant-scoped caching with a shared (redis) and an
// in-process (ristretto) implementation behind one interface.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

// Cache stores JSON-serializable values under a tenant-scoped namespace. Get
// reports a miss with found=false; errors are reserved for infrastructure
// failures.
type Cache interface {
	Get(ctx context.Context, namespace, key string, target any) (found bool, err error)
	Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
	// DeleteNamespace drops everything the tenant cached under the namespace.
	DeleteNamespace(ctx context.Context, namespace string) error
}

// buildKey prefixes every entry with the ambient tenant so tenants can never
// read each other's cache.
func buildKey(ctx context.Context, namespace, key string) (string, error) {
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		return "", fmt.Errorf("cache access requires a tenant: %w", err)
	}
	return fmt.Sprintf("cache:%s:%s:%s", tenantID, namespace, key), nil
}

func namespacePattern(ctx context.Context, namespace string) (string, error) {
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		return "", fmt.Errorf("cache access requires a tenant: %w", err)
	}
	return fmt.Sprintf("cache:%s:%s:*", tenantID, namespace), nil
}
