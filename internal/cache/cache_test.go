package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

func tenantContext(t *testing.T, tenantID string) context.Context {
	t.Helper()
	return tenantctx.WithTenant(context.Background(), tenantID)
}

func Test_buildKey_requires_tenant(t *testing.T) {
	_, err := buildKey(context.Background(), "dashboard", "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache access requires a tenant")

	key, err := buildKey(tenantContext(t, "tenant-1"), "dashboard", "summary")
	require.NoError(t, err)
	assert.Equal(t, "cache:tenant-1:dashboard:summary", key)
}

func Test_MemoryCache_round_trip(t *testing.T) {
	cache, err := NewMemoryCache()
	require.NoError(t, err)
	ctx := tenantContext(t, "tenant-1")

	type summary struct {
		Income string `json:"income"`
	}

	require.NoError(t, cache.Set(ctx, "dashboard", "summary", summary{Income: "100.00"}, time.Minute))
	cache.Wait()

	var got summary
	found, err := cache.Get(ctx, "dashboard", "summary", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "100.00", got.Income)

	// Another tenant cannot see it.
	found, err = cache.Get(tenantContext(t, "tenant-2"), "dashboard", "summary", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func Test_MemoryCache_Delete(t *testing.T) {
	cache, err := NewMemoryCache()
	require.NoError(t, err)
	ctx := tenantContext(t, "tenant-1")

	require.NoError(t, cache.Set(ctx, "dashboard", "summary", "v", time.Minute))
	cache.Wait()
	require.NoError(t, cache.Delete(ctx, "dashboard", "summary"))
	cache.Wait()

	var got string
	found, err := cache.Get(ctx, "dashboard", "summary", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func Test_MemoryCache_DeleteNamespace_is_tenant_scoped(t *testing.T) {
	cache, err := NewMemoryCache()
	require.NoError(t, err)
	ctx1 := tenantContext(t, "tenant-1")
	ctx2 := tenantContext(t, "tenant-2")

	require.NoError(t, cache.Set(ctx1, "dashboard", "summary", "one", time.Minute))
	require.NoError(t, cache.Set(ctx2, "dashboard", "summary", "two", time.Minute))
	cache.Wait()

	require.NoError(t, cache.DeleteNamespace(ctx1, "dashboard"))

	var got string
	found, err := cache.Get(ctx1, "dashboard", "summary", &got)
	require.NoError(t, err)
	assert.False(t, found, "tenant-1's namespace was dropped")

	found, err = cache.Get(ctx2, "dashboard", "summary", &got)
	require.NoError(t, err)
	require.True(t, found, "tenant-2 is untouched")
	assert.Equal(t, "two", got)
}

func Test_InvalidatesDashboard(t *testing.T) {
	assert.True(t, InvalidatesDashboard("transaction.created"))
	assert.True(t, InvalidatesDashboard("payout.completed"))
	assert.True(t, InvalidatesDashboard("booking.settled"))
	assert.True(t, InvalidatesDashboard("task.completed"))
	assert.False(t, InvalidatesDashboard("user.created"))
	assert.False(t, InvalidatesDashboard("webhook.test"))
}

func Test_Invalidator(t *testing.T) {
	_, err := NewInvalidator(nil)
	assert.EqualError(t, err, "a cache is required for the invalidator")

	cache, err := NewMemoryCache()
	require.NoError(t, err)
	invalidator, err := NewInvalidator(cache)
	require.NoError(t, err)

	ctx := tenantContext(t, "tenant-1")
	require.NoError(t, cache.Set(ctx, "dashboard", "summary", "v", time.Minute))
	cache.Wait()

	// Unrelated events leave the cache alone.
	require.NoError(t, invalidator.Dispatch(ctx, data.OutboxEvent{EventType: "user.created"}))
	var got string
	found, err := cache.Get(ctx, "dashboard", "summary", &got)
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, invalidator.Dispatch(ctx, data.OutboxEvent{EventType: "transaction.created"}))
	found, err = cache.Get(ctx, "dashboard", "summary", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
