package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

func Test_NewTenantScopedQueryBuilder_requires_tenant(t *testing.T) {
	_, err := NewTenantScopedQueryBuilder(context.Background(), "SELECT * FROM transactions t", "t")
	assert.ErrorIs(t, err, tenantctx.ErrTenantContextMissing)
}

func Test_NewTenantScopedQueryBuilder_seeds_tenant_predicate(t *testing.T) {
	ctx := tenantctx.WithTenant(context.Background(), "tenant-1")

	qb, err := NewTenantScopedQueryBuilder(ctx, "SELECT * FROM transactions t", "t")
	require.NoError(t, err)

	query, params := qb.Build()
	assert.Equal(t, "SELECT * FROM transactions t WHERE 1=1 AND t.tenant_id = ?", normalizeSpaces(query))
	assert.Equal(t, []interface{}{"tenant-1"}, params)
}

func Test_QueryBuilder_grouped_disjunction_is_AND_sibling_of_tenant_predicate(t *testing.T) {
	ctx := tenantctx.WithTenant(context.Background(), "tenant-1")

	qb, err := NewTenantScopedQueryBuilder(ctx, "SELECT * FROM bookings b", "b")
	require.NoError(t, err)

	qb.AddGroupedConditions(func(g *GroupedConditions) {
		g.AddCondition("b.status = ?", "CONFIRMED").
			AddOrCondition("b.status = ?", "COMPLETED")
	})

	query, params := qb.Build()
	assert.Equal(t,
		"SELECT * FROM bookings b WHERE 1=1 AND b.tenant_id = ? AND (b.status = ? OR b.status = ?)",
		normalizeSpaces(query))
	assert.Equal(t, []interface{}{"tenant-1", "CONFIRMED", "COMPLETED"}, params)
}

func Test_QueryBuilder_empty_group_is_dropped(t *testing.T) {
	qb := NewQueryBuilder("SELECT * FROM tasks t")
	qb.AddCondition("t.tenant_id = ?", "t1")
	qb.AddGroupedConditions(func(g *GroupedConditions) {})

	query, params := qb.Build()
	assert.Equal(t, "SELECT * FROM tasks t WHERE 1=1 AND t.tenant_id = ?", normalizeSpaces(query))
	assert.Len(t, params, 1)
}

func Test_QueryBuilder_pagination_sorting_and_locks(t *testing.T) {
	qb := NewQueryBuilder("SELECT * FROM payouts p")
	qb.AddCondition("p.tenant_id = ?", "t1")
	qb.AddSorting("created_at", SortOrderDESC, "p")
	qb.AddPagination(2, 20)

	query, params := qb.Build()
	assert.Equal(t,
		"SELECT * FROM payouts p WHERE 1=1 AND p.tenant_id = ? ORDER BY p.created_at DESC LIMIT ? OFFSET ?",
		normalizeSpaces(query))
	assert.Equal(t, []interface{}{"t1", 20, 20}, params)

	qbLock := NewQueryBuilder("SELECT * FROM employee_wallets w")
	qbLock.AddCondition("w.tenant_id = ?", "t1").ForUpdate()
	query, _ = qbLock.Build()
	assert.Contains(t, query, "FOR UPDATE")

	qbSkip := NewQueryBuilder("SELECT * FROM outbox_events o")
	qbSkip.AddCondition("o.published_at IS NULL").ForUpdateSkipLocked()
	query, _ = qbSkip.Build()
	assert.Contains(t, query, "FOR UPDATE SKIP LOCKED")
}

func Test_requireRowTenant(t *testing.T) {
	ctx := tenantctx.WithTenant(context.Background(), "tenant-1")

	got, err := requireRowTenant(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", got)

	got, err = requireRowTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", got)

	_, err = requireRowTenant(ctx, "tenant-2")
	assert.ErrorIs(t, err, ErrTenantMismatch)

	_, err = requireRowTenant(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, tenantctx.ErrTenantContextMissing)
}
