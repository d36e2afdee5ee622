package tenantctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Current_and_Require(t *testing.T) {
	ctx := context.Background()

	_, ok := Current(ctx)
	assert.False(t, ok)

	_, err := Require(ctx)
	assert.ErrorIs(t, err, ErrTenantContextMissing)

	ctx = WithTenant(ctx, "tenant-a")

	got, ok := Current(ctx)
	require.True(t, ok)
	assert.Equal(t, "tenant-a", got)

	got, err = Require(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", got)
}

func Test_CurrentOrNoTenant(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, NoTenant, CurrentOrNoTenant(ctx))
	assert.Equal(t, "t1", CurrentOrNoTenant(WithTenant(ctx, "t1")))
}

func Test_RunWithTenant_restores_outer_scope(t *testing.T) {
	outer := WithTenant(context.Background(), "outer")

	err := RunWithTenant(outer, "inner", func(ctx context.Context) error {
		got, innerErr := Require(ctx)
		require.NoError(t, innerErr)
		assert.Equal(t, "inner", got)
		return nil
	})
	require.NoError(t, err)

	// The outer context is untouched; scoping is purely lexical.
	got, err := Require(outer)
	require.NoError(t, err)
	assert.Equal(t, "outer", got)
}

func Test_RunWithTenant_propagates_into_spawned_goroutine(t *testing.T) {
	results := make(chan string, 1)

	err := RunWithTenant(context.Background(), "tenant-b", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			defer close(done)
			results <- CurrentOrNoTenant(ctx)
		}()
		<-done
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "tenant-b", <-results)
}

func Test_UserID_and_CorrelationID(t *testing.T) {
	ctx := context.Background()

	_, ok := UserID(ctx)
	assert.False(t, ok)
	assert.Empty(t, CorrelationID(ctx))

	ctx = WithUser(ctx, "user-1")
	ctx = WithCorrelationID(ctx, "corr-1")

	userID, ok := UserID(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "corr-1", CorrelationID(ctx))
}
