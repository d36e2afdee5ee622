package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

func Test_NewService_requires_models(t *testing.T) {
	_, err := NewService(ServiceOptions{})
	assert.EqualError(t, err, "models are required for the audit service")
}

func Test_Service_Log_requires_tenant(t *testing.T) {
	svc, err := NewService(ServiceOptions{Models: &data.Models{}})
	require.NoError(t, err)

	err = svc.Log(context.Background(), Entry{Action: "user.created"})
	assert.ErrorIs(t, err, tenantctx.ErrTenantContextMissing)
}

func Test_Service_Log_masks_and_enqueues(t *testing.T) {
	svc, err := NewService(ServiceOptions{Models: &data.Models{}, QueueSize: 4})
	require.NoError(t, err)

	ctx := tenantctx.WithTenant(context.Background(), "tenant-1")
	ctx = tenantctx.WithUser(ctx, "user-9")

	err = svc.Log(ctx, Entry{
		Action:     "user.password_changed",
		EntityName: "users",
		EntityID:   "user-9",
		NewValues:  map[string]any{"password_hash": "argon2id...", "email": "a@b.co"},
		Method:     "POST",
		Path:       "/auth/password",
		StatusCode: 204,
	})
	require.NoError(t, err)

	row := <-svc.queue
	assert.Equal(t, "tenant-1", row.TenantID)
	assert.Equal(t, "user-9", row.UserID.String)
	assert.Equal(t, "user.password_changed", row.Action)
	assert.Contains(t, string(row.NewValues), maskedValue)
	assert.NotContains(t, string(row.NewValues), "argon2id")
	assert.Contains(t, string(row.NewValues), "a@b.co")
	assert.False(t, row.CreatedAt.IsZero())
	assert.Empty(t, row.Hash, "hash is assigned by the chain writer, not the producer")
}

func Test_Service_Log_user_capture(t *testing.T) {
	svc, err := NewService(ServiceOptions{Models: &data.Models{}, QueueSize: 4})
	require.NoError(t, err)

	t.Run("🟢 ambient user lands on the row", func(t *testing.T) {
		ctx := tenantctx.WithTenant(context.Background(), "tenant-1")
		ctx = tenantctx.WithUser(ctx, "user-3")

		require.NoError(t, svc.Log(ctx, Entry{Action: "booking.created", EntityName: "bookings"}))
		row := <-svc.queue
		assert.True(t, row.UserID.Valid)
		assert.Equal(t, "user-3", row.UserID.String)
	})

	t.Run("🟢 system operations carry no user", func(t *testing.T) {
		ctx := tenantctx.WithTenant(context.Background(), "tenant-1")

		require.NoError(t, svc.Log(ctx, Entry{Action: "PAYROLL_RUN", EntityName: "payouts"}))
		row := <-svc.queue
		assert.False(t, row.UserID.Valid)
		assert.Empty(t, row.UserID.String)
	})
}
