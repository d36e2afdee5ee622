package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewModels(t *testing.T) {
	_, err := NewModels(nil)
	assert.EqualError(t, err, "dbConnectionPool is required for NewModels")
}

func Test_prefixColumns(t *testing.T) {
	got := prefixColumns("id, tenant_id,\n\temail", "u")
	assert.Equal(t, "u.id, u.tenant_id, u.email", got)
}

func Test_RecurringFrequency_Next(t *testing.T) {
	from := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), RecurringFrequencyDaily.Next(from))
	assert.Equal(t, time.Date(2026, 2, 7, 9, 0, 0, 0, time.UTC), RecurringFrequencyWeekly.Next(from))
	// AddDate normalizes Jan 31 + 1 month to Mar 3.
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), RecurringFrequencyMonthly.Next(from))
}

func Test_User_IsLocked(t *testing.T) {
	now := time.Now()

	var u User
	assert.False(t, u.IsLocked(now))

	until := now.Add(time.Minute)
	u.LockedUntil = &until
	assert.True(t, u.IsLocked(now))
	assert.False(t, u.IsLocked(now.Add(2*time.Minute)))
}

func Test_UserRole_IsValid(t *testing.T) {
	for _, role := range []UserRole{UserRoleOwner, UserRoleAdmin, UserRoleMember} {
		require.True(t, role.IsValid(), string(role))
	}
	assert.False(t, UserRole("ROOT").IsValid())
	assert.False(t, UserRole("").IsValid())
}
