package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_AdvisoryLockKey_is_stable_and_distinct(t *testing.T) {
	k1 := AdvisoryLockKey("outbox:relay")
	k2 := AdvisoryLockKey("outbox:relay")
	k3 := AdvisoryLockKey("payroll:tenant-a")
	k4 := AdvisoryLockKey("payroll:tenant-b")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k3, k4)
}
