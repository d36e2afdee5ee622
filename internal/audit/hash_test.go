package audit

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/data"
)

func sampleAuditLog() data.AuditLog {
	return data.AuditLog{
		TenantID:       "6f3a2c1e-0000-0000-0000-000000000001",
		SequenceNumber: 3,
		Action:         "booking.status_changed",
		EntityName:     "bookings",
		EntityID:       "b-1",
		OldValues:      json.RawMessage(`{"status":"DRAFT"}`),
		NewValues:      json.RawMessage(`{"status":"CONFIRMED"}`),
		UserID:         sql.NullString{String: "u-1", Valid: true},
		IP:             "10.0.0.9",
		Method:         "PATCH",
		Path:           "/bookings/b-1",
		StatusCode:     200,
		DurationMS:     14,
		CreatedAt:      time.Date(2026, 3, 4, 10, 30, 0, 123456000, time.UTC),
	}
}

func Test_ComputeHash_is_deterministic(t *testing.T) {
	entry := sampleAuditLog()

	h1, err := ComputeHash("prev", &entry)
	require.NoError(t, err)
	h2, err := ComputeHash("prev", &entry)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "hex-encoded SHA-256")
}

func Test_ComputeHash_changes_with_previous_hash(t *testing.T) {
	entry := sampleAuditLog()

	h1, err := ComputeHash("", &entry)
	require.NoError(t, err)
	h2, err := ComputeHash(h1, &entry)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func Test_ComputeHash_detects_field_tampering(t *testing.T) {
	entry := sampleAuditLog()
	original, err := ComputeHash("prev", &entry)
	require.NoError(t, err)

	mutations := map[string]func(*data.AuditLog){
		"action":      func(e *data.AuditLog) { e.Action = "booking.deleted" },
		"sequence":    func(e *data.AuditLog) { e.SequenceNumber = 4 },
		"new_values":  func(e *data.AuditLog) { e.NewValues = json.RawMessage(`{"status":"COMPLETED"}`) },
		"user":        func(e *data.AuditLog) { e.UserID = sql.NullString{String: "u-2", Valid: true} },
		"status_code": func(e *data.AuditLog) { e.StatusCode = 500 },
		"created_at":  func(e *data.AuditLog) { e.CreatedAt = e.CreatedAt.Add(time.Second) },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tampered := sampleAuditLog()
			mutate(&tampered)

			got, err := ComputeHash("prev", &tampered)
			require.NoError(t, err)
			assert.NotEqual(t, original, got)
		})
	}
}

func Test_ComputeHash_ignores_surrogate_id(t *testing.T) {
	entry := sampleAuditLog()
	h1, err := ComputeHash("prev", &entry)
	require.NoError(t, err)

	entry.ID = "different-row-id"
	h2, err := ComputeHash("prev", &entry)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}
