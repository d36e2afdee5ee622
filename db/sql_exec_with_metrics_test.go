package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsplane/opsplane-backend/internal/monitor"
)

func Test_getQueryType(t *testing.T) {
	testCases := []struct {
		query             string
		expectedQueryType QueryType
	}{
		{query: "SELECT * FROM transactions", expectedQueryType: SelectQueryType},
		{query: "\n\tselect id FROM payouts", expectedQueryType: SelectQueryType},
		{query: "INSERT INTO audit_logs VALUES ($1)", expectedQueryType: InsertQueryType},
		{query: "UPDATE employee_wallets SET payable_balance = $1", expectedQueryType: UpdateQueryType},
		{query: "DELETE FROM refresh_tokens WHERE expires_at < now()", expectedQueryType: DeleteQueryType},
		{query: "TRUNCATE outbox_events", expectedQueryType: UndefinedQueryType},
		{query: "   ", expectedQueryType: UndefinedQueryType},
	}

	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.expectedQueryType, getQueryType(tc.query))
		})
	}
}

func Test_getMetricTag(t *testing.T) {
	assert.Equal(t, monitor.SuccessfulQueryDurationTag, getMetricTag(nil))
	assert.Equal(t, monitor.FailureQueryDurationTag, getMetricTag(assert.AnError))
}
