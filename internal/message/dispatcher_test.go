package message

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
)

func Test_NewPayoutEmailDispatcher_validates_options(t *testing.T) {
	_, err := NewPayoutEmailDispatcher(nil, &jobqueue.Store{})
	assert.EqualError(t, err, "models are required for the payout email dispatcher")

	_, err = NewPayoutEmailDispatcher(&data.Models{}, nil)
	assert.EqualError(t, err, "a job store is required for the payout email dispatcher")

	d, err := NewPayoutEmailDispatcher(&data.Models{}, &jobqueue.Store{})
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func Test_PayoutEmailDispatcher_requires_relay_transaction(t *testing.T) {
	d, err := NewPayoutEmailDispatcher(&data.Models{}, &jobqueue.Store{})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), data.OutboxEvent{EventType: "payout.completed"})
	assert.EqualError(t, err, "payout emails must be enqueued on the relay transaction")
}

func Test_PayoutEmailDispatcher_ignores_other_events(t *testing.T) {
	d, err := NewPayoutEmailDispatcher(&data.Models{}, &jobqueue.Store{})
	require.NoError(t, err)

	// Nothing is loaded or enqueued for event types that carry no mail.
	err = d.DispatchTx(context.Background(), nil, data.OutboxEvent{EventType: "payout.created"})
	assert.NoError(t, err)
	err = d.DispatchTx(context.Background(), nil, data.OutboxEvent{EventType: "booking.confirmed"})
	assert.NoError(t, err)
}

func Test_payoutEmailTemplate(t *testing.T) {
	testCases := []struct {
		eventType    string
		wantTemplate string
		wantSubject  string
	}{
		{eventType: "payout.completed", wantTemplate: "payout_completed", wantSubject: "Your payout is on its way"},
		{eventType: "payout.failed", wantTemplate: "payout_failed", wantSubject: "Your payout could not be processed"},
		{eventType: "payout.created", wantTemplate: "", wantSubject: ""},
		{eventType: "task.completed", wantTemplate: "", wantSubject: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.eventType, func(t *testing.T) {
			template, subject := payoutEmailTemplate(tc.eventType)
			assert.Equal(t, tc.wantTemplate, template)
			assert.Equal(t, tc.wantSubject, subject)
		})
	}
}

func Test_RenderTemplate_payout_mails(t *testing.T) {
	html, err := RenderTemplate("payout_completed", "en", map[string]any{
		"Name": "Ana", "Amount": "2150", "Currency": "USD", "Date": "2026-08-01", "Reference": "ref-1",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "2150 USD")
	assert.Contains(t, html, "ref-1")

	html, err = RenderTemplate("payout_failed", "en", map[string]any{
		"Name": "Ana", "Amount": "2150", "Currency": "USD",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "returned to your balance")
}
