package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/data"
)

func Test_Registry_routes_by_event_type_with_catch_all(t *testing.T) {
	registry := NewRegistry()

	var calls []string
	record := func(name string) Dispatcher {
		return DispatcherFunc(func(ctx context.Context, event data.OutboxEvent) error {
			calls = append(calls, name)
			return nil
		})
	}

	registry.Register("transaction.created", record("transactions"))
	registry.Register("transaction.created", record("second"))
	registry.Register("*", record("catch-all"))

	for _, d := range registry.For("transaction.created") {
		require.NoError(t, d.Dispatch(context.Background(), data.OutboxEvent{}))
	}
	assert.Equal(t, []string{"transactions", "second", "catch-all"}, calls)

	calls = nil
	for _, d := range registry.For("payout.completed") {
		require.NoError(t, d.Dispatch(context.Background(), data.OutboxEvent{}))
	}
	assert.Equal(t, []string{"catch-all"}, calls, "unknown types hit only the catch-all")
}

func Test_NewRelay_validates_options(t *testing.T) {
	_, err := NewRelay(RelayOptions{})
	assert.EqualError(t, err, "models are required for the outbox relay")

	_, err = NewRelay(RelayOptions{Models: &data.Models{}})
	assert.EqualError(t, err, "a dispatcher registry is required for the outbox relay")

	relay, err := NewRelay(RelayOptions{Models: &data.Models{}, Registry: NewRegistry()})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, relay.batchSize)
	assert.Equal(t, defaultMaxAttempts, relay.maxAttempts)
}
