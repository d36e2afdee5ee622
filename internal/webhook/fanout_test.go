package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
)

func Test_NewFanout_validation(t *testing.T) {
	_, err := NewFanout(nil, &jobqueue.Store{})
	assert.EqualError(t, err, "models are required for the webhook fanout")

	_, err = NewFanout(&data.Models{}, nil)
	assert.EqualError(t, err, "a job store is required for the webhook fanout")

	fanout, err := NewFanout(&data.Models{}, &jobqueue.Store{})
	require.NoError(t, err)
	assert.NotNil(t, fanout)
}

func Test_Fanout_Dispatch_refuses_to_run_outside_the_relay_tx(t *testing.T) {
	fanout, err := NewFanout(&data.Models{}, &jobqueue.Store{})
	require.NoError(t, err)

	err = fanout.Dispatch(context.Background(), data.OutboxEvent{})
	assert.EqualError(t, err, "webhook fanout must run on the relay transaction")
}

func Test_NewDeliverer_validation(t *testing.T) {
	_, err := NewDeliverer(nil, nil)
	assert.EqualError(t, err, "models are required for the webhook deliverer")

	deliverer, err := NewDeliverer(&data.Models{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DeliverWebhookJob, deliverer.Name())
	assert.Greater(t, deliverer.AttemptTimeout(), deliveryTimeout)
}
