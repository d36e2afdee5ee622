package jobs

import (
	"context"
	"time"

	"github.com/opsplane/opsplane-backend/internal/outbox"
)

const (
	outboxRelayJobName     = "outbox_relay_job"
	outboxRelayJobInterval = 5 * time.Second
)

// OutboxRelayJob drains pending outbox events into their dispatchers. The
// relay itself holds the advisory lock, so overlapping instances are safe.
type OutboxRelayJob struct {
	relay *outbox.Relay
}

func NewOutboxRelayJob(relay *outbox.Relay) *OutboxRelayJob {
	return &OutboxRelayJob{relay: relay}
}

func (j *OutboxRelayJob) GetName() string {
	return outboxRelayJobName
}

func (j *OutboxRelayJob) GetInterval() time.Duration {
	return outboxRelayJobInterval
}

func (j *OutboxRelayJob) IsJobMultiTenant() bool {
	return false
}

func (j *OutboxRelayJob) Execute(ctx context.Context) error {
	return j.relay.RunPass(ctx)
}

var _ Job = (*OutboxRelayJob)(nil)
