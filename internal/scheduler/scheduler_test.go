package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/crashtracker"
	"github.com/opsplane/opsplane-backend/internal/scheduler/jobs"
)

type mockJob struct {
	name       string
	interval   time.Duration
	executions int
	mu         sync.Mutex
}

func (m *mockJob) GetName() string {
	return m.name
}

func (m *mockJob) GetInterval() time.Duration {
	return m.interval
}

func (m *mockJob) IsJobMultiTenant() bool {
	return false
}

func (m *mockJob) Execute(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	return nil
}

func (m *mockJob) GetExecutions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions
}

func TestScheduler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mockCrashTrackerClient := &crashtracker.MockCrashTrackerClient{}
	scheduler := &Scheduler{
		jobs:               make(map[string]jobs.Job),
		cancel:             cancel,
		crashTrackerClient: mockCrashTrackerClient,
		jobQueue:           make(chan jobs.Job),
	}

	clone := crashtracker.MockCrashTrackerClient{}
	mockCrashTrackerClient.On("Clone").Return(&clone).Times(SchedulerWorkerCount)

	fastJob := &mockJob{name: "fast_job", interval: 100 * time.Millisecond}
	slowJob := &mockJob{name: "slow_job", interval: 20 * time.Second}

	scheduler.addJob(fastJob)
	scheduler.addJob(slowJob)

	scheduler.start(ctx)
	time.Sleep(500 * time.Millisecond)

	require.Greater(t, fastJob.GetExecutions(), 0, "fast job should have run at least once")
	require.Zero(t, slowJob.GetExecutions(), "slow job should not have run yet")

	cancel()
	time.Sleep(100 * time.Millisecond)

	mockCrashTrackerClient.AssertExpectations(t)
}
