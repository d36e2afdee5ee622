package jobs

import (
	"context"
	"time"

	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	stuckJobsReaperJobName     = "stuck_jobs_reaper_job"
	stuckJobsReaperJobInterval = 5 * time.Minute

	// stuckJobAge must exceed the longest per-attempt timeout of any queue
	// handler, otherwise a healthy run could be reclaimed mid-flight.
	stuckJobAge = 15 * time.Minute
)

// StuckJobsReaperJob releases queue jobs whose worker died mid-run so another
// worker can claim them.
type StuckJobsReaperJob struct {
	jobStore *jobqueue.Store
}

func NewStuckJobsReaperJob(jobStore *jobqueue.Store) *StuckJobsReaperJob {
	return &StuckJobsReaperJob{jobStore: jobStore}
}

func (j *StuckJobsReaperJob) GetName() string {
	return stuckJobsReaperJobName
}

func (j *StuckJobsReaperJob) GetInterval() time.Duration {
	return stuckJobsReaperJobInterval
}

func (j *StuckJobsReaperJob) IsJobMultiTenant() bool {
	return false
}

func (j *StuckJobsReaperJob) Execute(ctx context.Context) error {
	reaped, err := j.jobStore.ReapStuck(ctx, stuckJobAge)
	if err != nil {
		return err
	}
	if reaped > 0 {
		log.Ctx(ctx).Warnf("released %d stuck queue jobs", reaped)
	}
	return nil
}

var _ Job = (*StuckJobsReaperJob)(nil)
