package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opsplane/opsplane-backend/internal/crashtracker"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/finance"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/outbox"
	"github.com/opsplane/opsplane-backend/internal/scheduler/jobs"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

// SchedulerWorkerCount is the number of workers draining the job queue.
const SchedulerWorkerCount = 5

// Scheduler runs registered jobs at their intervals. Multi-tenant jobs fan
// out across all active tenants with the tenant context set.
type Scheduler struct {
	jobs               map[string]jobs.Job
	cancel             context.CancelFunc
	crashTrackerClient crashtracker.CrashTrackerClient
	models             *data.Models
	jobQueue           chan jobs.Job
	// enqueuedJobs prevents stacking a job behind itself when a run takes
	// longer than its interval.
	enqueuedJobs sync.Map
}

type JobRegisterOption func(*Scheduler)

// Start initializes and runs the scheduler. It blocks until ctx is cancelled.
func Start(ctx context.Context, models *data.Models, crashTrackerClient crashtracker.CrashTrackerClient, jobRegisters ...JobRegisterOption) {
	defer crashTrackerClient.FlushEvents(2 * time.Second)
	defer crashTrackerClient.Recover()

	ctx, cancel := context.WithCancel(ctx)
	scheduler := &Scheduler{
		jobs:               make(map[string]jobs.Job),
		cancel:             cancel,
		crashTrackerClient: crashTrackerClient,
		models:             models,
		jobQueue:           make(chan jobs.Job),
	}

	for _, register := range jobRegisters {
		register(scheduler)
	}

	scheduler.start(ctx)
	<-ctx.Done()
	scheduler.stop()
}

func (s *Scheduler) addJob(job jobs.Job) {
	log.Infof("registering job to scheduler [name: %s], [interval: %s], [isMultiTenant: %t]",
		job.GetName(), job.GetInterval(), job.IsJobMultiTenant())
	s.jobs[job.GetName()] = job
}

func (s *Scheduler) start(ctx context.Context) {
	if len(s.jobs) == 0 {
		log.Ctx(ctx).Info("No jobs to start")
		s.stop()
		return
	}
	log.Ctx(ctx).Infof("Starting scheduler with %d workers...", SchedulerWorkerCount)

	for i := 1; i <= SchedulerWorkerCount; i++ {
		go worker(ctx, i, s.crashTrackerClient.Clone(), s)
	}

	for _, job := range s.jobs {
		go func(job jobs.Job) {
			ticker := time.NewTicker(job.GetInterval())
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					jobName := job.GetName()
					if _, alreadyEnqueued := s.enqueuedJobs.LoadOrStore(jobName, true); !alreadyEnqueued {
						s.jobQueue <- job
					} else {
						log.Ctx(ctx).Debugf("Skipping job %s, already in queue", jobName)
					}
				case <-ctx.Done():
					return
				}
			}
		}(job)
	}
}

func (s *Scheduler) stop() {
	log.Info("Stopping scheduler...")
	s.cancel()
}

func worker(ctx context.Context, workerID int, crashTrackerClient crashtracker.CrashTrackerClient, scheduler *Scheduler) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Errorf("Worker %d encountered a panic while processing a job: %v", workerID, r)
		}
	}()
	for {
		select {
		case job := <-scheduler.jobQueue:
			executeJob(ctx, job, workerID, crashTrackerClient, scheduler.models)
			scheduler.enqueuedJobs.Delete(job.GetName())
		case <-ctx.Done():
			log.Ctx(ctx).Infof("Worker %d stopping...", workerID)
			return
		}
	}
}

func executeJob(ctx context.Context, job jobs.Job, workerID int, crashTrackerClient crashtracker.CrashTrackerClient, models *data.Models) {
	if !job.IsJobMultiTenant() {
		if err := job.Execute(ctx); err != nil {
			msg := fmt.Sprintf("error processing job %s on worker %d", job.GetName(), workerID)
			crashTrackerClient.LogAndReportErrors(ctx, err, msg)
		}
		return
	}

	tenants, err := models.Tenants.GetAllActive(ctx)
	if err != nil {
		msg := fmt.Sprintf("error getting active tenants for job %s on worker %d", job.GetName(), workerID)
		crashTrackerClient.LogAndReportErrors(ctx, err, msg)
		return
	}
	for _, t := range tenants {
		runErr := tenantctx.RunWithTenant(ctx, t.ID, func(tenantCtx context.Context) error {
			return job.Execute(tenantCtx)
		})
		if runErr != nil {
			msg := fmt.Sprintf("error processing job %s for tenant %s on worker %d", job.GetName(), t.ID, workerID)
			crashTrackerClient.LogAndReportErrors(ctx, runErr, msg)
		}
	}
}

func WithOutboxRelayJob(relay *outbox.Relay) JobRegisterOption {
	return func(s *Scheduler) {
		s.addJob(jobs.NewOutboxRelayJob(relay))
	}
}

func WithPayrollJob(financeService *finance.Service) JobRegisterOption {
	return func(s *Scheduler) {
		s.addJob(jobs.NewPayrollJob(financeService))
	}
}

func WithRecurringTransactionsJob(financeService *finance.Service) JobRegisterOption {
	return func(s *Scheduler) {
		s.addJob(jobs.NewRecurringTransactionsJob(financeService))
	}
}

func WithSessionCleanupJob(models *data.Models) JobRegisterOption {
	return func(s *Scheduler) {
		s.addJob(jobs.NewSessionCleanupJob(models))
	}
}

func WithStuckJobsReaperJob(jobStore *jobqueue.Store) JobRegisterOption {
	return func(s *Scheduler) {
		s.addJob(jobs.NewStuckJobsReaperJob(jobStore))
	}
}
