package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/internal/utils"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultClaimBatch     = 10
	defaultAttemptTimeout = time.Minute
	retryBackoffBase      = 2 * time.Second
	retryBackoffCeiling   = 5 * time.Minute
)

// Handler executes one named job type.
type Handler interface {
	Name() string
	Execute(ctx context.Context, job *Job) error
}

// TimeoutHandler overrides the per-attempt timeout.
type TimeoutHandler interface {
	Handler
	AttemptTimeout() time.Duration
}

// FailureHook is invoked after the final attempt of a job is exhausted, e.g.
// to refund a payout or alert an operator. The job is already marked FAILED.
type FailureHook interface {
	OnFinalFailure(ctx context.Context, job *Job, runErr error)
}

type WorkerPoolOptions struct {
	Store          *Store
	Queue          string
	Concurrency    int
	PollInterval   time.Duration
	ClaimBatch     int
	MonitorService monitor.MonitorServiceInterface
}

// WorkerPool polls one queue and runs claimed jobs through registered
// handlers. Stop drains in-flight work and releases unstarted claims.
type WorkerPool struct {
	store          *Store
	queue          string
	workerID       string
	concurrency    int
	pollInterval   time.Duration
	claimBatch     int
	monitorService monitor.MonitorServiceInterface

	handlers map[string]Handler

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewWorkerPool(opts WorkerPoolOptions) (*WorkerPool, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("a job store is required for the worker pool")
	}
	if opts.Queue == "" {
		return nil, fmt.Errorf("a queue name is required for the worker pool")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	claimBatch := opts.ClaimBatch
	if claimBatch <= 0 {
		claimBatch = defaultClaimBatch
	}
	return &WorkerPool{
		store:          opts.Store,
		queue:          opts.Queue,
		workerID:       fmt.Sprintf("%s-%s", opts.Queue, uuid.NewString()),
		concurrency:    concurrency,
		pollInterval:   pollInterval,
		claimBatch:     claimBatch,
		monitorService: opts.MonitorService,
		handlers:       make(map[string]Handler),
	}, nil
}

// RegisterHandler must be called before Start.
func (p *WorkerPool) RegisterHandler(h Handler) error {
	if _, exists := p.handlers[h.Name()]; exists {
		return fmt.Errorf("handler %q is already registered on queue %s", h.Name(), p.queue)
	}
	p.handlers[h.Name()] = h
	return nil
}

func (p *WorkerPool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	jobs := make(chan Job)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range jobs {
				p.runJob(ctx, job)
			}
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(jobs)

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.pollOnce(ctx, jobs)
			}
		}
	}()

	log.Ctx(ctx).Infof("job queue %s started with %d workers", p.queue, p.concurrency)
}

// Stop cancels polling and waits for in-flight jobs to settle.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) pollOnce(ctx context.Context, jobs chan<- Job) {
	claimed, err := p.store.Claim(ctx, p.queue, p.workerID, p.claimBatch)
	if err != nil {
		if ctx.Err() == nil {
			log.Ctx(ctx).WithError(err).Errorf("polling queue %s", p.queue)
		}
		return
	}

	for _, job := range claimed {
		select {
		case jobs <- job:
		case <-ctx.Done():
			// Shutdown raced the claim: put it back untouched.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := p.store.Release(releaseCtx, &job); err != nil {
				log.Ctx(ctx).WithError(err).Errorf("releasing job %s during shutdown", job.ID)
			}
			cancel()
			return
		}
	}
}

func (p *WorkerPool) runJob(ctx context.Context, job Job) {
	handler, ok := p.handlers[job.Name]
	if !ok {
		err := fmt.Errorf("no handler registered for job %q", job.Name)
		log.Ctx(ctx).WithError(err).Errorf("failing job %s", job.ID)
		p.settleFailure(ctx, &job, nil, err)
		return
	}

	timeout := defaultAttemptTimeout
	if th, ok := handler.(TimeoutHandler); ok {
		timeout = th.AttemptTimeout()
	}

	// The attempt outlives pool shutdown up to its own timeout, so a SIGTERM
	// does not corrupt a half-finished run.
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if job.TenantID.Valid {
		attemptCtx = tenantctx.WithTenant(attemptCtx, job.TenantID.String)
	}

	runErr := handler.Execute(attemptCtx, &job)
	if runErr == nil {
		if err := p.store.Complete(attemptCtx, &job); err != nil {
			log.Ctx(ctx).WithError(err).Errorf("completing job %s", job.ID)
		}
		return
	}

	p.settleFailure(attemptCtx, &job, handler, runErr)
}

func (p *WorkerPool) settleFailure(ctx context.Context, job *Job, handler Handler, runErr error) {
	attempt := job.Attempts + 1
	if attempt < job.MaxAttempts {
		nextRunAt := time.Now().UTC().Add(utils.JitteredBackoff(retryBackoffBase, attempt, retryBackoffCeiling))
		if err := p.store.Retry(ctx, job, runErr, nextRunAt); err != nil {
			log.Ctx(ctx).WithError(err).Errorf("scheduling retry of job %s", job.ID)
			return
		}
		p.countRetry(job)
		log.Ctx(ctx).WithError(runErr).Warnf("job %s (%s) attempt %d/%d failed, retrying at %s",
			job.ID, job.Name, attempt, job.MaxAttempts, nextRunAt.Format(time.RFC3339))
		return
	}

	if err := p.store.Fail(ctx, job, runErr); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("marking job %s failed", job.ID)
		return
	}
	log.Ctx(ctx).WithError(runErr).Errorf("job %s (%s) permanently failed after %d attempts", job.ID, job.Name, attempt)

	if hook, ok := handler.(FailureHook); ok {
		hook.OnFinalFailure(ctx, job, runErr)
	}
}

func (p *WorkerPool) countRetry(job *Job) {
	if p.monitorService == nil {
		return
	}
	labels := map[string]string{"queue": p.queue, "job": job.Name}
	if err := p.monitorService.MonitorCounters(monitor.JobRetriesTag, labels); err != nil {
		log.Errorf("recording job retry metric: %v", err)
	}
}
