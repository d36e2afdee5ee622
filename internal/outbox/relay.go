package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/internal/utils"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	// relayLockName guarantees a single relay across all processes.
	relayLockName = "outbox:relay"

	defaultBatchSize    = 50
	defaultMaxAttempts  = 10
	retryBackoffBase    = time.Second
	retryBackoffCeiling = 10 * time.Minute
)

type RelayOptions struct {
	Models         *data.Models
	Registry       *Registry
	MonitorService monitor.MonitorServiceInterface
	BatchSize      int
	MaxAttempts    int
}

// Relay claims unpublished events under a global advisory lock and fans each
// one out through the registry. It is invoked by the scheduler; it never
// spawns its own goroutines.
type Relay struct {
	models         *data.Models
	registry       *Registry
	monitorService monitor.MonitorServiceInterface
	batchSize      int
	maxAttempts    int
}

func NewRelay(opts RelayOptions) (*Relay, error) {
	if opts.Models == nil {
		return nil, errors.New("models are required for the outbox relay")
	}
	if opts.Registry == nil {
		return nil, errors.New("a dispatcher registry is required for the outbox relay")
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Relay{
		models:         opts.Models,
		registry:       opts.Registry,
		monitorService: opts.MonitorService,
		batchSize:      batchSize,
		maxAttempts:    maxAttempts,
	}, nil
}

// RunPass drains publishable events until a batch comes back short. It
// returns immediately when another relay instance holds the lock.
func (r *Relay) RunPass(ctx context.Context) error {
	acquired, err := db.WithAdvisoryLock(ctx, r.models.DBConnectionPool, relayLockName, func(ctx context.Context) error {
		for {
			processed, err := r.processBatch(ctx)
			if err != nil {
				return err
			}
			if processed < r.batchSize {
				return nil
			}
		}
	})
	if err != nil {
		return fmt.Errorf("running outbox relay pass: %w", err)
	}
	if !acquired {
		log.Ctx(ctx).Debugf("outbox relay lock held elsewhere, skipping pass")
	}
	return nil
}

// processBatch claims one batch with SKIP LOCKED and settles every event's
// outcome inside the same transaction, so a crash mid-batch releases the
// claims untouched.
func (r *Relay) processBatch(ctx context.Context) (int, error) {
	return db.RunInTransactionWithResult(ctx, r.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (int, error) {
		events, err := r.models.OutboxEvents.ClaimBatch(ctx, dbTx, time.Now().UTC(), r.batchSize)
		if err != nil {
			return 0, err
		}

		for i := range events {
			r.settleEvent(ctx, dbTx, &events[i])
		}
		return len(events), nil
	})
}

func (r *Relay) settleEvent(ctx context.Context, dbTx db.DBTransaction, event *data.OutboxEvent) {
	// Dispatchers observe the event's own tenant, not whatever ambient
	// tenant the scheduler pass happens to carry.
	eventCtx := tenantctx.WithTenant(ctx, event.TenantID)

	dispatchErr := r.dispatch(eventCtx, dbTx, *event)
	if dispatchErr == nil {
		if err := r.models.OutboxEvents.MarkPublished(ctx, dbTx, event.ID); err != nil {
			log.Ctx(ctx).WithError(err).Errorf("marking outbox event %s published", event.ID)
			return
		}
		r.count(monitor.OutboxPublishedTag, event)
		return
	}

	attempt := event.Attempts + 1
	if attempt >= r.maxAttempts {
		if err := r.models.OutboxEvents.MarkTerminallyFailed(ctx, dbTx, event.ID, dispatchErr.Error()); err != nil {
			log.Ctx(ctx).WithError(err).Errorf("parking outbox event %s", event.ID)
			return
		}
		r.count(monitor.OutboxTerminalFailuresTag, event)
		log.Ctx(ctx).WithError(dispatchErr).WithFields(log.F{
			"event_id":   event.ID,
			"event_type": event.EventType,
			"attempts":   attempt,
		}).Error("outbox event terminally failed")
		return
	}

	nextAttemptAt := time.Now().UTC().Add(utils.JitteredBackoff(retryBackoffBase, attempt, retryBackoffCeiling))
	if err := r.models.OutboxEvents.MarkAttemptFailed(ctx, dbTx, event.ID, dispatchErr.Error(), nextAttemptAt); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("recording outbox event %s failure", event.ID)
		return
	}
	r.count(monitor.OutboxPublishFailuresTag, event)
}

func (r *Relay) dispatch(ctx context.Context, dbTx db.DBTransaction, event data.OutboxEvent) error {
	dispatchers := r.registry.For(event.EventType)
	if len(dispatchers) == 0 {
		// An event nobody consumes is published, not failed; otherwise it
		// would clog the queue forever.
		log.Ctx(ctx).Warnf("no dispatcher registered for outbox event type %s", event.EventType)
		return nil
	}
	for _, d := range dispatchers {
		if txAware, ok := d.(TxDispatcher); ok {
			if err := txAware.DispatchTx(ctx, dbTx, event); err != nil {
				return err
			}
			continue
		}
		if err := d.Dispatch(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// TxDispatcher is implemented by dispatchers that write rows of their own,
// such as the webhook fan-out; their writes commit atomically with the
// event's published mark.
type TxDispatcher interface {
	Dispatcher
	DispatchTx(ctx context.Context, dbTx db.DBTransaction, event data.OutboxEvent) error
}

func (r *Relay) count(tag monitor.MetricTag, event *data.OutboxEvent) {
	if r.monitorService == nil {
		return
	}
	labels := map[string]string{"tenant": event.TenantID, "event_type": event.EventType}
	if err := r.monitorService.MonitorCounters(tag, labels); err != nil {
		log.Errorf("recording outbox metric %s: %v", tag, err)
	}
}
