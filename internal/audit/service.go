package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/crashtracker"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	defaultQueueSize = 1024
	// chainWriteAttempts bounds retries against concurrent appenders racing on
	// the same sequence number.
	chainWriteAttempts = 3
	// DLQActionPrefix marks entries parked after exhausting chain retries.
	DLQActionPrefix = "DLQ_FAILED:"
)

type ServiceInterface interface {
	Log(ctx context.Context, entry Entry) error
	VerifyChain(ctx context.Context, tenantID string) (*VerificationReport, error)
}

var _ ServiceInterface = (*Service)(nil)

// Entry is what producers hand over. Old/new values are masked on enqueue.
type Entry struct {
	Action     string
	EntityName string
	EntityID   string
	OldValues  map[string]any
	NewValues  map[string]any
	IP         string
	UserAgent  string
	Method     string
	Path       string
	StatusCode int
	DurationMS int64
}

type ServiceOptions struct {
	Models             *data.Models
	MonitorService     monitor.MonitorServiceInterface
	CrashTrackerClient crashtracker.CrashTrackerClient
	QueueSize          int
}

// Service decouples audit writes from request latency: Log enqueues, a
// background worker appends to the per-tenant hash chain. A failed write is
// counted and reported, never propagated to the business operation that
// produced it.
type Service struct {
	models             *data.Models
	monitorService     monitor.MonitorServiceInterface
	crashTrackerClient crashtracker.CrashTrackerClient

	queue     chan data.AuditLog
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Models == nil {
		return nil, fmt.Errorf("models are required for the audit service")
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Service{
		models:             opts.Models,
		monitorService:     opts.MonitorService,
		crashTrackerClient: opts.CrashTrackerClient,
		queue:              make(chan data.AuditLog, queueSize),
	}, nil
}

// Start launches the single chain writer. One writer keeps tip contention low;
// the row lock in writeChained still protects against other processes.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for entry := range s.queue {
			s.writeChained(ctx, entry)
		}
	}()
}

// Close drains the queue and stops the writer.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
		s.wg.Wait()
	})
}

// Log captures the ambient tenant and user, masks sensitive values and
// enqueues the entry. When the queue is saturated it falls back to a
// synchronous write so entries are not silently dropped under burst.
func (s *Service) Log(ctx context.Context, entry Entry) error {
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		return fmt.Errorf("audit log requires a tenant: %w", err)
	}

	row, err := s.buildRow(ctx, tenantID, entry)
	if err != nil {
		return err
	}

	select {
	case s.queue <- *row:
	default:
		s.countFailure(tenantID, "queue_full")
		log.Ctx(ctx).Warnf("audit queue saturated, writing %s synchronously", entry.Action)
		s.writeChained(ctx, *row)
	}
	return nil
}

func (s *Service) buildRow(ctx context.Context, tenantID string, entry Entry) (*data.AuditLog, error) {
	oldValues, err := marshalMasked(entry.OldValues)
	if err != nil {
		return nil, fmt.Errorf("masking old values of %s: %w", entry.Action, err)
	}
	newValues, err := marshalMasked(entry.NewValues)
	if err != nil {
		return nil, fmt.Errorf("masking new values of %s: %w", entry.Action, err)
	}

	row := data.AuditLog{
		TenantID:   tenantID,
		Action:     entry.Action,
		EntityName: entry.EntityName,
		EntityID:   entry.EntityID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		Method:     entry.Method,
		Path:       entry.Path,
		StatusCode: entry.StatusCode,
		DurationMS: entry.DurationMS,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	if userID, ok := tenantctx.UserID(ctx); ok {
		row.UserID = sql.NullString{String: userID, Valid: true}
	}
	return &row, nil
}

func marshalMasked(values map[string]any) (json.RawMessage, error) {
	if values == nil {
		return nil, nil
	}
	raw, err := json.Marshal(MaskSensitiveValues(values))
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// writeChained appends the entry to the tenant's chain. The tip row lock
// serializes appenders; the partial unique index on (tenant_id, sequence)
// backstops the lock, and a violation triggers a re-read and retry.
func (s *Service) writeChained(ctx context.Context, row data.AuditLog) {
	var lastErr error
	for attempt := 1; attempt <= chainWriteAttempts; attempt++ {
		_, err := db.RunInTransactionWithResult(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (*data.AuditLog, error) {
			return s.appendToChain(ctx, dbTx, row)
		})
		if err == nil {
			return
		}
		lastErr = err
		if !errors.Is(err, data.ErrRecordAlreadyExists) {
			break
		}
	}

	s.countFailure(row.TenantID, "chain_write")
	if s.crashTrackerClient != nil {
		s.crashTrackerClient.LogAndReportErrors(ctx, lastErr, "audit chain write failed")
	}
	s.writeDLQ(ctx, row, lastErr)
}

func (s *Service) appendToChain(ctx context.Context, dbTx db.DBTransaction, row data.AuditLog) (*data.AuditLog, error) {
	previousHash := ""
	row.SequenceNumber = 0

	tip, err := s.models.AuditLogs.GetChainTipForUpdate(ctx, dbTx, row.TenantID)
	if err != nil && !errors.Is(err, data.ErrRecordNotFound) {
		return nil, err
	}
	if tip != nil {
		previousHash = tip.Hash
		row.SequenceNumber = tip.SequenceNumber + 1
		row.PreviousHash = sql.NullString{String: tip.Hash, Valid: true}
	}

	row.Hash, err = ComputeHash(previousHash, &row)
	if err != nil {
		return nil, err
	}

	return s.models.AuditLogs.Insert(ctx, dbTx, row)
}

// writeDLQ parks the entry outside the chain so the payload survives even
// when the chain cannot be extended.
func (s *Service) writeDLQ(ctx context.Context, row data.AuditLog, cause error) {
	row.SequenceNumber = data.DLQSequenceNumber
	row.PreviousHash = sql.NullString{}
	row.Action = DLQActionPrefix + row.Action

	hash, err := ComputeHash("", &row)
	if err != nil {
		log.Ctx(ctx).WithError(err).Errorf("hashing audit DLQ entry %s", row.Action)
		return
	}
	row.Hash = hash

	if _, err := s.models.AuditLogs.Insert(ctx, s.models.DBConnectionPool, row); err != nil {
		s.countFailure(row.TenantID, "dlq_write")
		log.Ctx(ctx).WithError(err).WithFields(log.F{
			"action": row.Action,
			"cause":  fmt.Sprint(cause),
		}).Error("audit entry lost: DLQ write failed")
	}
}

func (s *Service) countFailure(tenantID, reason string) {
	if s.monitorService == nil {
		return
	}
	labels := map[string]string{"tenant": tenantID, "reason": reason}
	if err := s.monitorService.MonitorCounters(monitor.AuditWriteFailuresTag, labels); err != nil {
		log.Errorf("recording audit failure metric: %v", err)
	}
}
