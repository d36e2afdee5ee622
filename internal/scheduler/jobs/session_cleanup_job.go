package jobs

import (
	"context"
	"time"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	sessionCleanupJobName     = "session_cleanup_job"
	sessionCleanupJobInterval = 1 * time.Hour

	// expiredTokenRetention keeps expired rows around briefly so a rotation
	// race still finds the row it expects.
	expiredTokenRetention = 24 * time.Hour
)

// SessionCleanupJob deletes refresh tokens that expired past the retention
// window.
type SessionCleanupJob struct {
	models *data.Models
}

func NewSessionCleanupJob(models *data.Models) *SessionCleanupJob {
	return &SessionCleanupJob{models: models}
}

func (j *SessionCleanupJob) GetName() string {
	return sessionCleanupJobName
}

func (j *SessionCleanupJob) GetInterval() time.Duration {
	return sessionCleanupJobInterval
}

func (j *SessionCleanupJob) IsJobMultiTenant() bool {
	return false
}

func (j *SessionCleanupJob) Execute(ctx context.Context) error {
	deleted, err := j.models.RefreshTokens.DeleteExpired(ctx, expiredTokenRetention)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Ctx(ctx).Infof("deleted %d expired refresh tokens", deleted)
	}
	return nil
}

var _ Job = (*SessionCleanupJob)(nil)
