package jobs

import (
	"context"
	"time"

	"github.com/opsplane/opsplane-backend/internal/finance"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	payrollJobName     = "payroll_job"
	payrollJobInterval = 1 * time.Hour
)

// PayrollJob accrues salaried payouts for the current month. The per-employee
// idempotency key makes repeated runs within the same month no-ops, so the
// hourly cadence only exists to pick up profiles added mid-month.
type PayrollJob struct {
	financeService *finance.Service
}

func NewPayrollJob(financeService *finance.Service) *PayrollJob {
	return &PayrollJob{financeService: financeService}
}

func (j *PayrollJob) GetName() string {
	return payrollJobName
}

func (j *PayrollJob) GetInterval() time.Duration {
	return payrollJobInterval
}

func (j *PayrollJob) IsJobMultiTenant() bool {
	return true
}

func (j *PayrollJob) Execute(ctx context.Context) error {
	now := time.Now().UTC()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	result, err := j.financeService.RunPayrollForTenant(ctx, month)
	if err != nil {
		return err
	}
	if result.Created > 0 {
		log.Ctx(ctx).Infof("payroll run created %d payouts (%d already existed)", result.Created, result.Skipped)
	}
	if result.Failed > 0 {
		log.Ctx(ctx).Warnf("payroll run left %d users unpaid in failed batches, next run retries them", result.Failed)
	}
	return nil
}

var _ Job = (*PayrollJob)(nil)
