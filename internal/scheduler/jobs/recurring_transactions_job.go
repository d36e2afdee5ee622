package jobs

import (
	"context"
	"time"

	"github.com/opsplane/opsplane-backend/internal/finance"
)

const (
	recurringTransactionsJobName     = "recurring_transactions_job"
	recurringTransactionsJobInterval = 10 * time.Minute
)

// RecurringTransactionsJob materializes due recurring schedules into ledger
// rows for each tenant.
type RecurringTransactionsJob struct {
	financeService *finance.Service
}

func NewRecurringTransactionsJob(financeService *finance.Service) *RecurringTransactionsJob {
	return &RecurringTransactionsJob{financeService: financeService}
}

func (j *RecurringTransactionsJob) GetName() string {
	return recurringTransactionsJobName
}

func (j *RecurringTransactionsJob) GetInterval() time.Duration {
	return recurringTransactionsJobInterval
}

func (j *RecurringTransactionsJob) IsJobMultiTenant() bool {
	return true
}

func (j *RecurringTransactionsJob) Execute(ctx context.Context) error {
	_, err := j.financeService.MaterializeRecurringTransactions(ctx, time.Now().UTC())
	return err
}

var _ Job = (*RecurringTransactionsJob)(nil)
