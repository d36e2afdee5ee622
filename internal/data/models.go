package data

import (
	"errors"

	"github.com/opsplane/opsplane-backend/db"
)

var (
	ErrRecordNotFound          = errors.New("record not found")
	ErrRecordAlreadyExists     = errors.New("record already exists")
	ErrMismatchNumRowsAffected = errors.New("mismatch number of rows affected")
	ErrMissingInput            = errors.New("missing input")
	ErrTenantMismatch          = errors.New("row tenant does not match ambient tenant")
)

type Models struct {
	Tenants               *TenantModel
	Users                 *UserModel
	RefreshTokens         *RefreshTokenModel
	EmployeeProfiles      *EmployeeProfileModel
	EmployeeWallets       *EmployeeWalletModel
	Bookings              *BookingModel
	Tasks                 *TaskModel
	Transactions          *TransactionModel
	RecurringTransactions *RecurringTransactionModel
	ExchangeRates         *ExchangeRateModel
	Payouts               *PayoutModel
	OutboxEvents          *OutboxEventModel
	AuditLogs             *AuditLogModel
	Webhooks              *WebhookModel
	WebhookDeliveries     *WebhookDeliveryModel
	DBConnectionPool      db.DBConnectionPool
}

func NewModels(dbConnectionPool db.DBConnectionPool) (*Models, error) {
	if dbConnectionPool == nil {
		return nil, errors.New("dbConnectionPool is required for NewModels")
	}
	return &Models{
		Tenants:               &TenantModel{dbConnectionPool: dbConnectionPool},
		Users:                 &UserModel{dbConnectionPool: dbConnectionPool},
		RefreshTokens:         &RefreshTokenModel{dbConnectionPool: dbConnectionPool},
		EmployeeProfiles:      &EmployeeProfileModel{dbConnectionPool: dbConnectionPool},
		EmployeeWallets:       &EmployeeWalletModel{dbConnectionPool: dbConnectionPool},
		Bookings:              &BookingModel{dbConnectionPool: dbConnectionPool},
		Tasks:                 &TaskModel{dbConnectionPool: dbConnectionPool},
		Transactions:          &TransactionModel{dbConnectionPool: dbConnectionPool},
		RecurringTransactions: &RecurringTransactionModel{dbConnectionPool: dbConnectionPool},
		ExchangeRates:         &ExchangeRateModel{dbConnectionPool: dbConnectionPool},
		Payouts:               &PayoutModel{dbConnectionPool: dbConnectionPool},
		OutboxEvents:          &OutboxEventModel{dbConnectionPool: dbConnectionPool},
		AuditLogs:             &AuditLogModel{dbConnectionPool: dbConnectionPool},
		Webhooks:              &WebhookModel{dbConnectionPool: dbConnectionPool},
		WebhookDeliveries:     &WebhookDeliveryModel{dbConnectionPool: dbConnectionPool},
		DBConnectionPool:      dbConnectionPool,
	}, nil
}
