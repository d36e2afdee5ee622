package schema

import "time"

type TenantStatus string

const (
	TenantStatusActive      TenantStatus = "ACTIVE"
	TenantStatusSuspended   TenantStatus = "SUSPENDED"
	TenantStatusDeactivated TenantStatus = "DEACTIVATED"
)

// Tenant is the top-level isolation boundary. Its lifecycle is managed by the
// platform layer; every tenant-owned entity references it through tenant_id.
type Tenant struct {
	ID           string       `json:"id" db:"id"`
	Slug         string       `json:"slug" db:"slug"`
	Status       TenantStatus `json:"status" db:"status"`
	BaseCurrency string       `json:"base_currency" db:"base_currency"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusDeactivated:
		return true
	}
	return false
}
