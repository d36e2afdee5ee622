package jobs

import (
	"context"
	"time"
)

// Job is a unit of periodic work. Multi-tenant jobs are executed once per
// active tenant with the tenant already set in the context.
type Job interface {
	Execute(context.Context) error
	GetInterval() time.Duration
	GetName() string
	IsJobMultiTenant() bool
}
