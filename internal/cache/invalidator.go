package cache

import (
	"context"
	"errors"
	"strings"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/outbox"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

// DashboardNamespace holds the aggregated tenant summaries served by the
// dashboard endpoints.
const DashboardNamespace = "dashboard"

// invalidatingPrefixes are the event families whose payloads feed the
// dashboard aggregates.
var invalidatingPrefixes = []string{"transaction.", "payout.", "booking.", "task."}

// Invalidator is an outbox dispatcher that drops derived cache entries when
// the underlying financial data changes.
type Invalidator struct {
	cache Cache
}

var _ outbox.Dispatcher = (*Invalidator)(nil)

func NewInvalidator(cache Cache) (*Invalidator, error) {
	if cache == nil {
		return nil, errors.New("a cache is required for the invalidator")
	}
	return &Invalidator{cache: cache}, nil
}

func (i *Invalidator) Dispatch(ctx context.Context, event data.OutboxEvent) error {
	if !InvalidatesDashboard(event.EventType) {
		return nil
	}
	if err := i.cache.DeleteNamespace(ctx, DashboardNamespace); err != nil {
		// Stale dashboard numbers expire on their own TTL; do not fail the
		// event over them.
		log.Ctx(ctx).WithError(err).Warnf("invalidating %s cache after %s", DashboardNamespace, event.EventType)
	}
	return nil
}

// InvalidatesDashboard reports whether the event type touches dashboard data.
func InvalidatesDashboard(eventType string) bool {
	for _, prefix := range invalidatingPrefixes {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}
