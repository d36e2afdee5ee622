package crashtracker

import (
	"context"
	"time"
)

// CrashTrackerClient reports unexpected errors and panics to the configured
// backend. Long-lived goroutines (scheduler workers, the audit writer) take
// their own Clone so scoped tags never leak between them.
type CrashTrackerClient interface {
	LogAndReportErrors(ctx context.Context, err error, msg string)
	LogAndReportMessages(ctx context.Context, msg string)
	// FlushEvents drains buffered events before shutdown; false means the
	// wait timed out.
	FlushEvents(waitTime time.Duration) bool
	Recover()
	Clone() CrashTrackerClient
}
