// Package log provides a context-aware logger built on logrus. A logger entry
// travels inside context.Context so request- and job-scoped fields
// (tenant_id, correlation_id, user_id) are emitted on every line without
// explicit threading.
package log

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

type contextKey struct{}

// F is a shorthand for a set of log fields.
type F map[string]any

// DefaultLogger is the process-wide fallback used when the context carries no
// logger.
var DefaultLogger = NewEntry()

// Entry wraps a logrus.Entry.
type Entry struct {
	*logrus.Entry
}

func NewEntry() *Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	return &Entry{Entry: logrus.NewEntry(l)}
}

func (e *Entry) WithField(key string, value any) *Entry {
	return &Entry{Entry: e.Entry.WithField(key, value)}
}

func (e *Entry) WithFields(fields F) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

// SetLevel sets the level on the underlying logger.
func (e *Entry) SetLevel(level logrus.Level) {
	e.Logger.SetLevel(level)
}

// SetOutput redirects the underlying logger's output. Used by tests.
func (e *Entry) SetOutput(w io.Writer) {
	e.Logger.SetOutput(w)
}

// Set stores the entry in the context.
func Set(ctx context.Context, e *Entry) context.Context {
	return context.WithValue(ctx, contextKey{}, e)
}

// Ctx returns the logger stored in the context, or DefaultLogger.
func Ctx(ctx context.Context) *Entry {
	if e, ok := ctx.Value(contextKey{}).(*Entry); ok {
		return e
	}
	return DefaultLogger
}

// Package-level helpers that log through DefaultLogger.

func Infof(format string, args ...any)  { DefaultLogger.Infof(format, args...) }
func Info(args ...any)                  { DefaultLogger.Info(args...) }
func Warnf(format string, args ...any)  { DefaultLogger.Warnf(format, args...) }
func Errorf(format string, args ...any) { DefaultLogger.Errorf(format, args...) }
func Error(args ...any)                 { DefaultLogger.Error(args...) }
func Debugf(format string, args ...any) { DefaultLogger.Debugf(format, args...) }
func Fatalf(format string, args ...any) { DefaultLogger.Fatalf(format, args...) }
