// Package outbox implements the transactional outbox: state changes and the
// events describing them commit in one transaction, and a single relay
// publishes the events afterwards.
package outbox

import (
	"context"
	"fmt"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/data"
)

// EmitTx writes the event on the caller's transaction. It is the only
// sanctioned way to produce an event: emitting outside the transaction that
// made the change reintroduces the dual-write race the outbox exists to kill.
func EmitTx(ctx context.Context, dbTx db.DBTransaction, models *data.Models, aggregateType, aggregateID, eventType string, payload any) error {
	if _, err := models.OutboxEvents.Insert(ctx, dbTx, aggregateType, aggregateID, eventType, payload); err != nil {
		return fmt.Errorf("emitting outbox event %s: %w", eventType, err)
	}
	return nil
}

// Dispatcher delivers one claimed event to its consumers.
type Dispatcher interface {
	Dispatch(ctx context.Context, event data.OutboxEvent) error
}

type DispatcherFunc func(ctx context.Context, event data.OutboxEvent) error

func (f DispatcherFunc) Dispatch(ctx context.Context, event data.OutboxEvent) error {
	return f(ctx, event)
}

// Registry routes events to dispatchers by exact event type, falling back to
// the catch-all registered under "*".
type Registry struct {
	dispatchers map[string][]Dispatcher
}

func NewRegistry() *Registry {
	return &Registry{dispatchers: make(map[string][]Dispatcher)}
}

func (r *Registry) Register(eventType string, dispatcher Dispatcher) {
	r.dispatchers[eventType] = append(r.dispatchers[eventType], dispatcher)
}

func (r *Registry) For(eventType string) []Dispatcher {
	out := make([]Dispatcher, 0, len(r.dispatchers[eventType])+len(r.dispatchers["*"]))
	out = append(out, r.dispatchers[eventType]...)
	out = append(out, r.dispatchers["*"]...)
	return out
}
