// Package events fans domain events out to fire-and-forget sinks: the
// notification/audit collaborators consume event records but may never fail
// or block a primary operation.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Event is one fire-and-forget domain event record.
type Event struct {
	Type      string         `json:"type"`
	BatchID   string         `json:"batch_id,omitempty"`
	LedgerID  string         `json:"ledger_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Event types emitted by the pipeline and custody ledger.
const (
	BatchCreated    = "batch.created"
	BatchAnchored   = "batch.anchored"
	BatchRecalled   = "batch.recalled"
	StepAppended    = "custody.step_appended"
	LedgerRecalled  = "custody.recalled"
	SignatureSigned = "signature.signed"
)

// Sink receives delivered events. Deliver errors are logged and swallowed.
type Sink interface {
	Deliver(ctx context.Context, event *Event) error
	Name() string
}

// Dispatcher coordinates multiple sinks to consume domain events
type Dispatcher struct {
	sinks []Sink
}

// New creates a new Dispatcher with the given sinks
func New(sinks []Sink) *Dispatcher {
	return &Dispatcher{
		sinks: sinks,
	}
}

// Emit delivers one event to all registered sinks. Sink failures are logged
// and never propagated; the caller's primary operation has already succeeded.
func (d *Dispatcher) Emit(ctx context.Context, event *Event) {
	if d == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			slog.Error("Event delivery failed",
				"sink", sink.Name(),
				"event_type", event.Type,
				"batch_id", event.BatchID,
				"error", err,
			)
			// Continue delivering to the remaining sinks
		}
	}
}

// LogSink writes events to the structured log. Stands in for the external
// notification collaborator in dev mode.
type LogSink struct{}

func (LogSink) Deliver(ctx context.Context, event *Event) error {
	slog.Info("Domain event",
		"event_type", event.Type,
		"batch_id", event.BatchID,
		"ledger_id", event.LedgerID,
		"actor_id", event.ActorID,
	)
	return nil
}

func (LogSink) Name() string { return "log" }
