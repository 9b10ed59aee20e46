package events

import (
	"context"
	"errors"
	"testing"
)

type recordingSink struct {
	name     string
	events   []*Event
	failWith error
}

func (s *recordingSink) Deliver(ctx context.Context, event *Event) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Name() string { return s.name }

func TestEmitDeliversToAllSinks(t *testing.T) {
	first := &recordingSink{name: "first"}
	second := &recordingSink{name: "second"}
	d := New([]Sink{first, second})

	d.Emit(context.Background(), &Event{Type: BatchCreated, BatchID: "b-1"})

	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("Expected delivery to both sinks, got %d and %d", len(first.events), len(second.events))
	}
	if first.events[0].Timestamp.IsZero() {
		t.Error("Expected Emit to stamp the event timestamp")
	}
}

func TestEmitContinuesPastFailingSink(t *testing.T) {
	broken := &recordingSink{name: "broken", failWith: errors.New("sink down")}
	healthy := &recordingSink{name: "healthy"}
	d := New([]Sink{broken, healthy})

	d.Emit(context.Background(), &Event{Type: LedgerRecalled, LedgerID: "ledger-1"})

	if len(healthy.events) != 1 {
		t.Fatal("Expected delivery to continue after a sink failure")
	}
}

func TestEmitOnNilDispatcher(t *testing.T) {
	var d *Dispatcher
	// Must not panic.
	d.Emit(context.Background(), &Event{Type: BatchCreated})
}
