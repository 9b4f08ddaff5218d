package core

import (
	"context"
	"time"
)

// EventType names a semantic event emitted while a run progresses.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventWorkerSelected  EventType = "worker.selected"
	EventSelectionFailed EventType = "worker.selection_failed"
	EventStepCompleted   EventType = "step.completed"
	EventRunTerminated   EventType = "run.terminated"
)

// Event is one semantic event. Payload keys depend on the type.
type Event struct {
	Type      EventType
	Worker    string
	RunID     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events. Emit must not block the run.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// EmitterFunc adapts a function into an EventEmitter.
type EmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoopEventEmitter drops every event.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(context.Context, Event) {}

// Fanout delivers each event to every emitter, in order.
type Fanout []EventEmitter

// Emit implements EventEmitter.
func (f Fanout) Emit(ctx context.Context, event Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType EventType, worker, runID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Worker:    worker,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
