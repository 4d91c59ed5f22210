package events

import (
	"sync"

	"cookiejar/core/types"
)

// Event represents a structured state change emitted by the jar.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers, logs).
// Emit is fire-and-forget: a subscriber failure must never surface to the
// caller that produced the event.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans events out to every configured emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}

// Recorder retains emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
