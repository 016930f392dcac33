package events

import (
	"sync"

	"remitlend/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. logs, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events raised inside a ledger call until the call commits.
// Events of a failed call are discarded together with its state writes.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if b == nil || e == nil {
		return
	}
	b.events = append(b.events, e)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Reset drops everything buffered so far.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.events = b.events[:0]
}

// FlushTo forwards the buffered events to sink and clears the buffer.
func (b *Buffer) FlushTo(sink Emitter) {
	if b == nil {
		return
	}
	if sink != nil {
		for _, e := range b.events {
			sink.Emit(e)
		}
	}
	b.Reset()
}

// Fanout delivers each event to every registered sink.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Emitter
}

// NewFanout builds a fanout over the provided sinks, skipping nil entries.
func NewFanout(sinks ...Emitter) *Fanout {
	f := &Fanout{}
	for _, sink := range sinks {
		f.Add(sink)
	}
	return f
}

// Add registers another sink.
func (f *Fanout) Add(sink Emitter) {
	if f == nil || sink == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

// Emit implements the Emitter interface.
func (f *Fanout) Emit(e Event) {
	if f == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sink := range f.sinks {
		sink.Emit(e)
	}
}
