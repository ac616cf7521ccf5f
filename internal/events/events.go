// Package events carries registry notifications from the execution host to
// external consumers. Delivery is best effort: sinks never feed back into the
// state of a committed call.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Event is a typed notification. Indexed fields are the ones consumers filter
// on; Data carries the payload. Byte values are 0x-prefixed hex.
type Event struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Indexed   map[string]string `json:"indexed"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp uint64            `json:"timestamp"`
}

// Marshal encodes the event as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Keys returns the indexed field names in a stable order.
func (e Event) Keys() []string {
	keys := make([]string, 0, len(e.Indexed))
	for k := range e.Indexed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event) error

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Fanout delivers to every sink and joins their errors.
type Fanout struct {
	sinks []Sink
}

// NewFanout builds a Fanout, skipping nil sinks.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Emit implements Sink.
func (f *Fanout) Emit(ctx context.Context, evt Event) error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.Emit(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Buffer collects events for one call so the host can release them after the
// call's writes are committed.
type Buffer struct {
	mu     sync.Mutex
	events []Event
	newID  func() string
}

// NewBuffer creates a Buffer. newID assigns IDs to events that carry none.
func NewBuffer(newID func() string) *Buffer {
	return &Buffer{newID: newID}
}

// Emit implements Sink.
func (b *Buffer) Emit(_ context.Context, evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if evt.ID == "" && b.newID != nil {
		evt.ID = b.newID()
	}
	b.events = append(b.events, evt)
	return nil
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush sends the buffered events to target in order and empties the buffer.
// Every event is attempted; errors are joined.
func (b *Buffer) Flush(ctx context.Context, target Sink) error {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()

	var errs []error
	for _, evt := range pending {
		if err := target.Emit(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("emit %s: %w", evt.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Reset drops the buffered events.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
