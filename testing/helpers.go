// Package testing provides test utilities for sluice.
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/sluice"
)

// Signals lists every signal sluice emits.
var Signals = []capitan.Signal{
	sluice.MaterializeStarted,
	sluice.MaterializeCompleted,
	sluice.MaterializeFailed,
	sluice.WriteCompleted,
	sluice.WriteFailed,
	sluice.SessionConnected,
	sluice.SessionDisconnected,
}

// CapturedEvent is a sluice event recorded by EventCapture.
type CapturedEvent struct {
	Signal    capitan.Signal
	Fields    []capitan.Field
	Timestamp time.Time
}

// Collection returns the collection the event concerns.
func (e CapturedEvent) Collection() string {
	return sluice.FieldCollection.ExtractFromFields(e.Fields)
}

// RecordType returns the Go type the collection decodes into.
func (e CapturedEvent) RecordType() string {
	return sluice.FieldRecordType.ExtractFromFields(e.Fields)
}

// Terminal returns the terminal name of a materialization event.
func (e CapturedEvent) Terminal() string {
	return sluice.FieldTerminal.ExtractFromFields(e.Fields)
}

// Operation returns the operation name of a write event.
func (e CapturedEvent) Operation() string {
	return sluice.FieldOperation.ExtractFromFields(e.Fields)
}

// Count returns the element count of a completed materialization, or the
// affected count of a completed write.
func (e CapturedEvent) Count() int64 {
	return sluice.FieldCount.ExtractFromFields(e.Fields)
}

// Duration returns how long the operation took.
func (e CapturedEvent) Duration() time.Duration {
	return sluice.FieldDuration.ExtractFromFields(e.Fields)
}

// EventCapture records sluice events for later assertions.
type EventCapture struct {
	mu     sync.Mutex
	events []CapturedEvent
}

// NewEventCapture creates an empty capture.
func NewEventCapture() *EventCapture {
	return &EventCapture{}
}

// Handler returns a callback that records every event it receives.
func (c *EventCapture) Handler() capitan.EventCallback {
	return func(_ context.Context, e *capitan.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, CapturedEvent{
			Signal:    e.Signal(),
			Fields:    e.Fields(),
			Timestamp: time.Now(),
		})
	}
}

// Events returns a copy of the recorded events.
func (c *EventCapture) Events() []CapturedEvent {
	return c.filter(func(CapturedEvent) bool { return true })
}

// Count returns the number of recorded events.
func (c *EventCapture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Reset drops every recorded event.
func (c *EventCapture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// EventsBySignal returns the recorded events for sig.
func (c *EventCapture) EventsBySignal(sig capitan.Signal) []CapturedEvent {
	return c.filter(func(e CapturedEvent) bool { return e.Signal == sig })
}

// EventsForCollection returns the recorded events whose collection is name.
func (c *EventCapture) EventsForCollection(name string) []CapturedEvent {
	return c.filter(func(e CapturedEvent) bool { return e.Collection() == name })
}

// WaitForCount reports whether at least n events arrive before timeout.
func (c *EventCapture) WaitForCount(n int, timeout time.Duration) bool {
	return waitFor(timeout, func() bool { return c.Count() >= n })
}

func (c *EventCapture) filter(keep func(CapturedEvent) bool) []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CapturedEvent, 0, len(c.events))
	for _, e := range c.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// CaptureSignals hooks handler onto sigs, or onto every sluice signal when
// none are given. The returned stop function drains pending events and
// removes the hooks.
func CaptureSignals(handler capitan.EventCallback, sigs ...capitan.Signal) (stop func(context.Context)) {
	if len(sigs) == 0 {
		sigs = Signals
	}
	closers := make([]func(context.Context), 0, len(sigs))
	for _, sig := range sigs {
		l := capitan.Hook(sig, handler)
		closers = append(closers, func(ctx context.Context) {
			_ = l.Drain(ctx)
			l.Close()
		})
	}
	return func(ctx context.Context) {
		for _, closeFn := range closers {
			closeFn(ctx)
		}
	}
}

// EventCounter tallies events per terminal without storing them.
type EventCounter struct {
	mu        sync.Mutex
	total     int64
	terminals map[string]int64
}

// NewEventCounter creates a zeroed counter.
func NewEventCounter() *EventCounter {
	return &EventCounter{terminals: make(map[string]int64)}
}

// Handler returns a callback that counts each event under its terminal.
func (c *EventCounter) Handler() capitan.EventCallback {
	return func(_ context.Context, e *capitan.Event) {
		terminal := sluice.FieldTerminal.ExtractFromFields(e.Fields())
		c.mu.Lock()
		defer c.mu.Unlock()
		c.total++
		c.terminals[terminal]++
	}
}

// Count returns the number of events seen.
func (c *EventCounter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// CountFor returns the number of events seen for terminal.
func (c *EventCounter) CountFor(terminal string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminals[terminal]
}

// Reset zeroes the counter.
func (c *EventCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = 0
	c.terminals = make(map[string]int64)
}

// WaitForCount reports whether at least n events arrive before timeout.
func (c *EventCounter) WaitForCount(n int64, timeout time.Duration) bool {
	return waitFor(timeout, func() bool { return c.Count() >= n })
}

func waitFor(timeout time.Duration, done func() bool) bool {
	deadline := time.Now().Add(timeout)
	for !done() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}
