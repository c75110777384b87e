// Package events describes device mutations broadcast to subscribers.
package events

import (
	"sync"
	"time"
)

const (
	DeviceCreated = "device.created"
	DeviceUpdated = "device.updated"
	DeviceDeleted = "device.deleted"
	DeviceStatus  = "device.status"
)

type Event struct {
	Type   string    `json:"type"`
	ID     string    `json:"id"`
	Status string    `json:"status,omitempty"`
	At     time.Time `json:"at"`
}

// Sink receives events. Publish must not block the caller for long and
// never fails the mutation that produced the event.
type Sink interface {
	Publish(ev Event)
}

// Fanout forwards every event to each non-nil sink in order.
type Fanout []Sink

func (f Fanout) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	for _, s := range f {
		if s != nil {
			s.Publish(ev)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
