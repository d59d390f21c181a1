// Package memory is the default event sink when Pub/Sub is disabled:
// harvest lifecycle events are retained in process, where tests and
// debugging hooks can read them back.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tastewell/harvester/internal/harvest"
)

// Publisher retains every published harvest event in order.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// Event is one retained publish call.
type Event struct {
	Topic   string
	Payload any
}

var _ harvest.Publisher = (*Publisher)(nil)

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish retains the event and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", len(p.events)), nil
}

// Events returns a copy of the retained events in publish order.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
