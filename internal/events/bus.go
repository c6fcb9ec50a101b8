// Package events implements the outbound event bus that replaces the
// cyclic-callback pattern: producers publish typed events, and any
// number of subscribers (the wireless surface, metrics, logging)
// drain them independently. A slow or absent subscriber never blocks
// a producer, mirroring the teacher worker pool's buffered
// Submit/ReceiveResult handoff.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Kind identifies an event type on the bus.
type Kind int

const (
	ValveChanged Kind = iota
	TaskStarted
	TaskCompleted
	AlarmRaised
	StatusChanged
)

func (k Kind) String() string {
	switch k {
	case ValveChanged:
		return "ValveChanged"
	case TaskStarted:
		return "TaskStarted"
	case TaskCompleted:
		return "TaskCompleted"
	case AlarmRaised:
		return "AlarmRaised"
	case StatusChanged:
		return "StatusChanged"
	default:
		return "Unknown"
	}
}

// Event is a single bus message. Payload is kind-specific (e.g. a
// types.ActiveTaskState for TaskStarted/TaskCompleted, a
// types.SafetyFlag for AlarmRaised) and is left as `any` so this
// package stays independent of the domain types it carries.
type Event struct {
	ID      string
	Kind    Kind
	Payload any
}

const subscriberBuffer = 32

// Bus is a fan-out publish/subscribe channel set.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel that receives every event published
// after this call, and a cancel function that unsubscribes and closes
// the channel. Callers must keep draining the channel until cancel is
// called, or a buffer-full publish will be dropped for that
// subscriber (never block the publisher).
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish fans an event out to every current subscriber. A subscriber
// whose buffer is full has the event dropped for it rather than
// stalling the publisher; this is an explicit at-most-once-per-slow-consumer
// tradeoff appropriate for status/telemetry events.
func (b *Bus) Publish(kind Kind, payload any) {
	ev := Event{ID: uuid.NewString(), Kind: kind, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
