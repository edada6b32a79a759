// Package timer provides the single-shot timed-event service used by
// the connection state machine. The state machine never blocks: it
// schedules an event and returns, and the owner of the interface
// delivers the firing back into the state machine. Stale firings are
// expected and must be tolerated by consumers.
package timer

import (
	"sync"
	"time"
)

// EventID identifies one scheduled event. The zero value never
// identifies a live event.
type EventID uint64

// NoEvent is the zero, never-scheduled event ID.
const NoEvent = EventID(0)

// Clock returns the current time. Split from [Scheduler] so pure
// readers can be given just a clock.
type Clock interface {
	// Now returns the current monotonic time.
	Now() time.Time
}

// Scheduler schedules and cancels single-shot events.
type Scheduler interface {
	Clock

	// Schedule arranges for an event carrying payload to fire after d.
	Schedule(d time.Duration, payload any) EventID

	// Cancel cancels a scheduled event. Canceling an already-fired or
	// unknown event is a no-op.
	Cancel(id EventID)
}

// Event is a fired timed event.
type Event struct {
	// ID is the event ID returned by Schedule.
	ID EventID

	// Payload is the payload given to Schedule.
	Payload any
}

// Service is the default [Scheduler]: it fires events into a channel
// consumed by the owner's event loop. The zero value is invalid; use
// [New]. This struct is concurrency safe.
type Service struct {
	events  chan Event
	mu      sync.Mutex
	nextID  EventID
	pending map[EventID]*time.Timer
}

// New creates a [Service] whose firings are buffered up to the given
// capacity. Firings beyond the buffer are dropped rather than blocking
// the timer goroutine; consumers treat missing stale timers as benign.
func New(buffer int) *Service {
	return &Service{
		events:  make(chan Event, buffer),
		mu:      sync.Mutex{},
		nextID:  NoEvent,
		pending: make(map[EventID]*time.Timer),
	}
}

// Now implements [Clock].
func (s *Service) Now() time.Time {
	return time.Now()
}

// Schedule implements [Scheduler].
func (s *Service) Schedule(d time.Duration, payload any) EventID {
	defer s.mu.Unlock()
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.pending[id] = time.AfterFunc(d, func() {
		s.fire(id, payload)
	})
	return id
}

// Cancel implements [Scheduler].
func (s *Service) Cancel(id EventID) {
	defer s.mu.Unlock()
	s.mu.Lock()
	if t, ok := s.pending[id]; ok {
		t.Stop()
		delete(s.pending, id)
	}
}

// Events returns the channel on which fired events are delivered.
func (s *Service) Events() <-chan Event {
	return s.events
}

func (s *Service) fire(id EventID, payload any) {
	s.mu.Lock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		// canceled while firing
		return
	}
	select {
	case s.events <- Event{ID: id, Payload: payload}:
	default:
	}
}
