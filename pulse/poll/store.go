// Package poll keeps the local view of the remote job queue fresh: a Store
// holding the current Snapshot and refresh status, and a Poller that
// refreshes it on a timer and on demand.
package poll

import (
	"sync"
	"time"

	"github.com/teranos/jobpulse/pulse/jobs"
)

// SubscriberBufferSize is the per-subscriber channel capacity. Events
// coalesce: a subscriber that falls behind only ever sees the newest one.
const SubscriberBufferSize = 1

// EventKind distinguishes status transitions from snapshot replacements
type EventKind string

const (
	EventStatus   EventKind = "status"
	EventSnapshot EventKind = "snapshot"
)

// State is a consistent read of everything the Store holds
type State struct {
	Snapshot  jobs.Snapshot
	Status    jobs.RefreshStatus
	Version   uint64 // bumped on every snapshot replacement
	LastError string // message of the latest failed poll, cleared on success
	UpdatedAt time.Time
}

// Event is delivered to subscribers on every state change
type Event struct {
	Kind  EventKind
	State State
}

// Store owns the Snapshot and refresh status for one controller.
// Snapshot replacement is a single assignment under the lock, so readers
// never see a partially updated list.
type Store struct {
	mu          sync.RWMutex
	state       State
	closed      bool
	subscribers map[int]chan Event
	nextSubID   int
	timeNow     func() time.Time
}

// NewStore creates an empty store with status idle
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates a store with an injectable clock (for testing)
func NewStoreWithClock(timeNow func() time.Time) *Store {
	return &Store{
		state:       State{Status: jobs.RefreshIdle},
		subscribers: make(map[int]chan Event),
		timeNow:     timeNow,
	}
}

// State returns the current state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the current Snapshot
func (s *Store) Snapshot() jobs.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Snapshot
}

// Status returns the current refresh status
func (s *Store) Status() jobs.RefreshStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Status
}

// Closed reports whether the store has been disposed
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// BeginRefresh marks a poll as in progress. Returns false after Close.
func (s *Store) BeginRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.state.Status = jobs.RefreshLoading
	s.state.UpdatedAt = s.timeNow()
	s.publishLocked(EventStatus)
	return true
}

// Succeed replaces the Snapshot wholesale and marks the poll successful.
// Returns false (and changes nothing) after Close.
func (s *Store) Succeed(snapshot jobs.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.state.Snapshot = snapshot
	s.state.Status = jobs.RefreshSuccess
	s.state.Version++
	s.state.LastError = ""
	s.state.UpdatedAt = s.timeNow()
	s.publishLocked(EventSnapshot)
	return true
}

// Fail marks the poll failed and keeps the previous Snapshot.
// Returns false (and changes nothing) after Close.
func (s *Store) Fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.state.Status = jobs.RefreshError
	if err != nil {
		s.state.LastError = err.Error()
	}
	s.state.UpdatedAt = s.timeNow()
	s.publishLocked(EventStatus)
	return true
}

// Subscribe registers for state change events. The returned cancel func
// unsubscribes and closes the channel; Close does the same for everyone.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, SubscriberBufferSize)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Close disposes the store: later updates are ignored and every subscriber
// channel is closed. Idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

// publishLocked fans the current state out to subscribers, replacing any
// unread older event. Must be called with s.mu held for writing.
func (s *Store) publishLocked(kind EventKind) {
	ev := Event{Kind: kind, State: s.state}
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full: drop the stale event, then deliver the fresh one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
