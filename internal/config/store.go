package config

import (
	"sync"
	"sync/atomic"
)

// Store publishes the current configuration Snapshot to the rest of the
// process. Readers call Current and never observe a partially updated
// snapshot; Reload swaps the pointer atomically and notifies subscribers.
type Store struct {
	current atomic.Pointer[Snapshot]
	load    func() Snapshot

	mu          sync.Mutex
	subscribers []func(Snapshot)
}

// NewStore loads an initial snapshot using the provided loader.
func NewStore(load func() Snapshot) *Store {
	if load == nil {
		load = Load
	}
	s := &Store{load: load}
	snap := load()
	s.current.Store(&snap)
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() Snapshot {
	return *s.current.Load()
}

// Subscribe registers a callback invoked with each freshly loaded snapshot.
func (s *Store) Subscribe(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Reload loads a new snapshot, swaps it in, and notifies subscribers with
// the new value. Subscribers run on the caller's goroutine.
func (s *Store) Reload() Snapshot {
	snap := s.load()
	s.current.Store(&snap)

	s.mu.Lock()
	subs := make([]func(Snapshot), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return snap
}
