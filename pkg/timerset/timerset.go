// Package timerset tracks the delayed callbacks owned by one bot so they can
// all be canceled together when the bot's session ends.
package timerset

import (
	"sync"
	"time"
)

// Set is a group of pending timers that can be stopped atomically.
type Set struct {
	// inflight is held shared by running callbacks so Stop can wait them out.
	inflight sync.RWMutex

	mu      sync.Mutex
	nextID  uint64
	timers  map[uint64]*time.Timer
	stopped bool
}

// New returns an empty, running timer set.
func New() *Set {
	return &Set{timers: make(map[uint64]*time.Timer)}
}

// AfterFunc schedules fn to run after delay. It reports false when the set
// is already stopped, in which case fn is never run.
func (s *Set) AfterFunc(delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	id := s.nextID
	s.nextID++

	s.timers[id] = time.AfterFunc(delay, func() {
		s.inflight.RLock()
		defer s.inflight.RUnlock()

		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		stopped := s.stopped
		s.mu.Unlock()

		if !live || stopped {
			return
		}
		fn()
	})

	return true
}

// Pending returns the number of timers that have not fired yet.
func (s *Set) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// Stop cancels every pending timer, rejects new ones and waits for callbacks
// that already started. It must not be called from inside a callback.
func (s *Set) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.inflight.Lock()
	s.inflight.Unlock()
}

// Stopped reports whether Stop has been called.
func (s *Set) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped
}
