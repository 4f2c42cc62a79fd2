package session

import (
	"sync"
	"time"
)

// purgeTimer fires once unless stopped first.
type purgeTimer struct {
	gen     uint64
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (t *purgeTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.timer.Stop()
}

func (t *purgeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// PurgeScheduler runs one delayed purge callback per participant id.
// It is safe for concurrent use.
//
// Callbacks run on their own goroutine and may race with Cancel or a later
// Schedule. A callback must Claim its generation under the caller's lock
// before acting; a superseded generation is refused.
type PurgeScheduler struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*purgeTimer
	nextGen uint64
	closed  bool
}

// NewPurgeScheduler creates a scheduler that fires delay after Schedule.
//
// Precondition: delay > 0.
func NewPurgeScheduler(delay time.Duration) *PurgeScheduler {
	return &PurgeScheduler{
		delay:  delay,
		timers: make(map[string]*purgeTimer),
	}
}

// Delay returns the configured grace period.
func (s *PurgeScheduler) Delay() time.Duration { return s.delay }

// Schedule arranges for fire(id, gen) to run after the delay, replacing any
// pending purge for id. It is a no-op after Stop.
func (s *PurgeScheduler) Schedule(id string, fire func(id string, gen uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.timers[id]; ok {
		old.stop()
	}
	s.nextGen++
	pt := &purgeTimer{gen: s.nextGen}
	pt.timer = time.AfterFunc(s.delay, func() {
		if pt.isStopped() {
			return
		}
		fire(id, pt.gen)
	})
	s.timers[id] = pt
}

// Claim consumes the purge for id if gen is still its current generation.
//
// Postcondition: Returns false when the purge was cancelled or replaced after
// its timer fired; the caller must then do nothing.
func (s *PurgeScheduler) Claim(id string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt, ok := s.timers[id]
	if !ok || pt.gen != gen {
		return false
	}
	delete(s.timers, id)
	return true
}

// Cancel stops the pending purge for id.
//
// Postcondition: Returns true if a purge was pending.
func (s *PurgeScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt, ok := s.timers[id]
	if !ok {
		return false
	}
	pt.stop()
	delete(s.timers, id)
	return true
}

// Pending returns the number of scheduled purges not yet claimed or cancelled.
func (s *PurgeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending purge. Safe to call multiple times.
func (s *PurgeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, pt := range s.timers {
		pt.stop()
		delete(s.timers, id)
	}
}
