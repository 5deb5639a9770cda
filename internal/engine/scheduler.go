package engine

import (
	"sync"
	"time"
)

// scheduler owns the single pending resync timer. Scheduling a new resync
// first stops any pending one, so at most one timer is outstanding at a time.
type scheduler struct {
	mu    sync.Mutex
	timer *time.Timer
}

func (s *scheduler) schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, fn)
}

func (s *scheduler) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
