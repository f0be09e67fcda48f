package testutil

import (
	"sync"
	"time"

	"richpres/internal/presence"
)

type job struct {
	at time.Time
	fn func()
}

// FakeScheduler keeps scheduled jobs until a test fires them.
type FakeScheduler struct {
	mu   sync.Mutex
	jobs map[string]job
}

var _ presence.Scheduler = (*FakeScheduler)(nil)

func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{jobs: make(map[string]job)}
}

func (s *FakeScheduler) Schedule(name string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = job{at: at, fn: fn}
}

func (s *FakeScheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// Pending returns the due time of a scheduled job.
func (s *FakeScheduler) Pending(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	return j.at, ok
}

// Len returns the number of pending jobs.
func (s *FakeScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Fire removes and runs a pending job. It reports whether one existed.
func (s *FakeScheduler) Fire(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	delete(s.jobs, name)
	s.mu.Unlock()

	if ok {
		j.fn()
	}
	return ok
}
