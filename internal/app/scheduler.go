package app

import (
	"sort"
	"sync"
	"time"

	"richpres/internal/presence"
)

// VirtualClock is a clock that only moves when told to.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ presence.Clock = (*VirtualClock)(nil)

func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// set moves the clock to t unless t is in the past.
func (c *VirtualClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

type virtualJob struct {
	name string
	at   time.Time
	fn   func()
}

// VirtualScheduler runs jobs on a VirtualClock. Jobs run only from Tick,
// never from Schedule.
type VirtualScheduler struct {
	clock *VirtualClock

	mu   sync.Mutex
	jobs map[string]virtualJob
}

var _ presence.Scheduler = (*VirtualScheduler)(nil)

func NewVirtualScheduler(clock *VirtualClock) *VirtualScheduler {
	return &VirtualScheduler{clock: clock, jobs: make(map[string]virtualJob)}
}

func (s *VirtualScheduler) Schedule(name string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = virtualJob{name: name, at: at, fn: fn}
}

func (s *VirtualScheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// Tick advances the clock to the earliest pending job and runs it. It
// reports false when nothing is pending. Jobs due at the same time run in
// name order.
func (s *VirtualScheduler) Tick() bool {
	s.mu.Lock()
	if len(s.jobs) == 0 {
		s.mu.Unlock()
		return false
	}
	next := s.pendingLocked()[0]
	delete(s.jobs, next.name)
	s.mu.Unlock()

	s.clock.set(next.at)
	next.fn()
	return true
}

// Pending returns the names of pending jobs in run order.
func (s *VirtualScheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, j := range s.pendingLocked() {
		names = append(names, j.name)
	}
	return names
}

func (s *VirtualScheduler) pendingLocked() []virtualJob {
	jobs := make([]virtualJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].at.Equal(jobs[k].at) {
			return jobs[i].at.Before(jobs[k].at)
		}
		return jobs[i].name < jobs[k].name
	})
	return jobs
}
