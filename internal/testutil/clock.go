package testutil

import (
	"fmt"
	"sync"
	"time"
)

// LoginTime is the wall-clock time sessions built by LoginClock start at. It
// falls on a Monday, exactly on a 5-minute calendar boundary.
var LoginTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// ManualClock is a presence.Clock that only moves when a test moves it.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// LoginClock returns a ManualClock set to LoginTime.
func LoginClock() *ManualClock {
	return NewManualClock(LoginTime)
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, e.g. to the next calendar tick.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// CorrelationIDs hands out request correlation IDs "corr-1", "corr-2", ...
// in send order.
type CorrelationIDs struct {
	mu   sync.Mutex
	next int
}

func NewCorrelationIDs() *CorrelationIDs {
	return &CorrelationIDs{}
}

func (g *CorrelationIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("corr-%d", g.next)
}
