package testutils

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// StepClock is a clock.Clock that moves forward by a fixed step every time Now or Since is
// called. Spin loops driven by it finish without real time passing. The remaining
// clock.Clock methods are those of an idle clock.Mock.
type StepClock struct {
	*clock.Mock
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepClock returns a StepClock advancing by step per reading.
func NewStepClock(step time.Duration) *StepClock {
	return &StepClock{Mock: clock.NewMock(), now: time.Unix(1000, 0), step: step}
}

// Now advances the clock by one step and returns the new time.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Since advances the clock by one step and returns the time elapsed since t.
func (c *StepClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Elapsed returns the time elapsed since t without advancing the clock.
func (c *StepClock) Elapsed(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(t)
}
