// Package clock provides the elapsed-time source a capture session measures
// its segment windows against.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	// Elapsed is the monotonic time since the session started.
	Elapsed() time.Duration
}

type System struct {
	start time.Time
}

func NewSystem() *System {
	return &System{start: time.Now()}
}

func (c *System) Now() time.Time {
	return time.Now()
}

func (c *System) Elapsed() time.Duration {
	return time.Since(c.start)
}

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu      sync.Mutex
	start   time.Time
	elapsed time.Duration
}

func NewManual(start time.Time) *Manual {
	return &Manual{start: start}
}

func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(c.elapsed)
}

func (c *Manual) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

func (c *Manual) Set(elapsed time.Duration) {
	c.mu.Lock()
	c.elapsed = elapsed
	c.mu.Unlock()
}

func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	c.elapsed += d
	c.mu.Unlock()
}
