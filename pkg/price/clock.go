package price

import (
	"sync"
	"time"
)

// Clock supplies the engine's notion of now in unix seconds. All operations observing
// the same second share one timestamp, which drives the same-timestamp price cache.
type Clock interface {
	Now() uint64
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix()) //nolint:gosec // post-1970
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock creates a manual clock set to now.
func NewManualClock(now uint64) *ManualClock {
	return &ManualClock{now: now}
}

// Now implements Clock.
func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *ManualClock) Set(now uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}
