package proofs

import (
	"sync"
	"time"
)

// Clock supplies the block time stamped on newly certified proofs, in unix
// seconds.
type Clock interface {
	Now() uint64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

// Now implements Clock.
func (f ClockFunc) Now() uint64 { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// MonotonicClock never goes backwards even if its source does.
type MonotonicClock struct {
	mu     sync.Mutex
	source Clock
	last   uint64
}

// NewMonotonicClock wraps source. A nil source means SystemClock.
func NewMonotonicClock(source Clock) *MonotonicClock {
	if source == nil {
		source = SystemClock{}
	}
	return &MonotonicClock{source: source}
}

// Now implements Clock.
func (c *MonotonicClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.source.Now()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}
