package scheduler

import (
	"context"
	"sync/atomic"
	"time"
)

// Countdown tracks whole seconds until the next scheduled pass. It ticks on
// its own goroutine, independent of passes.
type Countdown struct {
	interval  time.Duration
	tick      time.Duration
	remaining atomic.Int64
}

// NewCountdown creates a countdown that starts full.
func NewCountdown(interval time.Duration) *Countdown {
	c := &Countdown{interval: interval, tick: time.Second}
	c.Reset()
	return c
}

// Reset sets the countdown back to the full interval.
func (c *Countdown) Reset() {
	c.remaining.Store(int64(c.interval / time.Second))
}

// Remaining returns the time left, at one-second granularity.
func (c *Countdown) Remaining() time.Duration {
	return time.Duration(c.remaining.Load()) * time.Second
}

// Run decrements once per tick until ctx is done. It never goes below zero.
func (c *Countdown) Run(ctx context.Context) {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for {
				cur := c.remaining.Load()
				if cur <= 0 || c.remaining.CompareAndSwap(cur, cur-1) {
					break
				}
			}
		}
	}
}
