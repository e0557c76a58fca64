package poller

import (
	"context"
	"time"
)

// TickSleeper sleeps in short ticks so a cancellation is observed within one
// tick rather than after the full duration.
type TickSleeper struct {
	// Tick is the maximum time between cancellation checks; defaults to
	// 100ms when zero.
	Tick time.Duration
}

// Sleep waits for d, returning ctx.Err() early if ctx finishes first.
func (s TickSleeper) Sleep(ctx context.Context, d time.Duration) error {
	tick := s.Tick
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > tick {
			remaining = tick
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
