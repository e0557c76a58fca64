package poller_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotewatch/quotewatchd/internal/poller"
)

func TestTickSleeper_CompletesFullDuration(t *testing.T) {
	t.Parallel()

	s := poller.TickSleeper{Tick: 10 * time.Millisecond}
	start := time.Now()
	err := s.Sleep(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTickSleeper_ZeroDurationReturnsImmediately(t *testing.T) {
	t.Parallel()

	s := poller.TickSleeper{}
	require.NoError(t, s.Sleep(context.Background(), 0))
}

// Cancellation must be observed within one tick, not after the full sleep.
func TestTickSleeper_CancelReturnsEarly(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	s := poller.TickSleeper{Tick: 10 * time.Millisecond}
	start := time.Now()
	err := s.Sleep(ctx, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTickSleeper_AlreadyCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := poller.TickSleeper{}
	err := s.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
