package poller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quotewatch/quotewatchd/internal/market"
	"github.com/quotewatch/quotewatchd/internal/poller"
	"github.com/quotewatch/quotewatchd/internal/snapshot"
)

const testPollInterval = 500 * time.Millisecond

// fetchOutcome scripts one acquisition cycle seen by the fake renderer and
// extractor pair.
type fetchOutcome struct {
	renderErr error
	records   []market.Record
}

type fakeRenderer struct {
	harness *harness
	closed  bool
}

func (r *fakeRenderer) HTML(context.Context) (string, error) {
	out := r.harness.nextOutcome()
	if out.renderErr != nil {
		return "", out.renderErr
	}
	return "page", nil
}

func (r *fakeRenderer) Reanchor(context.Context) error { return nil }

func (r *fakeRenderer) Close(context.Context) error {
	r.closed = true
	return nil
}

type fakeExtractor struct {
	harness *harness
}

func (e *fakeExtractor) Extract(string) []market.Record {
	return e.harness.current.records
}

type fakeWriter struct {
	writes []market.Snapshot
	err    error
}

func (w *fakeWriter) Write(snap market.Snapshot) error {
	w.writes = append(w.writes, snap)
	return w.err
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

// recordingSleeper captures requested delays without sleeping. When
// stopAfter sleeps have been observed it cancels the loop's context.
type recordingSleeper struct {
	delays    []time.Duration
	stopAfter int
	cancel    context.CancelFunc
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.delays = append(s.delays, d)
	if s.stopAfter > 0 && len(s.delays) >= s.stopAfter {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

// harness feeds scripted outcomes to the loop and cancels its context once
// the script runs out.
type harness struct {
	outcomes  []fetchOutcome
	current   fetchOutcome
	initErrs  []error
	renderers []*fakeRenderer
	cancel    context.CancelFunc
}

func (h *harness) nextOutcome() fetchOutcome {
	if len(h.outcomes) == 0 {
		h.cancel()
		return fetchOutcome{renderErr: context.Canceled}
	}
	h.current = h.outcomes[0]
	h.outcomes = h.outcomes[1:]
	return h.current
}

func (h *harness) factory(context.Context) (market.Renderer, error) {
	if len(h.initErrs) > 0 {
		err := h.initErrs[0]
		h.initErrs = h.initErrs[1:]
		return nil, err
	}
	r := &fakeRenderer{harness: h}
	h.renderers = append(h.renderers, r)
	return r, nil
}

type fixture struct {
	harness *harness
	store   *snapshot.Store
	writer  *fakeWriter
	sleeper *recordingSleeper
	loop    *poller.Poller
	ctx     context.Context
}

func newFixture(t *testing.T, outcomes []fetchOutcome, initErrs []error, stopAfterSleeps int) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{outcomes: outcomes, initErrs: initErrs, cancel: cancel}
	store := snapshot.NewStore()
	writer := &fakeWriter{}
	sleeper := &recordingSleeper{stopAfter: stopAfterSleeps, cancel: cancel}
	loop := poller.New(
		h.factory,
		&fakeExtractor{harness: h},
		store,
		writer,
		&fakeClock{now: time.Unix(1000, 0)},
		sleeper,
		poller.Config{
			PollInterval: testPollInterval,
			BackoffFloor: time.Second,
			BackoffCap:   30 * time.Second,
		},
		zap.NewNop(),
	)
	return &fixture{harness: h, store: store, writer: writer, sleeper: sleeper, loop: loop, ctx: ctx}
}

func records(pairs ...string) []market.Record {
	out := make([]market.Record, len(pairs))
	for i, p := range pairs {
		out[i] = market.Record{Pair: p, Price: "1", Change24h: "+0%"}
	}
	return out
}

// backoffDelays drops poll-interval sleeps, leaving only backoff waits. The
// fixture's poll interval is shorter than the backoff floor so the two never
// collide.
func backoffDelays(all []time.Duration) []time.Duration {
	var out []time.Duration
	for _, d := range all {
		if d != testPollInterval {
			out = append(out, d)
		}
	}
	return out
}

func TestRun_SuccessfulCaptureUpdatesStoreAndPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []fetchOutcome{{records: records("BTC/USDT")}}, nil, 0)
	f.loop.Run(f.ctx)

	snap := f.store.Read()
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "BTC/USDT", snap.Records[0].Pair)
	require.Len(t, f.writer.writes, 1)
	assert.Equal(t, "BTC/USDT", f.writer.writes[0].Records[0].Pair)
	assert.False(t, f.writer.writes[0].CapturedAt.IsZero())
}

// Once the store holds data, an empty extraction must never replace it.
func TestRun_EmptyExtractionNeverOverwrites(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []fetchOutcome{
		{records: records("BTC/USDT", "ETH/USDT")},
		{records: nil},
		{records: nil},
	}, nil, 0)
	f.loop.Run(f.ctx)

	snap := f.store.Read()
	require.Len(t, snap.Records, 2)
	assert.Equal(t, "BTC/USDT", snap.Records[0].Pair)
}

func TestRun_EmptyExtractionRePersistsExistingSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []fetchOutcome{
		{records: records("BTC/USDT")},
		{records: nil},
	}, nil, 0)
	f.loop.Run(f.ctx)

	// One write for the capture, one defensive re-persist on the miss.
	require.Len(t, f.writer.writes, 2)
	assert.Equal(t, f.writer.writes[0].Records, f.writer.writes[1].Records)
}

func TestRun_EmptyExtractionWithEmptyStoreWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []fetchOutcome{{records: nil}, {records: nil}}, nil, 0)
	f.loop.Run(f.ctx)

	assert.True(t, f.store.Empty())
	assert.Empty(t, f.writer.writes)
}

// Consecutive failures double the delay up to the cap.
func TestRun_BackoffDoublesAcrossInitFailures(t *testing.T) {
	t.Parallel()

	errInit := errors.New("chrome went away")
	f := newFixture(t, nil, []error{errInit, errInit, errInit}, 3)
	f.loop.Run(f.ctx)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, backoffDelays(f.sleeper.delays))
}

func TestRun_BackoffIsCapped(t *testing.T) {
	t.Parallel()

	errInit := errors.New("chrome went away")
	fails := make([]error, 8)
	for i := range fails {
		fails[i] = errInit
	}
	f := newFixture(t, nil, fails, 8)
	f.loop.Run(f.ctx)

	delays := backoffDelays(f.sleeper.delays)
	require.Len(t, delays, 8)
	assert.Equal(t, 30*time.Second, delays[len(delays)-1])
	assert.Equal(t, 30*time.Second, delays[len(delays)-2])
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
	}
}

// A single success resets the delay to its floor.
func TestRun_SuccessResetsBackoff(t *testing.T) {
	t.Parallel()

	errRender := errors.New("navigation timeout")
	f := newFixture(t, []fetchOutcome{
		{renderErr: errRender},
		{renderErr: errRender},
		{records: records("BTC/USDT")},
		{renderErr: errRender},
	}, nil, 0)
	f.loop.Run(f.ctx)

	assert.Equal(t,
		[]time.Duration{time.Second, 2 * time.Second, time.Second},
		backoffDelays(f.sleeper.delays),
	)
}

// A render failure tears the client down; the next cycle builds a fresh one.
func TestRun_RenderFailureReplacesRenderer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []fetchOutcome{
		{renderErr: errors.New("tab crashed")},
		{records: records("BTC/USDT")},
	}, nil, 0)
	f.loop.Run(f.ctx)

	require.Len(t, f.harness.renderers, 2)
	assert.True(t, f.harness.renderers[0].closed)
	assert.True(t, f.harness.renderers[1].closed)
}

// Entering backoff with data in the store re-persists it, so a crash during
// an outage still leaves the last good snapshot durable.
func TestRun_BackoffRePersistsSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []fetchOutcome{
		{records: records("BTC/USDT")},
		{renderErr: errors.New("tab crashed")},
	}, nil, 0)
	f.loop.Run(f.ctx)

	require.Len(t, f.writer.writes, 2)
	assert.Equal(t, f.writer.writes[0].Records, f.writer.writes[1].Records)
}

func TestRun_PersistFailureDoesNotAlterStore(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []fetchOutcome{{records: records("BTC/USDT")}}, nil, 0)
	f.writer.err = errors.New("disk full")
	f.loop.Run(f.ctx)

	require.Len(t, f.store.Read().Records, 1)
	assert.Equal(t, "BTC/USDT", f.store.Read().Records[0].Pair)
}

func TestRun_CancellationReleasesRenderer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []fetchOutcome{{records: records("BTC/USDT")}}, nil, 0)
	f.loop.Run(f.ctx)

	require.NotEmpty(t, f.harness.renderers)
	for _, r := range f.harness.renderers {
		assert.True(t, r.closed)
	}
}
