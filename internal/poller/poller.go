// Package poller implements the acquisition loop that keeps the snapshot
// store fed from the rendered source.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quotewatch/quotewatchd/internal/market"
	"github.com/quotewatch/quotewatchd/internal/metrics"
)

// State is one phase of the acquisition loop.
type State string

// Loop states. The loop starts in StateDriverDown and only leaves
// StateStopped by returning.
const (
	StateDriverDown   State = "driver_down"
	StateFetching     State = "fetching"
	StateIdlePoll     State = "idle_poll"
	StateErrorBackoff State = "error_backoff"
	StateStopped      State = "stopped"
)

const teardownGrace = 5 * time.Second

// Config controls loop timing.
type Config struct {
	PollInterval time.Duration
	BackoffFloor time.Duration
	BackoffCap   time.Duration
}

// Poller drives the renderer and extractor under a retry/backoff policy and
// owns all writes to the snapshot store. No failure terminates it; it runs
// until its context is canceled.
type Poller struct {
	newRenderer market.RendererFactory
	extractor   market.Extractor
	store       market.Store
	writer      market.DurableWriter
	clock       market.Clock
	sleeper     market.Sleeper
	logger      *zap.Logger
	cfg         Config

	renderer market.Renderer
	backoff  time.Duration
}

// New constructs a Poller.
func New(
	newRenderer market.RendererFactory,
	extractor market.Extractor,
	store market.Store,
	writer market.DurableWriter,
	clock market.Clock,
	sleeper market.Sleeper,
	cfg Config,
	logger *zap.Logger,
) *Poller {
	if cfg.BackoffFloor <= 0 {
		cfg.BackoffFloor = time.Second
	}
	if cfg.BackoffCap < cfg.BackoffFloor {
		cfg.BackoffCap = 30 * time.Second
	}
	if sleeper == nil {
		sleeper = TickSleeper{}
	}
	return &Poller{
		newRenderer: newRenderer,
		extractor:   extractor,
		store:       store,
		writer:      writer,
		clock:       clock,
		sleeper:     sleeper,
		logger:      logger,
		cfg:         cfg,
		backoff:     cfg.BackoffFloor,
	}
}

// Run blocks, driving the state machine until ctx is canceled. The renderer
// is released before returning.
func (p *Poller) Run(ctx context.Context) {
	state := StateDriverDown
	for state != StateStopped {
		if ctx.Err() != nil {
			break
		}
		switch state {
		case StateDriverDown:
			state = p.startDriver(ctx)
		case StateFetching:
			state = p.fetchOnce(ctx)
		case StateIdlePoll:
			state = p.idle(ctx)
		case StateErrorBackoff:
			state = p.waitBackoff(ctx)
		}
	}
	p.releaseRenderer()
	p.logger.Info("acquisition loop stopped")
}

func (p *Poller) startDriver(ctx context.Context) State {
	p.logger.Info("starting renderer client")
	renderer, err := p.newRenderer(ctx)
	if err != nil {
		metrics.FetchErrors.WithLabelValues("init").Inc()
		p.logger.Error("renderer init failed", zap.Error(err))
		return StateErrorBackoff
	}
	p.renderer = renderer
	return StateFetching
}

func (p *Poller) fetchOnce(ctx context.Context) State {
	html, err := p.renderer.HTML(ctx)
	if err != nil {
		metrics.FetchErrors.WithLabelValues("render").Inc()
		p.logger.Error("render failed", zap.Error(err))
		p.releaseRenderer()
		return StateErrorBackoff
	}

	records := p.extractor.Extract(html)
	if len(records) == 0 {
		metrics.TransientMisses.Inc()
		if p.store.Empty() {
			p.logger.Warn("extracted no records and no snapshot held yet")
		} else {
			// Transient miss: keep the good data visible and make
			// sure it is still on disk.
			p.logger.Warn("extracted no records, re-persisting last snapshot")
			p.persist()
		}
		return StateIdlePoll
	}

	p.store.Replace(records, p.clock.Now())
	p.persist()
	p.resetBackoff()
	metrics.SnapshotCaptures.Inc()
	p.logger.Info("snapshot captured", zap.Int("records", len(records)))
	return StateIdlePoll
}

func (p *Poller) idle(ctx context.Context) State {
	if err := p.sleeper.Sleep(ctx, p.cfg.PollInterval); err != nil {
		return StateStopped
	}
	if err := p.renderer.Reanchor(ctx); err != nil {
		// Best effort; a genuinely broken client fails on the next
		// render and takes the backoff path.
		p.logger.Debug("reanchor failed", zap.Error(err))
	}
	return StateFetching
}

func (p *Poller) waitBackoff(ctx context.Context) State {
	// An outage must not leave the last good data undurable.
	if !p.store.Empty() {
		p.persist()
	}

	delay := p.backoff
	if delay > p.cfg.BackoffCap {
		delay = p.cfg.BackoffCap
	}
	metrics.BackoffSeconds.Set(delay.Seconds())
	p.logger.Info("backing off", zap.Duration("delay", delay))
	if err := p.sleeper.Sleep(ctx, delay); err != nil {
		return StateStopped
	}

	p.backoff = delay * 2
	if p.backoff > p.cfg.BackoffCap {
		p.backoff = p.cfg.BackoffCap
	}
	return StateDriverDown
}

func (p *Poller) persist() {
	if err := p.writer.Write(p.store.Read()); err != nil {
		p.logger.Error("persist snapshot failed", zap.Error(err))
	}
}

func (p *Poller) resetBackoff() {
	p.backoff = p.cfg.BackoffFloor
	metrics.BackoffSeconds.Set(p.cfg.BackoffFloor.Seconds())
}

func (p *Poller) releaseRenderer() {
	if p.renderer == nil {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), teardownGrace)
	defer cancel()
	if err := p.renderer.Close(closeCtx); err != nil {
		p.logger.Warn("renderer close failed", zap.Error(err))
	}
	p.renderer = nil
}
