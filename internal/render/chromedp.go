// Package render contains the headless browser client for the market source.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quotewatch/quotewatchd/internal/market"
)

// Config controls the behavior of the chromedp client.
type Config struct {
	URL         string
	UserAgent   string
	WarmupDelay time.Duration
	NavTimeout  time.Duration
	// MinInterval throttles successive renders; zero disables the budget.
	MinInterval time.Duration
}

// Client implements market.Renderer using headless Chrome via chromedp.
// Unlike a per-request fetcher it keeps one page open for its whole life, so
// polls reuse the rendered page instead of paying a full navigation.
type Client struct {
	cfg             Config
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	limiter         *rate.Limiter
	logger          *zap.Logger
}

// New starts a headless browser, navigates to the configured URL, and waits
// out the warm-up delay so the page has settled before the first read.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("source url is required")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	c := &Client{
		cfg:             cfg,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
	}
	if cfg.MinInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	if err := c.navigate(ctx); err != nil {
		c.teardown()
		return nil, err
	}
	if err := sleepCtx(ctx, cfg.WarmupDelay); err != nil {
		c.teardown()
		return nil, fmt.Errorf("warmup wait: %w", err)
	}
	return c, nil
}

func (c *Client) navigate(ctx context.Context) error {
	taskCtx, cancel := context.WithTimeout(c.browserCtx, c.cfg.NavTimeout)
	defer cancel()
	defer forwardCancel(ctx, cancel)()

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(c.cfg.UserAgent),
		chromedp.Navigate(c.cfg.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if c.cfg.UserAgent == "" {
		tasks = tasks[1:]
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return fmt.Errorf("navigate %s: %w", c.cfg.URL, err)
	}
	return nil
}

// HTML returns the current rendered DOM of the open page.
func (c *Client) HTML(ctx context.Context) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("render budget wait: %w", err)
		}
	}

	taskCtx, cancel := context.WithTimeout(c.browserCtx, c.cfg.NavTimeout)
	defer cancel()
	defer forwardCancel(ctx, cancel)()

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// Reanchor scrolls the open page back to the top so the next read sees the
// table from its first row, without reloading the page.
func (c *Client) Reanchor(ctx context.Context) error {
	taskCtx, cancel := context.WithTimeout(c.browserCtx, c.cfg.NavTimeout)
	defer cancel()
	defer forwardCancel(ctx, cancel)()

	if err := chromedp.Run(taskCtx, chromedp.Evaluate(`window.scrollTo(0, 0);`, nil)); err != nil {
		return fmt.Errorf("scroll to top: %w", err)
	}
	return nil
}

// Close tears down the browser and allocator contexts.
func (c *Client) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.teardown()
	select {
	case <-ctx.Done():
	default:
	}
	return nil
}

func (c *Client) teardown() {
	c.browserCancel()
	c.allocatorCancel()
}

// Factory adapts New into a market.RendererFactory.
func Factory(cfg Config, logger *zap.Logger) market.RendererFactory {
	return func(ctx context.Context) (market.Renderer, error) {
		return New(ctx, cfg, logger)
	}
}

// forwardCancel cancels the chromedp task when the caller's context ends,
// since the task context descends from the browser context instead.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
