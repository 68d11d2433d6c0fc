// Package browser drives a headless Chrome session for the extraction
// stages. The assessor site is an ASP.NET app whose pagination runs through
// __doPostBack, so a persistent tab that can click controls is required; a
// plain HTTP client only sees page one.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls the headless session.
type Config struct {
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	// NavTimeout bounds a single page load, postback round trips included.
	NavTimeout time.Duration `mapstructure:"nav_timeout" yaml:"nav_timeout"`
	// PageDelay is the minimum spacing between page loads against the site.
	PageDelay time.Duration `mapstructure:"page_delay" yaml:"page_delay"`
	// SettleDelay is how long to wait after a pagination click before
	// snapshotting the DOM. Postbacks re-render without a navigation event,
	// so readiness alone is not enough.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// MaxAttempts caps navigation retries.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

func (c *Config) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.PageDelay <= 0 {
		c.PageDelay = time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

// Session is a single-tab headless browser. The tab persists across calls so
// server-side view state survives between a listing page and its postback
// pagination. Session is not safe for concurrent use; run one per worker.
type Session struct {
	cfg         Config
	logger      *zap.Logger
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	limiter     *rate.Limiter
	retry       *retryPolicy
}

// New launches a browser and opens its tab. The caller owns Close.
func New(cfg Config, logger *zap.Logger) (*Session, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	warmup := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(cfg.UserAgent),
	}
	if err := chromedp.Run(tabCtx, warmup); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}

	return &Session{
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		limiter:     rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
		retry:       newRetryPolicy(cfg.MaxAttempts),
	}, nil
}

// Close tears down the tab and the browser process.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.tabCancel()
	s.allocCancel()
}

// Navigate loads url in the session tab and returns the rendered document.
// Transient failures are retried with jittered backoff.
func (s *Session) Navigate(ctx context.Context, url string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("page delay: %w", err)
		}

		doc, err := s.loadPage(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		if !s.retry.shouldRetry(err, attempt) {
			break
		}
		delay := s.retry.backoff(attempt)
		s.logger.Warn("navigation failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("navigation retry: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("navigate %s: %w", url, lastErr)
}

// NextPage clicks the first matching pagination control and returns the
// re-rendered document. ok is false when no control is present on the
// current page.
func (s *Session) NextPage(ctx context.Context, selectors ...string) (*goquery.Document, bool, error) {
	selector, found, err := s.findControl(ctx, selectors)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, false, fmt.Errorf("page delay: %w", err)
	}

	taskCtx, cancel := s.taskContext(ctx)
	defer cancel()

	var html string
	tasks := chromedp.Tasks{
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return nil, false, fmt.Errorf("click %s: %w", selector, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, fmt.Errorf("parse rendered page: %w", err)
	}
	return doc, true, nil
}

func (s *Session) loadPage(ctx context.Context, url string) (*goquery.Document, error) {
	taskCtx, cancel := s.taskContext(ctx)
	defer cancel()

	var html string
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}
	return doc, nil
}

func (s *Session) findControl(ctx context.Context, selectors []string) (string, bool, error) {
	taskCtx, cancel := s.taskContext(ctx)
	defer cancel()

	for _, selector := range selectors {
		var present bool
		probe := fmt.Sprintf("document.querySelector(%q) !== null", selector)
		if err := chromedp.Run(taskCtx, chromedp.Evaluate(probe, &present)); err != nil {
			return "", false, fmt.Errorf("probe %s: %w", selector, err)
		}
		if present {
			return selector, true, nil
		}
	}
	return "", false, nil
}

// taskContext bounds a browser task by both the caller's context and the
// navigation timeout. The tab context itself is never bounded, only the task.
func (s *Session) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	taskCtx, cancelTimeout := context.WithTimeout(s.tabCtx, s.cfg.NavTimeout)
	stop := forwardCancel(ctx, cancelTimeout)
	return taskCtx, func() {
		stop()
		cancelTimeout()
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
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
