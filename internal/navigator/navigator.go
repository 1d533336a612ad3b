// internal/navigator/navigator.go
package navigator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/config"
	"github.com/xkilldash9x/sift/internal/extract"
)

// Page is the state of a successfully loaded results page.
type Page struct {
	Number   int
	URL      string
	Doc      *goquery.Document
	TimedOut bool
	Attempts int
}

// Retry describes a transient failure that is about to be retried.
type Retry struct {
	Page    int
	Attempt int
	Outcome Outcome
	Delay   time.Duration
	Err     error
}

// RetryHook is notified before each retry backoff.
type RetryHook func(Retry)

// Navigator loads results pages through a browsing context and classifies each load.
type Navigator struct {
	browser        schemas.BrowsingContext
	rules          *Rules
	policy         RetryPolicy
	limiter        *rate.Limiter
	timeout        time.Duration
	contentTimeout time.Duration
	logger         *zap.Logger
	sink           schemas.SnapshotSink
	onRetry        RetryHook
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithSnapshotSink captures the page whenever a load is classified as fatal.
func WithSnapshotSink(sink schemas.SnapshotSink) Option {
	return func(n *Navigator) { n.sink = sink }
}

// WithRetryHook registers a callback invoked before each retry.
func WithRetryHook(hook RetryHook) Option {
	return func(n *Navigator) { n.onRetry = hook }
}

// WithLimiter replaces the limiter derived from the navigation config.
func WithLimiter(l *rate.Limiter) Option {
	return func(n *Navigator) { n.limiter = l }
}

// New creates a Navigator.
func New(bc schemas.BrowsingContext, rules *Rules, policy RetryPolicy, cfg config.NavigationConfig, logger *zap.Logger, opts ...Option) *Navigator {
	n := &Navigator{
		browser:        bc,
		rules:          rules,
		policy:         policy,
		limiter:        NewLimiter(cfg),
		timeout:        cfg.Timeout,
		contentTimeout: cfg.ContentTimeout,
		logger:         logger.Named("navigator"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewLimiter builds the navigation pacing limiter. A non-positive rate disables pacing.
func NewLimiter(cfg config.NavigationConfig) *rate.Limiter {
	if cfg.RatePerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60.0), burst)
}

// SetRetryHook replaces the retry callback.
func (n *Navigator) SetRetryHook(hook RetryHook) { n.onRetry = hook }

// Load navigates to pageURL and returns the loaded page. Fatal outcomes return at once;
// transient failures are retried per policy. The returned error is a *NavigationError,
// or ctx.Err() when ctx ends while pacing or backing off.
//
// Browser operations run detached from ctx so an in-flight load completes.
func (n *Navigator) Load(ctx context.Context, pageURL string, page int) (*Page, error) {
	opCtx := context.WithoutCancel(ctx)
	maxAttempts := n.policy.attempts()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("navigation pacing: %w", err)
		}

		logger := n.logger.With(zap.Int("page", page), zap.Int("attempt", attempt))
		result, outcome, err := n.attempt(opCtx, pageURL)
		switch {
		case outcome == OutcomeLoaded:
			result.Number = page
			result.Attempts = attempt
			logger.Debug("Page loaded.", zap.String("url", result.URL), zap.Bool("timed_out", result.TimedOut))
			return result, nil
		case outcome.Fatal():
			logger.Warn("Page load classified as fatal.", zap.Stringer("outcome", outcome))
			n.capture(opCtx, outcome.String())
			return nil, &NavigationError{Outcome: outcome, Page: page, URL: pageURL, Attempts: attempt, Err: sentinelFor(outcome)}
		}

		lastErr = err
		if lastErr == nil {
			lastErr = errors.New("page did not look like a results page")
		}
		logger.Info("Transient page failure.", zap.Error(lastErr))
		if attempt == maxAttempts {
			break
		}

		delay := n.policy.backoff(attempt)
		if n.onRetry != nil {
			n.onRetry(Retry{Page: page, Attempt: attempt, Outcome: outcome, Delay: delay, Err: lastErr})
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &NavigationError{
		Outcome:  OutcomeTransientFailure,
		Page:     page,
		URL:      pageURL,
		Attempts: maxAttempts,
		Err:      fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr),
	}
}

// attempt performs one navigation and classifies the result. A navigation timeout is
// not a failure on its own; the page is read and classified regardless.
func (n *Navigator) attempt(ctx context.Context, pageURL string) (*Page, Outcome, error) {
	navErr := n.browser.Navigate(ctx, pageURL, n.timeout)
	timedOut := errors.Is(navErr, context.DeadlineExceeded)
	if navErr != nil && !timedOut {
		n.logger.Debug("Navigation returned an error, classifying current page.", zap.Error(navErr))
	}

	readCtx, cancel := n.readContext(ctx)
	defer cancel()

	current, err := n.browser.CurrentURL(readCtx)
	if err != nil {
		return nil, OutcomeTransientFailure, fmt.Errorf("read current url: %w", err)
	}
	content, err := n.browser.Content(readCtx)
	if err != nil {
		// The location alone can still reveal an expired session.
		if IsLoginURL(current, n.rules.LoginPatterns) {
			return nil, OutcomeExpired, nil
		}
		return nil, OutcomeTransientFailure, fmt.Errorf("read content: %w", err)
	}
	doc, err := extract.ParseDocument(content)
	if err != nil {
		return nil, OutcomeTransientFailure, err
	}

	outcome := Classify(current, doc, n.rules)
	if outcome == OutcomeTransientFailure && navErr != nil && !timedOut {
		return nil, outcome, navErr
	}
	if outcome == OutcomeTransientFailure {
		return nil, outcome, fmt.Errorf("unexpected page %s", current)
	}
	return &Page{URL: current, Doc: doc, TimedOut: timedOut}, outcome, nil
}

func (n *Navigator) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.contentTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, n.contentTimeout)
}

func (n *Navigator) capture(ctx context.Context, reason string) {
	if n.sink == nil {
		return
	}
	snap, err := n.browser.Snapshot(ctx)
	if err != nil {
		n.logger.Debug("Could not take diagnostic snapshot.", zap.Error(err))
		return
	}
	if err := n.sink.Capture(ctx, reason, snap); err != nil {
		n.logger.Debug("Could not store diagnostic snapshot.", zap.Error(err))
	}
}

// sleep pauses for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
