// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/browser/stealth"
	"github.com/xkilldash9x/sift/internal/config"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session: closed")

// Session is a single browser tab driven over CDP. It implements schemas.BrowsingContext.
type Session struct {
	id      string
	cfg     config.BrowserConfig
	persona schemas.Persona
	logger  *zap.Logger

	allocCtx context.Context
	ctx      context.Context
	cancel   context.CancelFunc

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

var _ schemas.BrowsingContext = (*Session)(nil)

// New prepares a session on the given allocator context. Initialize must be called next.
func New(allocCtx context.Context, cfg config.BrowserConfig, persona schemas.Persona, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:       id,
		cfg:      cfg,
		persona:  persona,
		logger:   logger.Named("session").With(zap.String("session_id", id[:8])),
		allocCtx: allocCtx,
	}
}

// ID returns the unique identifier for this session.
func (s *Session) ID() string { return s.id }

// Initialize opens the tab and applies the stealth persona.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return fmt.Errorf("session already initialized")
	}
	var opts []chromedp.ContextOption
	if s.cfg.Debug {
		opts = append(opts, chromedp.WithDebugf(s.logger.Sugar().Debugf))
	}
	s.ctx, s.cancel = chromedp.NewContext(s.allocCtx, opts...)
	s.mu.Unlock()

	// The first Run on a tab context creates the target, so it must run on the tab
	// context itself. A deadline here would tear the tab down once it fired.
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	tasks := chromedp.Tasks{network.Enable()}
	tasks = append(tasks, stealth.Apply(s.persona, s.cfg.Stealth, s.logger)...)
	if err := chromedp.Run(s.ctx, tasks...); err != nil {
		s.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to initialize browser tab: %w", err)
	}
	s.logger.Info("Browser session initialized.")
	return nil
}

// RunActions executes actions on the tab, bounded by both the tab lifetime and ctx.
// The error reflects whichever context ended first.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.closed || s.ctx == nil {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	tabCtx := s.ctx
	s.mu.Unlock()

	runCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case tabCtx.Err() != nil:
		return fmt.Errorf("%w: %v", ErrSessionClosed, tabCtx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	return err
}

// withTimeout wraps ctx with timeout, falling back to the configured action timeout.
func (s *Session) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = s.cfg.ActionTimeout
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// Navigate loads url and waits for the body to be ready. A timeout is reported as an
// error wrapping context.DeadlineExceeded; the tab keeps whatever it managed to load.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.logger.Debug("Navigating session.", zap.String("url", url))
	navCtx, cancel := s.withTimeout(ctx, timeout)
	defer cancel()

	err := s.RunActions(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("navigation to %s timed out after %v: %w", url, timeout, context.DeadlineExceeded)
	}
	return fmt.Errorf("navigation to %s failed: %w", url, err)
}

// SetCookies installs cookies into the browser cookie store.
func (s *Session) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	opCtx, cancel := s.withTimeout(ctx, 0)
	defer cancel()

	return s.RunActions(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			if err := cookieParams(c).Do(ctx); err != nil {
				return fmt.Errorf("set cookie %q: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// cookieParams converts a cookie into the CDP setCookie command.
func cookieParams(c schemas.Cookie) *network.SetCookieParams {
	p := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithPath(c.Path).
		WithSecure(c.Secure).
		WithHTTPOnly(c.HTTPOnly)
	if c.SameSite != "" {
		p = p.WithSameSite(network.CookieSameSite(c.SameSite))
	}
	if !c.Expires.IsZero() {
		exp := cdp.TimeSinceEpoch(c.Expires)
		p = p.WithExpires(&exp)
	}
	return p
}

// ClearCookies removes every cookie from the browser.
func (s *Session) ClearCookies(ctx context.Context) error {
	opCtx, cancel := s.withTimeout(ctx, 0)
	defer cancel()
	return s.RunActions(opCtx, network.ClearBrowserCookies())
}

// Evaluate runs script in the page, awaiting promises, and decodes the value into out.
func (s *Session) Evaluate(ctx context.Context, script string, out interface{}) error {
	opCtx, cancel := s.withTimeout(ctx, 0)
	defer cancel()
	return s.RunActions(opCtx, chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true)
	}))
}

// WaitSelector waits until selector matches a ready element.
func (s *Session) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, cancel := s.withTimeout(ctx, timeout)
	defer cancel()
	return s.RunActions(opCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// CurrentURL returns the URL of the loaded document.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	opCtx, cancel := s.withTimeout(ctx, 0)
	defer cancel()
	var u string
	if err := s.RunActions(opCtx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// Content returns the outer HTML of the document element.
func (s *Session) Content(ctx context.Context) (string, error) {
	opCtx, cancel := s.withTimeout(ctx, 0)
	defer cancel()
	var html string
	if err := s.RunActions(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Snapshot captures the URL, HTML and a full-page screenshot.
func (s *Session) Snapshot(ctx context.Context) (*schemas.Snapshot, error) {
	opCtx, cancel := s.withTimeout(ctx, 0)
	defer cancel()
	snap := &schemas.Snapshot{TakenAt: time.Now()}
	err := s.RunActions(opCtx,
		chromedp.Location(&snap.URL),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
		chromedp.FullScreenshot(&snap.Screenshot, 80),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// Close tears down the tab. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.logger.Debug("Browser session closed.")
	})
}
