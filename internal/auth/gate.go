// internal/auth/gate.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/config"
	"github.com/xkilldash9x/sift/internal/extract"
	"github.com/xkilldash9x/sift/internal/navigator"
)

// Session is an authenticated browsing context.
type Session struct {
	Browser  schemas.BrowsingContext
	LoggedIn bool
	// Identity is best effort and may be nil.
	Identity *schemas.Identity
}

// Gate installs credentials into a browsing context and confirms the platform accepts them.
type Gate struct {
	browser  schemas.BrowsingContext
	session  config.SessionConfig
	platform config.PlatformConfig
	base     *url.URL
	signals  *compiledSignals
	logger   *zap.Logger
	sink     schemas.SnapshotSink
}

// NewGate creates a Gate using the default signals. sink may be nil.
func NewGate(bc schemas.BrowsingContext, sessionCfg config.SessionConfig, platform config.PlatformConfig, logger *zap.Logger, sink schemas.SnapshotSink) (*Gate, error) {
	return NewGateWithSignals(bc, sessionCfg, platform, DefaultSignals(), logger, sink)
}

// NewGateWithSignals creates a Gate with custom signals.
func NewGateWithSignals(bc schemas.BrowsingContext, sessionCfg config.SessionConfig, platform config.PlatformConfig, signals Signals, logger *zap.Logger, sink schemas.SnapshotSink) (*Gate, error) {
	base, err := url.Parse(platform.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid platform base url %q", platform.BaseURL)
	}
	compiled, err := signals.compile()
	if err != nil {
		return nil, err
	}
	return &Gate{
		browser:  bc,
		session:  sessionCfg,
		platform: platform,
		base:     base,
		signals:  compiled,
		logger:   logger.Named("auth"),
		sink:     sink,
	}, nil
}

// CookieDomain returns the configured cookie domain or the registrable domain of the
// platform host with a leading dot.
func (g *Gate) CookieDomain() (string, error) {
	if d := strings.TrimSpace(g.session.CookieDomain); d != "" {
		return d, nil
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(g.base.Hostname())
	if err != nil {
		return "", fmt.Errorf("derive cookie domain for %s: %w", g.base.Hostname(), err)
	}
	return "." + root, nil
}

// Establish installs creds and loads an authenticated page. It returns ErrMissingToken
// without touching the browser when creds carry no token, and ErrNotAuthenticated when
// the verify page shows no signed-in state.
func (g *Gate) Establish(ctx context.Context, creds *Credentials) (*Session, error) {
	if creds == nil || creds.Token() == "" {
		return nil, ErrMissingToken
	}
	domain, err := g.CookieDomain()
	if err != nil {
		return nil, err
	}

	if err := g.browser.ClearCookies(ctx); err != nil {
		return nil, fmt.Errorf("auth: clear cookies: %w", err)
	}
	if err := g.browser.SetCookies(ctx, creds.Cookies(domain)); err != nil {
		return nil, fmt.Errorf("auth: install cookies: %w", err)
	}
	g.logger.Debug("Installed session cookies.", zap.String("domain", domain), zap.Int("count", creds.Len()))

	target := g.base.ResolveReference(&url.URL{Path: g.session.VerifyPath}).String()
	if err := g.browser.Navigate(ctx, target, g.session.VerifyTimeout); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("auth: verify navigation: %w", err)
		}
		g.logger.Debug("Verify navigation timed out, inspecting the page anyway.", zap.String("url", target))
	}

	current, err := g.browser.CurrentURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: read verify url: %w", err)
	}
	if navigator.IsLoginURL(current, g.platform.LoginPatterns) {
		g.logger.Info("Verify page redirected to a login page.", zap.String("url", current))
		g.capture(ctx)
		return nil, fmt.Errorf("%w: redirected to %s", ErrNotAuthenticated, current)
	}

	content, err := g.browser.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: read verify content: %w", err)
	}
	doc, err := extract.ParseDocument(content)
	if err != nil {
		return nil, fmt.Errorf("auth: parse verify content: %w", err)
	}

	if anyMatch(doc, g.signals.loginForm) || !anyMatch(doc, g.signals.sessionOnly) {
		g.logger.Info("Verify page shows no signed-in state.", zap.String("url", current))
		g.capture(ctx)
		return nil, ErrNotAuthenticated
	}

	s := &Session{Browser: g.browser, LoggedIn: true, Identity: g.identity(doc)}
	if s.Identity == nil {
		g.logger.Debug("Could not resolve the signed-in identity.")
	} else {
		g.logger.Info("Session authenticated.", zap.String("identity", s.Identity.DisplayName))
	}
	return s, nil
}

// identity resolves the signed-in member from the verify document.
func (g *Gate) identity(doc *goquery.Document) *schemas.Identity {
	var id schemas.Identity
	for _, f := range g.signals.identityName {
		node := first(doc, f.sel)
		if node == nil {
			continue
		}
		v := node.Text()
		if f.attr != "" {
			v, _ = node.Attr(f.attr)
		}
		if v = extract.NormalizeText(v); v != "" {
			id.DisplayName = v
			break
		}
	}
	for _, sel := range g.signals.identityLink {
		node := first(doc, sel)
		if node == nil {
			continue
		}
		href, _ := node.Attr("href")
		if u := extract.CanonicalProfileURL(g.base, href); u != "" {
			id.ProfileURL = u
			break
		}
	}
	if id.DisplayName == "" && id.ProfileURL == "" {
		return nil
	}
	return &id
}

func (g *Gate) capture(ctx context.Context) {
	if g.sink == nil {
		return
	}
	snap, err := g.browser.Snapshot(ctx)
	if err != nil {
		g.logger.Debug("Could not take diagnostic snapshot.", zap.Error(err))
		return
	}
	if err := g.sink.Capture(ctx, "not_authenticated", snap); err != nil {
		g.logger.Debug("Could not store diagnostic snapshot.", zap.Error(err))
	}
}
