// internal/navigator/classify.go
package navigator

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/sift/internal/config"
	"github.com/xkilldash9x/sift/internal/extract"
)

// Outcome is the classification of a single page load attempt.
type Outcome int

const (
	OutcomeLoaded Outcome = iota
	OutcomeBlocked
	OutcomeExpired
	OutcomeTransientFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoaded:
		return "loaded"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeExpired:
		return "expired"
	case OutcomeTransientFailure:
		return "transient_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Fatal reports whether the outcome must abort the crawl without retrying.
func (o Outcome) Fatal() bool {
	return o == OutcomeBlocked || o == OutcomeExpired
}

// Rules is the compiled form of the platform's page classification settings.
type Rules struct {
	Host          string
	SearchPath    string
	LoginPatterns []string
	// domain is the registrable domain of Host, or Host itself when it has none.
	domain       string
	blockSels    []cascadia.Sel
	blockPhrases []string
	// resultSels recognise rendered result cards; their text never counts as a block phrase.
	resultSels []cascadia.Sel
}

// NewRules compiles the block signatures of cfg.
func NewRules(cfg config.PlatformConfig) (*Rules, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid platform base url %q", cfg.BaseURL)
	}
	r := &Rules{
		Host:          strings.ToLower(base.Hostname()),
		SearchPath:    cfg.SearchPath,
		LoginPatterns: cfg.LoginPatterns,
	}
	r.domain = registrableDomain(r.Host)
	for _, raw := range extract.DefaultSelectors().Containers {
		sel, err := cascadia.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid result container selector %q: %w", raw, err)
		}
		r.resultSels = append(r.resultSels, sel)
	}
	for _, raw := range cfg.BlockSignatures {
		sel, err := cascadia.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid block signature %q: %w", raw, err)
		}
		r.blockSels = append(r.blockSels, sel)
	}
	for _, p := range cfg.BlockPhrases {
		if p = strings.TrimSpace(p); p != "" {
			r.blockPhrases = append(r.blockPhrases, strings.ToLower(p))
		}
	}
	return r, nil
}

// IsLoginURL reports whether the path of rawURL contains one of the login patterns.
func IsLoginURL(rawURL string, patterns []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.EscapedPath())
	for _, p := range patterns {
		if p != "" && strings.Contains(path, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Classify decides the outcome of a page load from the URL the browser ended up on
// and the document it holds. Checks run in priority order: login redirect, block
// signature, unexpected location, empty body.
func Classify(currentURL string, doc *goquery.Document, rules *Rules) Outcome {
	if IsLoginURL(currentURL, rules.LoginPatterns) {
		return OutcomeExpired
	}
	if doc != nil && rules.blocked(doc) {
		return OutcomeBlocked
	}
	if !rules.onSearchPage(currentURL) {
		return OutcomeTransientFailure
	}
	if doc == nil {
		return OutcomeTransientFailure
	}
	body := doc.Find("body")
	if body.Length() == 0 || (body.Children().Length() == 0 && strings.TrimSpace(body.Text()) == "") {
		return OutcomeTransientFailure
	}
	return OutcomeLoaded
}

// blocked reports a challenge or rate-limit page. Block selectors always apply; block
// phrases only apply to pages that render no result cards, since a member's headline
// may quote them.
func (r *Rules) blocked(doc *goquery.Document) bool {
	root := doc.Get(0)
	for _, sel := range r.blockSels {
		if cascadia.Query(root, sel) != nil {
			return true
		}
	}
	if len(r.blockPhrases) == 0 {
		return false
	}
	for _, sel := range r.resultSels {
		if cascadia.Query(root, sel) != nil {
			return false
		}
	}
	text := strings.ToLower(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
	for _, p := range r.blockPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func (r *Rules) onSearchPage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if host != r.Host && registrableDomain(host) != r.domain {
		return false
	}
	return strings.HasPrefix(u.Path, r.SearchPath)
}

// registrableDomain returns the eTLD+1 of host. Hosts without one (IPs, bare suffixes,
// single labels) are returned unchanged, so they only ever match themselves.
func registrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}
