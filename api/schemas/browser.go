// File: api/schemas/browser.go
package schemas

import (
	"context"
	"time"
)

// -- Browser Persona Schemas --

// Persona encapsulates the properties presented to the target for a consistent fingerprint.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
	Timezone  string   `json:"timezoneId"`
	Locale    string   `json:"locale"`
}

// DefaultPersona provides a fallback persona if none is specified.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Width:     1920,
	Height:    1080,
	Timezone:  "America/Los_Angeles",
	Locale:    "en-US",
}

// -- Browsing Context Schemas --

// Cookie is a single cookie to install into a browsing context.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"httpOnly"`
	Secure   bool      `json:"secure"`
	SameSite string    `json:"sameSite,omitempty"`
}

// Snapshot is a diagnostic capture of the page currently loaded in a browsing context.
type Snapshot struct {
	URL        string    `json:"url"`
	HTML       string    `json:"html"`
	Screenshot []byte    `json:"-"`
	TakenAt    time.Time `json:"takenAt"`
}

// BrowsingContext is the headless-browser capability consumed by the crawl engine.
// Implementations are not safe for concurrent use; exactly one page is in flight at a time.
type BrowsingContext interface {
	// Navigate loads url and waits for the document to be ready, bounded by timeout.
	// A returned context.DeadlineExceeded means the wait expired, not that the page is unusable.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	SetCookies(ctx context.Context, cookies []Cookie) error
	ClearCookies(ctx context.Context) error
	// Evaluate runs script in the page and decodes the result into out (which may be nil).
	Evaluate(ctx context.Context, script string, out interface{}) error
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) error
	CurrentURL(ctx context.Context) (string, error)
	// Content returns the serialized outer HTML of the current document.
	Content(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// SnapshotSink receives diagnostic captures. It is optional instrumentation.
type SnapshotSink interface {
	Capture(ctx context.Context, reason string, snap *Snapshot) error
}
