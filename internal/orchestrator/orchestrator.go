// File: internal/orchestrator/orchestrator.go
// Description: Runs one people-search crawl. The page loop, its state and all
// termination decisions live here; collaborators are injected through interfaces.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/auth"
	"github.com/xkilldash9x/sift/internal/config"
	"github.com/xkilldash9x/sift/internal/extract"
	"github.com/xkilldash9x/sift/internal/navigator"
)

// Authenticator establishes the logged-in session.
type Authenticator interface {
	Establish(ctx context.Context, creds *auth.Credentials) (*auth.Session, error)
}

// PageLoader loads and classifies results pages.
type PageLoader interface {
	Load(ctx context.Context, pageURL string, page int) (*navigator.Page, error)
	SetRetryHook(hook navigator.RetryHook)
}

// Settler scrolls the loaded page until lazy content has rendered.
type Settler interface {
	Settle(ctx context.Context)
}

// ContentReader re-reads the document after scrolling.
type ContentReader interface {
	Content(ctx context.Context) (string, error)
}

// RecordExtractor turns a loaded document into records.
type RecordExtractor interface {
	Extract(doc *goquery.Document) extract.Result
	ResultCount(doc *goquery.Document) (int, bool)
}

// Dependencies are the collaborators of a crawl.
type Dependencies struct {
	Gate      Authenticator
	Navigator PageLoader
	Scroller  Settler
	Content   ContentReader
	Extractor RecordExtractor
}

// Request is the caller input for one crawl.
type Request struct {
	// CrawlID tags events and logs; one is generated when empty.
	CrawlID   string
	SearchURL string
	// MaxPages must be positive; callers apply the configured default.
	MaxPages int
	// Credentials is the raw Cookie header of a signed-in browser.
	Credentials string
}

// Orchestrator drives crawls. Run may be called again once the previous stream has closed.
type Orchestrator struct {
	deps     Dependencies
	crawl    config.CrawlConfig
	platform config.PlatformConfig
	tokenKey string
	logger   *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Orchestrator. A nil rng is replaced by a time-seeded source.
func New(deps Dependencies, cfg config.Interface, logger *zap.Logger, rng *rand.Rand) (*Orchestrator, error) {
	if deps.Gate == nil || deps.Navigator == nil || deps.Scroller == nil || deps.Content == nil || deps.Extractor == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Orchestrator{
		deps:     deps,
		crawl:    cfg.Crawl(),
		platform: cfg.Platform(),
		tokenKey: cfg.Session().TokenCookie,
		logger:   logger.Named("orchestrator"),
		rng:      rng,
	}, nil
}

// Run validates req and starts the crawl. Invalid input (navigator.ErrInvalidSearch,
// auth.ErrMissingToken) is returned before any browser interaction. Otherwise the
// returned channel yields the crawl's events, ends with exactly one done event and is
// then closed. The caller must drain it.
//
// Cancelling ctx stops the crawl before the next navigation or during the
// inter-page delay; the page in flight completes first.
func (o *Orchestrator) Run(ctx context.Context, req Request) (<-chan schemas.CrawlEvent, error) {
	spec, err := navigator.NewSearchSpec(req.SearchURL, req.MaxPages, o.platform)
	if err != nil {
		return nil, err
	}
	creds, err := auth.ParseCredentials(req.Credentials, o.tokenKey)
	if err != nil {
		return nil, err
	}

	id := req.CrawlID
	if id == "" {
		id = uuid.New().String()
	}
	buffer := o.crawl.EventBuffer
	if buffer < 0 {
		buffer = 0
	}
	c := &crawl{
		o:      o,
		id:     id,
		spec:   spec,
		events: make(chan schemas.CrawlEvent, buffer),
		logger: o.logger.With(zap.String("crawl_id", id)),
	}
	go c.run(ctx, creds)
	return c.events, nil
}

// crawl is the per-run emitter. Only its goroutine touches it.
type crawl struct {
	o      *Orchestrator
	id     string
	spec   *navigator.SearchSpec
	events chan schemas.CrawlEvent
	closed bool
	logger *zap.Logger
}

func (c *crawl) emit(e schemas.CrawlEvent) {
	e.CrawlID = c.id
	c.events <- e
}

func (c *crawl) progress(st CrawlState, status, msg string) {
	c.emit(schemas.CrawlEvent{
		Type:           schemas.EventProgress,
		Status:         status,
		Message:        msg,
		Page:           st.CurrentPage,
		Progress:       st.Progress(),
		TotalAvailable: max(st.TotalAvailable, 0),
		TotalToExtract: st.TotalToExtract,
	})
}

func (c *crawl) fail(st CrawlState, status, msg string) {
	c.emit(schemas.CrawlEvent{
		Type:     schemas.EventError,
		Status:   status,
		Message:  msg,
		Page:     st.CurrentPage,
		Progress: st.Progress(),
	})
}

// finish emits the terminal event and closes the stream.
func (c *crawl) finish(st CrawlState, reason, msg string) {
	c.o.deps.Navigator.SetRetryHook(nil)
	st.Reason = reason
	records := append([]schemas.ProfileRecord(nil), st.Records...)
	c.emit(schemas.CrawlEvent{
		Type:           schemas.EventDone,
		Status:         reason,
		Message:        msg,
		Page:           st.CurrentPage,
		Progress:       st.Progress(),
		TotalAvailable: max(st.TotalAvailable, 0),
		TotalToExtract: st.TotalToExtract,
		Count:          len(records),
		Records:        records,
	})
	close(c.events)
	c.closed = true
	c.logger.Info("Crawl finished.",
		zap.String("reason", st.Reason),
		zap.Int("page", st.CurrentPage),
		zap.Int("records", len(records)))
}

func (c *crawl) run(ctx context.Context, creds *auth.Credentials) {
	o := c.o
	// Browser work is detached so an in-flight page completes after cancellation.
	opCtx := context.WithoutCancel(ctx)
	st := newState(c.spec.MaxPages, c.spec.ResultsPerPage, o.platform.Cap)

	defer func() {
		if r := recover(); r != nil && !c.closed {
			c.logger.Error("Crawl panicked.", zap.Any("panic", r))
			c.fail(st, schemas.StatusError, fmt.Sprintf("internal error: %v", r))
			c.finish(st, schemas.StatusFailed, "crawl aborted by an internal error")
		}
	}()

	c.logger.Info("Crawl started.", zap.String("search", c.spec.String()), zap.Int("max_pages", c.spec.MaxPages))
	c.progress(st, schemas.StatusAuthenticating, "installing session credentials")

	session, err := o.deps.Gate.Establish(opCtx, creds)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			c.fail(st, schemas.StatusUnauthenticated, err.Error())
			c.finish(st, schemas.StatusUnauthenticated, "the session cookie was not accepted")
			return
		}
		c.fail(st, schemas.StatusError, err.Error())
		c.finish(st, schemas.StatusFailed, "could not establish a session")
		return
	}
	c.emit(schemas.CrawlEvent{
		Type:     schemas.EventProgress,
		Status:   schemas.StatusAuthenticated,
		Message:  "session authenticated",
		Identity: session.Identity,
	})

	o.deps.Navigator.SetRetryHook(func(r navigator.Retry) {
		c.progress(st, schemas.StatusRetryNavigation,
			fmt.Sprintf("attempt %d failed (%s), retrying in %s", r.Attempt, r.Outcome, r.Delay.Round(time.Millisecond)))
	})

	for page := 1; page <= c.spec.MaxPages; page++ {
		if ctx.Err() != nil {
			st.Cancelled = true
			c.finish(st, schemas.StatusCancelled, "crawl cancelled")
			return
		}
		st.CurrentPage = page

		var (
			reason string
			msg    string
		)
		st, reason, msg = c.page(ctx, opCtx, st)
		if reason != "" {
			c.finish(st, reason, msg)
			return
		}
		if st.Complete() {
			c.finish(st, schemas.StatusCompleted, fmt.Sprintf("extracted %d of %d records", len(st.Records), st.TotalToExtract))
			return
		}
		if page == c.spec.MaxPages {
			break
		}
		if err := o.delay(ctx, page); err != nil {
			st.Cancelled = true
			c.finish(st, schemas.StatusCancelled, "crawl cancelled")
			return
		}
	}
	c.finish(st, schemas.StatusCompleted, fmt.Sprintf("reached the page limit of %d", c.spec.MaxPages))
}

// page runs one iteration of the loop and returns the updated state. A non-empty
// reason ends the crawl.
func (c *crawl) page(ctx, opCtx context.Context, st CrawlState) (CrawlState, string, string) {
	o := c.o
	page := st.CurrentPage
	logger := c.logger.With(zap.Int("page", page))

	c.progress(st, schemas.StatusNavigating, fmt.Sprintf("loading page %d", page))
	loaded, err := o.deps.Navigator.Load(ctx, c.spec.PageURL(page), page)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			st.Cancelled = true
			return st, schemas.StatusCancelled, "crawl cancelled"
		}
		var navErr *navigator.NavigationError
		if errors.As(err, &navErr) && navErr.Outcome.Fatal() {
			status := schemas.StatusBlocked
			if navErr.Outcome == navigator.OutcomeExpired {
				status = schemas.StatusExpired
			}
			logger.Warn("Aborting crawl.", zap.Stringer("outcome", navErr.Outcome))
			c.fail(st, status, err.Error())
			return st, status, fmt.Sprintf("aborted on page %d: %s", page, navErr.Outcome)
		}
		return c.pageFailed(st, err.Error())
	}
	c.progress(st, schemas.StatusPageLoaded, fmt.Sprintf("page %d loaded", page))

	o.deps.Scroller.Settle(opCtx)
	doc := c.refresh(opCtx, loaded, logger)

	if !st.totalsKnown {
		if total, ok := o.deps.Extractor.ResultCount(doc); ok {
			st.TotalAvailable = total
		}
		st.TotalToExtract = TotalToExtract(st.TotalAvailable, c.spec.MaxPages, c.spec.ResultsPerPage, o.platform.Cap)
		st.totalsKnown = true
		logger.Info("Result count read.", zap.Int("total_available", st.TotalAvailable), zap.Int("total_to_extract", st.TotalToExtract))
	}

	c.progress(st, schemas.StatusExtracting, fmt.Sprintf("extracting page %d", page))
	res := o.deps.Extractor.Extract(doc)
	if len(res.Records) == 0 {
		if res.NoResults {
			why := "no result containers after all fallbacks"
			if res.ExplicitMarker {
				why = "empty results marker"
			}
			c.progress(st, schemas.StatusNoMoreResults, fmt.Sprintf("no results on page %d: %s", page, why))
			return st, schemas.StatusNoMoreResults, fmt.Sprintf("no more results after page %d", page-1)
		}
		return c.pageFailed(st, fmt.Sprintf("page %d rendered %d result containers but no usable records", page, res.Containers))
	}

	for i := range res.Records {
		st.Records = append(st.Records, res.Records[i])
		rec := res.Records[i]
		c.emit(schemas.CrawlEvent{
			Type:           schemas.EventRecord,
			Status:         schemas.StatusExtracted,
			Page:           page,
			Progress:       st.Progress(),
			Record:         &rec,
			TotalToExtract: st.TotalToExtract,
		})
	}
	st.ConsecutiveErrors = 0
	c.progress(st, schemas.StatusExtracted, fmt.Sprintf("page %d yielded %d records", page, len(res.Records)))
	logger.Debug("Page extracted.", zap.Int("records", len(res.Records)), zap.Int("skipped", res.Skipped), zap.Bool("fallback", res.Fallback))
	return st, "", ""
}

// pageFailed counts a page failure against the error budget.
func (c *crawl) pageFailed(st CrawlState, msg string) (CrawlState, string, string) {
	st.ConsecutiveErrors++
	c.logger.Warn("Page failed.", zap.Int("page", st.CurrentPage), zap.Int("consecutive_errors", st.ConsecutiveErrors), zap.String("error", msg))
	c.fail(st, schemas.StatusError, msg)

	budget := c.o.crawl.ErrorBudget
	if budget <= 0 {
		budget = 1
	}
	if st.ConsecutiveErrors >= budget {
		msg := fmt.Sprintf("stopped after %d consecutive page failures", st.ConsecutiveErrors)
		c.fail(st, schemas.StatusStopped, msg)
		return st, schemas.StatusStopped, msg
	}
	return st, "", ""
}

// refresh re-reads the document after scrolling, keeping the navigation snapshot when
// the read fails.
func (c *crawl) refresh(ctx context.Context, loaded *navigator.Page, logger *zap.Logger) *goquery.Document {
	content, err := c.o.deps.Content.Content(ctx)
	if err == nil {
		doc, perr := extract.ParseDocument(content)
		if perr == nil {
			return doc
		}
		err = perr
	}
	logger.Debug("Could not re-read page after scrolling, using navigation snapshot.", zap.Error(err))
	return loaded.Doc
}

// delayFor is base + page*increment + jitter, capped at the configured maximum.
func (o *Orchestrator) delayFor(page int) time.Duration {
	d := o.crawl.DelayBase + time.Duration(page)*o.crawl.DelayIncrement
	if o.crawl.DelayJitter > 0 {
		o.mu.Lock()
		d += time.Duration(o.rng.Int63n(int64(o.crawl.DelayJitter) + 1))
		o.mu.Unlock()
	}
	if o.crawl.DelayMax > 0 && d > o.crawl.DelayMax {
		d = o.crawl.DelayMax
	}
	return d
}

// delay waits between pages and returns ctx.Err() if ctx ends first.
func (o *Orchestrator) delay(ctx context.Context, page int) error {
	d := o.delayFor(page)
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
