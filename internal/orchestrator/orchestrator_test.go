// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/auth"
	"github.com/xkilldash9x/sift/internal/config"
	"github.com/xkilldash9x/sift/internal/extract"
	"github.com/xkilldash9x/sift/internal/navigator"
)

const (
	testSearch = "https://www.linkedin.com/search/results/people/?keywords=data%20engineer"
	testCookie = "li_at=token; JSESSIONID=ajax:1"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- fake site --

type pageScript struct {
	err        error
	records    []schemas.ProfileRecord
	noResults  bool
	marker     bool
	containers int
	// retry invokes the retry hook once before the page returns.
	retry bool
}

type fakeSite struct {
	mu       sync.Mutex
	pages    map[int]pageScript
	count    int
	countOK  bool
	authErr  error
	identity *schemas.Identity
	content  string
	extract  RecordExtractor

	current    int
	loads      []int
	settles    int
	authCalls  int
	hook       navigator.RetryHook
	countCalls int
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: make(map[int]pageScript), content: "<html><body><main></main></body></html>"}
}

func (f *fakeSite) Establish(ctx context.Context, creds *auth.Credentials) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &auth.Session{LoggedIn: true, Identity: f.identity}, nil
}

func (f *fakeSite) Load(ctx context.Context, pageURL string, page int) (*navigator.Page, error) {
	f.mu.Lock()
	f.loads = append(f.loads, page)
	script := f.pages[page]
	hook := f.hook
	f.mu.Unlock()

	if script.retry && hook != nil {
		hook(navigator.Retry{Page: page, Attempt: 1, Outcome: navigator.OutcomeTransientFailure, Delay: time.Millisecond})
	}
	if script.err != nil {
		return nil, script.err
	}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(f.content))

	f.mu.Lock()
	f.current = page
	f.mu.Unlock()
	return &navigator.Page{Number: page, URL: pageURL, Doc: doc}, nil
}

func (f *fakeSite) SetRetryHook(hook navigator.RetryHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

func (f *fakeSite) Settle(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settles++
}

func (f *fakeSite) Content(ctx context.Context) (string, error) {
	return f.content, nil
}

func (f *fakeSite) Extract(doc *goquery.Document) extract.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.pages[f.current]
	return extract.Result{Records: s.records, NoResults: s.noResults, ExplicitMarker: s.marker, Containers: s.containers}
}

func (f *fakeSite) ResultCount(doc *goquery.Document) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	return f.count, f.countOK
}

func (f *fakeSite) hasHook() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hook != nil
}

func (f *fakeSite) loaded() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.loads...)
}

func records(page, n int) []schemas.ProfileRecord {
	out := make([]schemas.ProfileRecord, 0, n)
	for i := 1; i <= n; i++ {
		slug := fmt.Sprintf("p%d-r%d", page, i)
		out = append(out, schemas.ProfileRecord{
			Name:       fmt.Sprintf("Person %d.%d", page, i),
			Title:      "Engineer",
			ProfileURL: "https://www.linkedin.com/in/" + slug,
			ExternalID: slug,
		})
	}
	return out
}

func transient(page int) error {
	return &navigator.NavigationError{
		Outcome:  navigator.OutcomeTransientFailure,
		Page:     page,
		Attempts: 3,
		Err:      navigator.ErrRetriesExhausted,
	}
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.CrawlCfg.DelayBase = time.Millisecond
	cfg.CrawlCfg.DelayIncrement = 0
	cfg.CrawlCfg.DelayJitter = 0
	cfg.CrawlCfg.DelayMax = 0
	cfg.CrawlCfg.EventBuffer = 4
	return cfg
}

func newTestOrchestrator(t *testing.T, site *fakeSite, cfg *config.Config) *Orchestrator {
	t.Helper()
	var ex RecordExtractor = site
	if site.extract != nil {
		ex = site.extract
	}
	o, err := New(Dependencies{
		Gate:      site,
		Navigator: site,
		Scroller:  site,
		Content:   site,
		Extractor: ex,
	}, cfg, zaptest.NewLogger(t), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return o
}

// collect drains events until the stream closes and checks the done invariant.
func collect(t *testing.T, events <-chan schemas.CrawlEvent) []schemas.CrawlEvent {
	t.Helper()
	var out []schemas.CrawlEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				require.NotEmpty(t, out)
				last := out[len(out)-1]
				require.True(t, last.Terminal(), "stream must end with done")
				for _, e := range out[:len(out)-1] {
					require.False(t, e.Terminal(), "done must be the only terminal event")
				}
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatal("crawl did not finish")
		}
	}
}

func done(events []schemas.CrawlEvent) schemas.CrawlEvent {
	return events[len(events)-1]
}

func ofType(events []schemas.CrawlEvent, typ schemas.EventType) []schemas.CrawlEvent {
	var out []schemas.CrawlEvent
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func statuses(events []schemas.CrawlEvent) []string {
	var out []string
	for _, e := range events {
		out = append(out, e.Status)
	}
	return out
}

func run(t *testing.T, o *Orchestrator, maxPages int) []schemas.CrawlEvent {
	t.Helper()
	events, err := o.Run(context.Background(), Request{CrawlID: "c1", SearchURL: testSearch, MaxPages: maxPages, Credentials: testCookie})
	require.NoError(t, err)
	return collect(t, events)
}

// -- tests --

func TestTotalToExtract(t *testing.T) {
	tests := []struct {
		available, maxPages, perPage, cap, want int
	}{
		{13700000, 5, 10, 1000, 50},
		{13700000, 200, 10, 1000, 1000},
		{37, 5, 10, 1000, 37},
		{0, 5, 10, 1000, 0},
		{UnknownTotal, 5, 10, 1000, 50},
		{UnknownTotal, 500, 10, 1000, 1000},
		{13700000, 1 << 62, 10, 1000, 1000},
		{UnknownTotal, math.MaxInt, 10, 1000, 1000},
		{13700000, 0, 10, 1000, 0},
		{13700000, 5, 0, 1000, 0},
		{13700000, 99, 10, 995, 990},
		{13700000, 100, 10, 995, 995},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d_%d", tt.available, tt.maxPages, tt.perPage, tt.cap), func(t *testing.T) {
			assert.Equal(t, tt.want, TotalToExtract(tt.available, tt.maxPages, tt.perPage, tt.cap))
		})
	}
}

func TestCrawlState_Progress(t *testing.T) {
	st := CrawlState{TotalToExtract: 3}
	assert.Equal(t, 0, st.Progress())
	st.Records = records(1, 1)
	assert.Equal(t, 33, st.Progress())
	st.Records = records(1, 5)
	assert.Equal(t, 100, st.Progress())
	assert.Equal(t, 100, CrawlState{}.Progress())
}

func TestRun_CompletesAtTarget(t *testing.T) {
	site := newFakeSite()
	site.count, site.countOK = 13700000, true
	site.identity = &schemas.Identity{DisplayName: "Marta Reis"}
	site.pages[1] = pageScript{records: records(1, 10)}
	site.pages[2] = pageScript{records: records(2, 10)}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 2)
	d := done(events)

	assert.Equal(t, schemas.StatusCompleted, d.Status)
	assert.Equal(t, "c1", d.CrawlID)
	assert.Equal(t, 20, d.Count)
	assert.Equal(t, 20, d.TotalToExtract)
	assert.Equal(t, 13700000, d.TotalAvailable)
	assert.Equal(t, 100, d.Progress)
	assert.Equal(t, 2, d.Page)

	want := append(records(1, 10), records(2, 10)...)
	if diff := cmp.Diff(want, d.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{schemas.StatusAuthenticating, schemas.StatusAuthenticated, schemas.StatusNavigating, schemas.StatusPageLoaded, schemas.StatusExtracting},
		statuses(events[:5]))
	require.NotNil(t, events[1].Identity)
	assert.Equal(t, "Marta Reis", events[1].Identity.DisplayName)

	recs := ofType(events, schemas.EventRecord)
	require.Len(t, recs, 20)
	last := -1
	for i, e := range recs {
		assert.GreaterOrEqual(t, e.Progress, last, "progress is monotonic")
		last = e.Progress
		assert.Equal(t, want[i], *e.Record)
	}
	assert.Equal(t, 5, recs[0].Progress)
	assert.Equal(t, 100, recs[19].Progress)
	assert.Equal(t, 1, site.countCalls, "result count is read once")
	assert.Equal(t, 2, site.settles)
}

func TestRun_PageLimit(t *testing.T) {
	site := newFakeSite()
	site.count, site.countOK = 500, true
	for p := 1; p <= 3; p++ {
		site.pages[p] = pageScript{records: records(p, 10)}
	}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 3)
	d := done(events)
	assert.Equal(t, schemas.StatusCompleted, d.Status)
	assert.Equal(t, 30, d.Count)
	assert.Equal(t, []int{1, 2, 3}, site.loaded())
}

func TestRun_NoMoreResults(t *testing.T) {
	site := newFakeSite()
	site.count, site.countOK = 13700000, true
	site.pages[1] = pageScript{records: records(1, 10)}
	site.pages[2] = pageScript{noResults: true}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 10)
	d := done(events)

	assert.Equal(t, schemas.StatusNoMoreResults, d.Status)
	assert.Equal(t, 2, d.Page)
	assert.Equal(t, 10, d.Count)
	assert.Empty(t, ofType(events, schemas.EventError), "no-results is not an error")
	assert.Contains(t, statuses(events), schemas.StatusNoMoreResults)
	assert.Equal(t, []int{1, 2}, site.loaded())
}

func TestRun_NoMoreResultsReason(t *testing.T) {
	cases := []struct {
		name   string
		marker bool
		want   string
	}{
		{"empty results marker", true, "no results on page 2: empty results marker"},
		{"fallbacks exhausted", false, "no results on page 2: no result containers after all fallbacks"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			site := newFakeSite()
			site.count, site.countOK = 13700000, true
			site.pages[1] = pageScript{records: records(1, 10)}
			site.pages[2] = pageScript{noResults: true, marker: tc.marker}

			events := run(t, newTestOrchestrator(t, site, testConfig()), 10)

			var msgs []string
			for _, ev := range ofType(events, schemas.EventProgress) {
				if ev.Status == schemas.StatusNoMoreResults {
					msgs = append(msgs, ev.Message)
				}
			}
			assert.Equal(t, []string{tc.want}, msgs)
			assert.Equal(t, schemas.StatusNoMoreResults, done(events).Status)
		})
	}
}

func TestRun_HugePageCount(t *testing.T) {
	site := newFakeSite()
	site.count, site.countOK = 13700000, true
	site.pages[1] = pageScript{records: records(1, 10)}
	site.pages[2] = pageScript{noResults: true}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 1<<62)
	d := done(events)

	assert.Equal(t, schemas.StatusNoMoreResults, d.Status)
	assert.Equal(t, 1000, d.TotalToExtract)
	assert.Equal(t, 10, d.Count)
	assert.Equal(t, []int{1, 2}, site.loaded())
}

func TestRun_StopsAfterErrorBudget(t *testing.T) {
	site := newFakeSite()
	site.count, site.countOK = 13700000, true
	site.pages[1] = pageScript{records: records(1, 2)}
	for p := 2; p <= 4; p++ {
		site.pages[p] = pageScript{err: transient(p)}
	}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 10)
	d := done(events)

	assert.Equal(t, schemas.StatusStopped, d.Status)
	assert.Equal(t, 4, d.Page)
	if diff := cmp.Diff(records(1, 2), d.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	errs := ofType(events, schemas.EventError)
	assert.Equal(t, []string{schemas.StatusError, schemas.StatusError, schemas.StatusError, schemas.StatusStopped}, statuses(errs))
	assert.Equal(t, []int{1, 2, 3, 4}, site.loaded())
}

func TestRun_SuccessResetsErrorBudget(t *testing.T) {
	site := newFakeSite()
	site.count, site.countOK = 13700000, true
	site.pages[1] = pageScript{err: transient(1)}
	site.pages[2] = pageScript{containers: 3} // containers but no usable records
	site.pages[3] = pageScript{records: records(3, 1)}
	site.pages[4] = pageScript{err: transient(4)}
	site.pages[5] = pageScript{err: transient(5)}
	site.pages[6] = pageScript{records: records(6, 1)}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 6)
	d := done(events)

	assert.Equal(t, schemas.StatusCompleted, d.Status)
	assert.Equal(t, 2, d.Count)
	assert.Len(t, ofType(events, schemas.EventError), 4)
	assert.NotContains(t, statuses(events), schemas.StatusStopped)
}

func TestRun_ExpiredAbortsImmediately(t *testing.T) {
	site := newFakeSite()
	site.count, site.countOK = 13700000, true
	site.pages[1] = pageScript{records: records(1, 10)}
	site.pages[2] = pageScript{err: &navigator.NavigationError{Outcome: navigator.OutcomeExpired, Page: 2, Attempts: 1, Err: navigator.ErrExpired}}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 10)
	d := done(events)

	assert.Equal(t, schemas.StatusExpired, d.Status)
	assert.Equal(t, 2, d.Page)
	assert.Equal(t, 10, d.Count)
	errs := ofType(events, schemas.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, schemas.StatusExpired, errs[0].Status)
	assert.Equal(t, 2, errs[0].Page)
	assert.Equal(t, []int{1, 2}, site.loaded())
}

func TestRun_BlockedOnFirstPage(t *testing.T) {
	site := newFakeSite()
	site.pages[1] = pageScript{err: &navigator.NavigationError{Outcome: navigator.OutcomeBlocked, Page: 1, Attempts: 1, Err: navigator.ErrBlocked}}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 10)
	d := done(events)
	assert.Equal(t, schemas.StatusBlocked, d.Status)
	assert.Equal(t, 1, d.Page)
	assert.Zero(t, d.Count)
	assert.Empty(t, d.Records)
}

func TestRun_RetryNotifications(t *testing.T) {
	site := newFakeSite()
	site.count, site.countOK = 5, true
	site.pages[1] = pageScript{records: records(1, 5), retry: true}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 3)
	assert.Contains(t, statuses(events), schemas.StatusRetryNavigation)
	assert.Equal(t, schemas.StatusCompleted, done(events).Status)
	assert.False(t, site.hasHook(), "hook is cleared when the crawl ends")
}

func TestRun_UnknownResultCount(t *testing.T) {
	site := newFakeSite()
	site.pages[1] = pageScript{records: records(1, 10)}
	site.pages[2] = pageScript{noResults: true}

	events := run(t, newTestOrchestrator(t, site, testConfig()), 5)
	d := done(events)
	assert.Equal(t, 50, d.TotalToExtract)
	assert.Zero(t, d.TotalAvailable)
	assert.Equal(t, 20, d.Progress)
}

func TestRun_CancelDuringDelay(t *testing.T) {
	cfg := testConfig()
	cfg.CrawlCfg.DelayBase = time.Hour

	site := newFakeSite()
	site.count, site.countOK = 13700000, true
	site.pages[1] = pageScript{records: records(1, 3)}
	site.pages[2] = pageScript{records: records(2, 3)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := newTestOrchestrator(t, site, cfg).Run(ctx, Request{SearchURL: testSearch, MaxPages: 5, Credentials: testCookie})
	require.NoError(t, err)

	var got []schemas.CrawlEvent
	start := time.Now()
	for e := range events {
		got = append(got, e)
		if e.Status == schemas.StatusExtracted && e.Type == schemas.EventProgress {
			cancel()
		}
	}
	require.NotEmpty(t, got)
	d := done(got)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, schemas.StatusCancelled, d.Status)
	assert.Equal(t, 3, d.Count)
	assert.NotEmpty(t, d.CrawlID)
	assert.Equal(t, []int{1}, site.loaded(), "no navigation after cancellation")
}

func TestRun_CancelledBeforeFirstPage(t *testing.T) {
	site := newFakeSite()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events, err := newTestOrchestrator(t, site, testConfig()).Run(ctx, Request{SearchURL: testSearch, MaxPages: 5, Credentials: testCookie})
	require.NoError(t, err)
	d := done(collect(t, events))

	assert.Equal(t, schemas.StatusCancelled, d.Status)
	assert.Empty(t, site.loaded())
}

func TestRun_AuthenticationFailures(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		site := newFakeSite()
		site.authErr = fmt.Errorf("%w: redirected", auth.ErrNotAuthenticated)

		events := run(t, newTestOrchestrator(t, site, testConfig()), 5)
		assert.Equal(t, schemas.StatusUnauthenticated, done(events).Status)
		assert.Len(t, ofType(events, schemas.EventError), 1)
		assert.Empty(t, site.loaded())
	})

	t.Run("verification navigation failure", func(t *testing.T) {
		site := newFakeSite()
		site.authErr = errors.New("auth: verify navigation: net::ERR_NAME_NOT_RESOLVED")

		events := run(t, newTestOrchestrator(t, site, testConfig()), 5)
		assert.Equal(t, schemas.StatusFailed, done(events).Status)
	})
}

func TestRun_RejectsInvalidInput(t *testing.T) {
	site := newFakeSite()
	o := newTestOrchestrator(t, site, testConfig())

	_, err := o.Run(context.Background(), Request{SearchURL: "", MaxPages: 5, Credentials: testCookie})
	assert.ErrorIs(t, err, navigator.ErrInvalidSearch)

	_, err = o.Run(context.Background(), Request{SearchURL: testSearch, MaxPages: 0, Credentials: testCookie})
	assert.ErrorIs(t, err, navigator.ErrInvalidSearch)

	_, err = o.Run(context.Background(), Request{SearchURL: testSearch, MaxPages: 5, Credentials: "JSESSIONID=1"})
	assert.ErrorIs(t, err, auth.ErrMissingToken)

	assert.Zero(t, site.authCalls)
	assert.Empty(t, site.loaded())
}

func TestRun_WithMarkupExtractor(t *testing.T) {
	raw, err := os.ReadFile("../extract/testdata/results_current.html")
	require.NoError(t, err)

	site := newFakeSite()
	site.content = string(raw)
	ex, err := extract.NewDefault(zaptest.NewLogger(t), "https://www.linkedin.com")
	require.NoError(t, err)
	site.extract = ex

	events := run(t, newTestOrchestrator(t, site, testConfig()), 1)
	d := done(events)

	assert.Equal(t, schemas.StatusCompleted, d.Status)
	assert.Equal(t, 13700000, d.TotalAvailable)
	assert.Equal(t, 10, d.TotalToExtract)
	require.Len(t, d.Records, 3)
	assert.Equal(t, "Ana Souza", d.Records[0].Name)
	assert.True(t, d.Records[2].IsAnonymous)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{}, testConfig(), zaptest.NewLogger(t), nil)
	assert.Error(t, err)
}

func TestDelayFor(t *testing.T) {
	cfg := testConfig()
	cfg.CrawlCfg.DelayBase = time.Second
	cfg.CrawlCfg.DelayIncrement = 100 * time.Millisecond
	cfg.CrawlCfg.DelayJitter = 500 * time.Millisecond
	cfg.CrawlCfg.DelayMax = 3 * time.Second
	o := newTestOrchestrator(t, newFakeSite(), cfg)

	for i := 0; i < 20; i++ {
		d := o.delayFor(2)
		assert.GreaterOrEqual(t, d, 1200*time.Millisecond)
		assert.LessOrEqual(t, d, 1700*time.Millisecond)
	}
	assert.Equal(t, 3*time.Second, o.delayFor(100), "delay is capped")
}
