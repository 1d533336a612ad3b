// File: internal/extract/extractor.go
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xkilldash9x/sift/api/schemas"
	"go.uber.org/zap"
)

// AnonymousName is the display name assigned to entries whose name is hidden.
const AnonymousName = "LinkedIn Member"

// Result is the outcome of extracting one loaded page.
type Result struct {
	Records []schemas.ProfileRecord
	// NoResults is true when no container was found, either because the page carries an
	// explicit empty-state marker or because every structural fallback came up empty.
	NoResults bool
	// ExplicitMarker reports whether an empty-state marker was present.
	ExplicitMarker bool
	Containers     int
	// Fallback reports whether containers came from the homogeneous-list heuristic.
	Fallback bool
	// Skipped counts containers dropped because no usable field resolved.
	Skipped int
}

// Extractor turns a results page into ProfileRecords.
type Extractor struct {
	logger *zap.Logger
	base   *url.URL

	containers    []selector
	fallbackRoots []selector
	profileLink   selector
	markers       []selector
	markerText    []*regexp.Regexp

	name, title, location, url, degree, urn Chain
	resultCount                             Chain
}

// New compiles sel into an Extractor. baseURL resolves relative profile links.
func New(logger *zap.Logger, baseURL string, sel Selectors) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("extract: invalid base url %q", baseURL)
	}
	e := &Extractor{logger: logger.Named("extractor"), base: base}

	if e.containers, err = compileAll(sel.Containers); err != nil {
		return nil, fmt.Errorf("extract: containers: %w", err)
	}
	if e.fallbackRoots, err = compileAll(sel.FallbackRoots); err != nil {
		return nil, fmt.Errorf("extract: fallback roots: %w", err)
	}
	if e.markers, err = compileAll(sel.NoResultsMarkers); err != nil {
		return nil, fmt.Errorf("extract: no-results markers: %w", err)
	}
	if e.profileLink, err = compileSelector(sel.ProfileLink); err != nil {
		return nil, fmt.Errorf("extract: profile link: %w", err)
	}
	for _, p := range sel.NoResultsText {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("extract: no-results text %q: %w", p, err)
		}
		e.markerText = append(e.markerText, re)
	}

	text := rejectPlaceholders(sel.Placeholders)
	chains := []struct {
		dst      *Chain
		field    string
		specs    []StrategySpec
		validate Validator
	}{
		{&e.name, "name", sel.Name, text},
		{&e.title, "title", sel.Title, text},
		{&e.location, "location", sel.Location, text},
		{&e.url, "url", sel.URL, isProfileHref},
		{&e.degree, "degree", sel.Degree, nil},
		{&e.urn, "urn", sel.URN, nil},
		{&e.resultCount, "result_count", sel.ResultCount, nil},
	}
	for _, c := range chains {
		if *c.dst, err = NewChain(c.field, c.specs, c.validate); err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
	}
	return e, nil
}

// NewDefault builds an Extractor from DefaultSelectors.
func NewDefault(logger *zap.Logger, baseURL string) (*Extractor, error) {
	return New(logger, baseURL, DefaultSelectors())
}

func compileAll(raw []string) ([]selector, error) {
	out := make([]selector, 0, len(raw))
	for _, r := range raw {
		s, err := compileSelector(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseDocument parses serialized page HTML.
func ParseDocument(content string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("extract: parse document: %w", err)
	}
	return doc, nil
}

// Extract resolves every record on the page. Field failures are never fatal; they are
// logged and the record is skipped or filled with placeholders.
func (e *Extractor) Extract(doc *goquery.Document) Result {
	var res Result
	containers := e.findContainers(doc.Selection)
	if containers.Length() == 0 {
		containers = e.fallbackContainers(doc.Selection)
		res.Fallback = containers.Length() > 0
	}

	res.Containers = containers.Length()
	if res.Containers == 0 {
		res.ExplicitMarker = e.hasNoResultsMarker(doc.Selection)
		res.NoResults = true
		return res
	}

	containers.Each(func(i int, c *goquery.Selection) {
		rec, ok := e.record(c)
		if !ok {
			res.Skipped++
			e.logger.Debug("Skipping container with no usable fields.", zap.Int("index", i))
			return
		}
		res.Records = append(res.Records, rec)
	})
	return res
}

// ResultCount reads the total number of available results.
func (e *Extractor) ResultCount(doc *goquery.Document) (int, bool) {
	for _, s := range e.resultCount.Strategies {
		if v, ok := s.Resolve(doc.Selection); ok {
			if n, ok := ParseResultCount(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func (e *Extractor) findContainers(root *goquery.Selection) *goquery.Selection {
	for _, s := range e.containers {
		if found := s.find(root); found.Length() > 0 {
			return found
		}
	}
	return root.Slice(0, 0)
}

// fallbackContainers picks, under the first results-shaped ancestor that yields one,
// the largest group of same-tag siblings that each contain a profile link.
func (e *Extractor) fallbackContainers(root *goquery.Selection) *goquery.Selection {
	for _, r := range e.fallbackRoots {
		var best *goquery.Selection
		ancestors := r.find(root)
		ancestors.AddSelection(ancestors.Find("ul, ol, div, section")).Each(func(_ int, parent *goquery.Selection) {
			groups := map[string]*goquery.Selection{}
			var order []string
			parent.Children().Each(func(_ int, child *goquery.Selection) {
				if e.profileLink.find(child).Length() == 0 {
					return
				}
				tag := goquery.NodeName(child)
				if groups[tag] == nil {
					groups[tag] = child
					order = append(order, tag)
					return
				}
				groups[tag] = groups[tag].AddSelection(child)
			})
			for _, tag := range order {
				g := groups[tag]
				if g.Length() >= 2 && (best == nil || g.Length() > best.Length()) {
					best = g
				}
			}
		})
		if best != nil {
			return best
		}
	}
	return root.Slice(0, 0)
}

func (e *Extractor) hasNoResultsMarker(root *goquery.Selection) bool {
	for _, m := range e.markers {
		if m.find(root).Length() > 0 {
			return true
		}
	}
	text := NormalizeText(root.Find("main").Text())
	if text == "" {
		text = NormalizeText(root.Text())
	}
	for _, re := range e.markerText {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (e *Extractor) record(c *goquery.Selection) (schemas.ProfileRecord, bool) {
	title, hasTitle := e.title.Resolve(c)
	location, hasLocation := e.location.Resolve(c)
	href, hasURL := e.url.Resolve(c)

	profileURL := ""
	if hasURL {
		profileURL = CanonicalProfileURL(e.base, href)
		hasURL = profileURL != ""
	}
	if !hasTitle && !hasLocation && !hasURL {
		return schemas.ProfileRecord{}, false
	}

	rec := schemas.ProfileRecord{
		Title:      title,
		Location:   location,
		ProfileURL: profileURL,
		ExternalID: ExternalID(profileURL),
	}
	if name, ok := e.name.Resolve(c); ok {
		rec.Name = name
	} else {
		rec.Name = AnonymousName
		rec.IsAnonymous = true
	}
	rec.ConnectionDegree, _ = e.degree.Resolve(c)
	rec.URN, _ = e.urn.Resolve(c)
	return rec, true
}
