// internal/navigator/search.go
package navigator

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/sift/internal/config"
)

// compactJSON re-serializes array valued parameters without whitespace, keeping numbers verbatim.
var compactJSON = jsoniter.Config{UseNumber: true, SortMapKeys: true}.Froze()

// SearchSpec is a validated, normalized search request.
type SearchSpec struct {
	base           *url.URL
	query          url.Values
	pageParam      string
	MaxPages       int
	ResultsPerPage int
}

// NewSearchSpec validates rawURL against the platform and normalizes its query.
// maxPages above PageLimit is lowered to it.
func NewSearchSpec(rawURL string, maxPages int, platform config.PlatformConfig) (*SearchSpec, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: search url is required", ErrInvalidSearch)
	}
	if maxPages <= 0 {
		return nil, fmt.Errorf("%w: max pages must be positive, got %d", ErrInvalidSearch, maxPages)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSearch, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidSearch, rawURL)
	}
	rules, err := NewRules(config.PlatformConfig{BaseURL: platform.BaseURL, SearchPath: platform.SearchPath})
	if err != nil {
		return nil, err
	}
	if !rules.onSearchPage(u.String()) {
		return nil, fmt.Errorf("%w: %q is not a search results url for %s", ErrInvalidSearch, rawURL, platform.BaseURL)
	}

	if limit := PageLimit(platform); limit > 0 && maxPages > limit {
		maxPages = limit
	}

	pageParam := platform.PageParam
	if pageParam == "" {
		pageParam = "page"
	}
	query := normalizeQuery(u.Query())
	query.Del(pageParam)

	base := *u
	base.RawQuery = ""
	base.Fragment = ""
	return &SearchSpec{
		base:           &base,
		query:          query,
		pageParam:      pageParam,
		MaxPages:       maxPages,
		ResultsPerPage: platform.ResultsPerPage,
	}, nil
}

// PageLimit is the number of pages needed to reach the platform cap, the last page
// that can still hold results. It is zero when the platform does not bound paging.
func PageLimit(platform config.PlatformConfig) int {
	if platform.Cap <= 0 || platform.ResultsPerPage <= 0 {
		return 0
	}
	return (platform.Cap + platform.ResultsPerPage - 1) / platform.ResultsPerPage
}

// normalizeQuery compacts JSON array values. Key order is applied at encode time.
func normalizeQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for key, values := range q {
		for _, v := range values {
			out.Add(key, compactArray(v))
		}
	}
	return out
}

func compactArray(v string) string {
	trimmed := strings.TrimSpace(v)
	if !strings.HasPrefix(trimmed, "[") {
		return v
	}
	var parsed []interface{}
	if err := compactJSON.UnmarshalFromString(trimmed, &parsed); err != nil {
		return v
	}
	compact, err := compactJSON.MarshalToString(parsed)
	if err != nil {
		return v
	}
	return compact
}

// PageURL returns the url of the given 1-based results page.
func (s *SearchSpec) PageURL(page int) string {
	q := make(url.Values, len(s.query)+1)
	for k, v := range s.query {
		q[k] = append([]string(nil), v...)
	}
	q.Set(s.pageParam, strconv.Itoa(page))
	u := *s.base
	u.RawQuery = q.Encode()
	return u.String()
}

// String returns the normalized url without a page parameter.
func (s *SearchSpec) String() string {
	u := *s.base
	u.RawQuery = s.query.Encode()
	return u.String()
}
