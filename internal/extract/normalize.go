// File: internal/extract/normalize.go
package extract

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/sift/api/schemas"
)

// NormalizeText collapses runs of whitespace, including newlines and non-breaking
// spaces, into single spaces.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalProfileURL resolves href against base and strips the query and fragment.
// It returns "" for hrefs that do not point at a profile.
func CanonicalProfileURL(base *url.URL, href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() || profileSlug(u.Path) == "" {
		return ""
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return u.Scheme + "://" + u.Host + path
}

// ExternalID derives the stable identifier of a profile from its URL: the path segment
// following "/in/", unescaped and lowercased. URLs without that marker yield
// schemas.AnonymousID.
func ExternalID(profileURL string) string {
	u, err := url.Parse(strings.TrimSpace(profileURL))
	if err != nil {
		return schemas.AnonymousID
	}
	if slug := profileSlug(u.Path); slug != "" {
		return slug
	}
	return schemas.AnonymousID
}

func profileSlug(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg != "in" || i+1 >= len(segments) {
			continue
		}
		slug, err := url.PathUnescape(segments[i+1])
		if err != nil {
			slug = segments[i+1]
		}
		return strings.ToLower(strings.TrimSpace(slug))
	}
	return ""
}

var (
	countPattern = regexp.MustCompile(`(?i)(\d[\d.,\s]*)\s*(k|mil|mi|m|million|millions|milhões|milhão)?\s+(?:results?|resultados?)`)
	multipliers  = map[string]float64{
		"k":        1e3,
		"mil":      1e3,
		"m":        1e6,
		"mi":       1e6,
		"million":  1e6,
		"millions": 1e6,
		"milhão":   1e6,
		"milhões":  1e6,
	}
)

// ParseResultCount reads the total number of results from a banner such as
// "About 13,700,000 results", "13.700.000 resultados" or "1,2 mil resultados".
func ParseResultCount(text string) (int, bool) {
	m := countPattern.FindStringSubmatch(NormalizeText(text))
	if m == nil {
		return 0, false
	}
	digits := strings.ReplaceAll(strings.TrimSpace(m[1]), " ", "")
	suffix := strings.ToLower(m[2])

	if mult, ok := multipliers[suffix]; ok {
		// With a magnitude suffix the separator is a decimal mark in either locale.
		dec := digits
		if strings.Contains(dec, ",") {
			dec = strings.ReplaceAll(strings.ReplaceAll(dec, ".", ""), ",", ".")
		}
		f, err := strconv.ParseFloat(dec, 64)
		if err != nil {
			return 0, false
		}
		return int(math.Round(f * mult)), true
	}

	n, err := strconv.Atoi(strings.NewReplacer(",", "", ".", "").Replace(digits))
	if err != nil {
		return 0, false
	}
	return n, true
}
