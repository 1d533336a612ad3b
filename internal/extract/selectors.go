// File: internal/extract/selectors.go
package extract

import (
	"regexp"
	"strings"
)

// Selectors is the declarative locator configuration for a search results page.
// Chains are ordered from the most markup-specific strategy to the most generic.
type Selectors struct {
	Containers []string `mapstructure:"containers" yaml:"containers"`

	Name     []StrategySpec `mapstructure:"name" yaml:"name"`
	Title    []StrategySpec `mapstructure:"title" yaml:"title"`
	Location []StrategySpec `mapstructure:"location" yaml:"location"`
	URL      []StrategySpec `mapstructure:"url" yaml:"url"`
	Degree   []StrategySpec `mapstructure:"degree" yaml:"degree"`
	URN      []StrategySpec `mapstructure:"urn" yaml:"urn"`

	// FallbackRoots are the results-shaped ancestors searched for a homogeneous list
	// when no container selector matches.
	FallbackRoots []string `mapstructure:"fallback_roots" yaml:"fallback_roots"`
	ProfileLink   string   `mapstructure:"profile_link" yaml:"profile_link"`

	NoResultsMarkers []string `mapstructure:"no_results_markers" yaml:"no_results_markers"`
	NoResultsText    []string `mapstructure:"no_results_text" yaml:"no_results_text"`

	ResultCount []StrategySpec `mapstructure:"result_count" yaml:"result_count"`

	// Placeholders are status strings rendered in place of real values.
	Placeholders []string `mapstructure:"placeholders" yaml:"placeholders"`
}

// DefaultSelectors returns the locators for the result markup generations currently
// known to be live.
func DefaultSelectors() Selectors {
	return Selectors{
		Containers: []string{
			"main ul.reusable-search__entity-result-list > li",
			"main [data-view-name='search-entity-result-universal-template']",
			"main [data-chameleon-result-urn]",
			"main li.reusable-search__result-container",
			"main div.entity-result",
		},
		Name: []StrategySpec{
			{Kind: KindAttribute, Selector: ".entity-result__title-text a span[aria-hidden='true']"},
			{Kind: KindAttribute, Selector: "a[href*='/in/'] span[aria-hidden='true']"},
			{Kind: KindAttribute, Selector: "[data-anonymize='person-name']"},
			{Kind: KindAttribute, Selector: "img[alt]", Attr: "alt"},
			{Kind: KindPattern, Selector: "a[href*='/in/']", Pattern: `^(?:View\s+|Ver\s+(?:o\s+)?perfil\s+de\s+)?(.+?)(?:’s|'s)?(?:\s+profile)?$`},
		},
		Title: []StrategySpec{
			{Kind: KindAttribute, Selector: ".entity-result__primary-subtitle"},
			{Kind: KindAttribute, Selector: ".artdeco-entity-lockup__subtitle"},
			{Kind: KindAttribute, Selector: "[class*='primary-subtitle']"},
			{Kind: KindPosition, Selector: "div.t-14.t-black.t-normal", Index: 0},
		},
		Location: []StrategySpec{
			{Kind: KindAttribute, Selector: ".entity-result__secondary-subtitle"},
			{Kind: KindAttribute, Selector: ".artdeco-entity-lockup__caption"},
			{Kind: KindAttribute, Selector: "[class*='secondary-subtitle']"},
			{Kind: KindPosition, Selector: "div.t-14.t-normal:not(.t-black)", Index: 0},
		},
		URL: []StrategySpec{
			{Kind: KindAttribute, Selector: ".entity-result__title-text a", Attr: "href", Contains: "/in/"},
			{Kind: KindAttribute, Selector: "a[href*='/in/']", Attr: "href"},
			{Kind: KindAttribute, Selector: "[data-entity-hovercard-id] a", Attr: "href", Contains: "/in/"},
		},
		Degree: []StrategySpec{
			{Kind: KindPattern, Selector: ".entity-result__badge-text span[aria-hidden='true']", Pattern: `(?i)(1st|2nd|3rd\+?|\d+º\+?)`},
			{Kind: KindPattern, Selector: "[class*='badge']", Pattern: `(?i)\b(1st|2nd|3rd\+?)\b|(\d+º\+?)`},
			{Kind: KindPattern, Selector: "", Pattern: `(?i)•\s*(1st|2nd|3rd\+?|\d+º\+?)`},
		},
		URN: []StrategySpec{
			{Kind: KindAttribute, Selector: "[data-chameleon-result-urn]", Attr: "data-chameleon-result-urn"},
			{Kind: KindAttribute, Selector: "[data-urn]", Attr: "data-urn"},
		},
		FallbackRoots: []string{"main", "[role='main']", "body"},
		ProfileLink:   "a[href*='/in/']",
		NoResultsMarkers: []string{
			".search-reusable-search-no-results",
			".search-reusables__no-results-message",
			"[data-test-search-no-results]",
			"section.artdeco-empty-state",
		},
		NoResultsText: []string{
			`(?i)no results found`,
			`(?i)nenhum resultado encontrado`,
			`(?i)try removing filters`,
		},
		ResultCount: []StrategySpec{
			{Kind: KindAttribute, Selector: ".search-results-container h2"},
			{Kind: KindAttribute, Selector: "h2.pb2.t-black--light.t-14"},
			{Kind: KindPattern, Selector: "main h2", Pattern: `(?i)(.*\d.*result.*)`},
		},
		Placeholders: []string{
			"LinkedIn Member",
			"Membro do LinkedIn",
			"Status is offline",
			"Status is online",
			"Status is reachable",
			"O status está off-line",
			"O status está on-line",
			"View profile",
			"Ver perfil",
		},
	}
}

// rejectPlaceholders builds a validator refusing empty values, known status strings and
// connection-degree captions.
func rejectPlaceholders(placeholders []string) Validator {
	lowered := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		lowered = append(lowered, strings.ToLower(p))
	}
	return func(v string) bool {
		v = strings.ToLower(NormalizeText(v))
		if v == "" || degreeCaption.MatchString(v) {
			return false
		}
		for _, p := range lowered {
			if v == p || strings.HasPrefix(v, p) {
				return false
			}
		}
		return true
	}
}

var degreeCaption = regexp.MustCompile(`(?i)^(?:•\s*)?(?:1st|2nd|3rd\+?|\d+º\+?)(?:\s+degree connection)?$|conexão de \d+º grau|grau$`)

func isProfileHref(v string) bool {
	return strings.Contains(v, "/in/")
}
