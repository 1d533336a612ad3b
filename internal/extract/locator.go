// File: internal/extract/locator.go
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// LocatorStrategy is one concrete method of finding a field's value within a container.
type LocatorStrategy interface {
	// Resolve returns the first non-empty normalized value, or false when absent.
	Resolve(container *goquery.Selection) (string, bool)
	String() string
}

// selector is a pre-compiled CSS selector. An empty selector addresses the container itself.
type selector struct {
	raw string
	sel cascadia.Sel
}

func compileSelector(raw string) (selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return selector{}, nil
	}
	sel, err := cascadia.Parse(raw)
	if err != nil {
		return selector{}, fmt.Errorf("invalid selector %q: %w", raw, err)
	}
	return selector{raw: raw, sel: sel}, nil
}

// find returns the nodes under container that match, including container nodes
// that match themselves. Document order is preserved.
func (s selector) find(container *goquery.Selection) *goquery.Selection {
	if s.sel == nil {
		return container
	}
	var self, nodes []*html.Node
	for _, n := range container.Nodes {
		if s.sel.Match(n) {
			self = append(self, n)
		}
		nodes = append(nodes, cascadia.QueryAll(n, s.sel)...)
	}
	found := container.FindNodes(nodes...)
	if len(self) == 0 {
		return found
	}
	return container.FilterNodes(self...).AddSelection(found)
}

func (s selector) String() string {
	if s.raw == "" {
		return ":scope"
	}
	return s.raw
}

// valueOf reads attr from s, or its normalized text when attr is empty.
func valueOf(s *goquery.Selection, attr string) string {
	if attr == "" {
		return NormalizeText(s.Text())
	}
	v, _ := s.Attr(attr)
	return strings.TrimSpace(v)
}

// AttributeMatch returns the text or attribute of the first element matching a selector,
// optionally requiring the value to contain a substring.
type AttributeMatch struct {
	sel      selector
	Attr     string
	Contains string
}

// NewAttributeMatch compiles an AttributeMatch strategy.
func NewAttributeMatch(css, attr, contains string) (*AttributeMatch, error) {
	sel, err := compileSelector(css)
	if err != nil {
		return nil, err
	}
	return &AttributeMatch{sel: sel, Attr: attr, Contains: contains}, nil
}

func (a *AttributeMatch) Resolve(container *goquery.Selection) (string, bool) {
	var out string
	a.sel.find(container).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v := valueOf(s, a.Attr)
		if v == "" || (a.Contains != "" && !strings.Contains(v, a.Contains)) {
			return true
		}
		out = v
		return false
	})
	return out, out != ""
}

func (a *AttributeMatch) String() string {
	return fmt.Sprintf("attribute(%s@%s)", a.sel, a.Attr)
}

// StructuralPosition returns the value of the nth element matching a selector.
// A negative index counts from the end.
type StructuralPosition struct {
	sel   selector
	Index int
	Attr  string
}

// NewStructuralPosition compiles a StructuralPosition strategy.
func NewStructuralPosition(css string, index int, attr string) (*StructuralPosition, error) {
	sel, err := compileSelector(css)
	if err != nil {
		return nil, err
	}
	return &StructuralPosition{sel: sel, Index: index, Attr: attr}, nil
}

func (p *StructuralPosition) Resolve(container *goquery.Selection) (string, bool) {
	matches := p.sel.find(container)
	n := matches.Length()
	idx := p.Index
	if idx < 0 {
		idx = n + idx
	}
	if idx < 0 || idx >= n {
		return "", false
	}
	v := valueOf(matches.Eq(idx), p.Attr)
	return v, v != ""
}

func (p *StructuralPosition) String() string {
	return fmt.Sprintf("position(%s[%d])", p.sel, p.Index)
}

// TextPattern scans the text of matching elements with a regular expression and returns
// the first non-empty capture group, or the whole match when the pattern has no groups.
type TextPattern struct {
	sel     selector
	Pattern *regexp.Regexp
}

// NewTextPattern compiles a TextPattern strategy.
func NewTextPattern(css, pattern string) (*TextPattern, error) {
	sel, err := compileSelector(css)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &TextPattern{sel: sel, Pattern: re}, nil
}

func (t *TextPattern) Resolve(container *goquery.Selection) (string, bool) {
	var out string
	t.sel.find(container).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = firstGroup(t.Pattern.FindStringSubmatch(NormalizeText(s.Text())))
		return out == ""
	})
	return out, out != ""
}

func (t *TextPattern) String() string {
	return fmt.Sprintf("pattern(%s~/%s/)", t.sel, t.Pattern)
}

func firstGroup(m []string) string {
	if len(m) == 0 {
		return ""
	}
	for _, g := range m[1:] {
		if g = strings.TrimSpace(g); g != "" {
			return g
		}
	}
	return strings.TrimSpace(m[0])
}

// Validator reports whether a resolved value is semantically usable.
type Validator func(value string) bool

// Chain is the ordered list of strategies for one logical field.
type Chain struct {
	Field      string
	Strategies []LocatorStrategy
	Validate   Validator
}

// Resolve tries each strategy in order and returns the first valid value.
// It does not mutate the container, so repeated calls yield the same result.
func (c Chain) Resolve(container *goquery.Selection) (string, bool) {
	for _, s := range c.Strategies {
		v, ok := s.Resolve(container)
		if !ok {
			continue
		}
		if c.Validate != nil && !c.Validate(v) {
			continue
		}
		return v, true
	}
	return "", false
}

// StrategySpec is the declarative form of a LocatorStrategy.
type StrategySpec struct {
	Kind     string `mapstructure:"kind" yaml:"kind"`
	Selector string `mapstructure:"selector" yaml:"selector"`
	Attr     string `mapstructure:"attr" yaml:"attr"`
	Contains string `mapstructure:"contains" yaml:"contains"`
	Index    int    `mapstructure:"index" yaml:"index"`
	Pattern  string `mapstructure:"pattern" yaml:"pattern"`
}

// Strategy kinds accepted by StrategySpec.
const (
	KindAttribute = "attribute"
	KindPosition  = "position"
	KindPattern   = "pattern"
)

// Compile builds the strategy described by the spec.
func (s StrategySpec) Compile() (LocatorStrategy, error) {
	switch s.Kind {
	case KindAttribute, "":
		return NewAttributeMatch(s.Selector, s.Attr, s.Contains)
	case KindPosition:
		return NewStructuralPosition(s.Selector, s.Index, s.Attr)
	case KindPattern:
		return NewTextPattern(s.Selector, s.Pattern)
	default:
		return nil, fmt.Errorf("unknown locator kind %q", s.Kind)
	}
}

// NewChain compiles specs into a Chain, preserving their order.
func NewChain(field string, specs []StrategySpec, validate Validator) (Chain, error) {
	chain := Chain{Field: field, Validate: validate}
	for i, spec := range specs {
		s, err := spec.Compile()
		if err != nil {
			return Chain{}, fmt.Errorf("%s locator %d: %w", field, i, err)
		}
		chain.Strategies = append(chain.Strategies, s)
	}
	return chain, nil
}
