// internal/auth/signals.go
package auth

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Signals are the selectors that tell a signed-in page from a signed-out one.
type Signals struct {
	// SessionOnly nodes render only for a signed-in member.
	SessionOnly []string
	// LoginForm nodes render only on sign-in and checkpoint pages.
	LoginForm []string
	// IdentityName and IdentityLink locate the member's own name and profile link.
	IdentityName []IdentityField
	IdentityLink []string
}

// IdentityField is a selector and the attribute holding the value; empty means text.
type IdentityField struct {
	Selector string
	Attr     string
}

// DefaultSignals returns the signals for the current platform markup.
func DefaultSignals() Signals {
	return Signals{
		SessionOnly: []string{
			"#global-nav",
			"nav.global-nav",
			".global-nav__me",
			"img.global-nav__me-photo",
			".feed-identity-module",
			"input[placeholder*='Search']",
			"input[placeholder*='Pesquisar']",
		},
		LoginForm: []string{
			"#username",
			"input[name='session_password']",
			"form.login__form",
			"button[data-litms-control-urn='login-submit']",
			"input[autocomplete='one-time-code']",
		},
		IdentityName: []IdentityField{
			{Selector: ".feed-identity-module__actor-meta a .t-16"},
			{Selector: ".feed-identity-module__actor-meta a"},
			{Selector: "img.global-nav__me-photo", Attr: "alt"},
		},
		IdentityLink: []string{
			".feed-identity-module__actor-meta a[href*='/in/']",
			".feed-identity-module a[href*='/in/']",
			"a.global-nav__me-link[href*='/in/']",
		},
	}
}

type compiledSignals struct {
	sessionOnly  []cascadia.Sel
	loginForm    []cascadia.Sel
	identityName []compiledField
	identityLink []cascadia.Sel
}

type compiledField struct {
	sel  cascadia.Sel
	attr string
}

func compileList(raw []string) ([]cascadia.Sel, error) {
	out := make([]cascadia.Sel, 0, len(raw))
	for _, r := range raw {
		sel, err := cascadia.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("invalid signal selector %q: %w", r, err)
		}
		out = append(out, sel)
	}
	return out, nil
}

func (s Signals) compile() (*compiledSignals, error) {
	var (
		c   compiledSignals
		err error
	)
	if c.sessionOnly, err = compileList(s.SessionOnly); err != nil {
		return nil, err
	}
	if c.loginForm, err = compileList(s.LoginForm); err != nil {
		return nil, err
	}
	if c.identityLink, err = compileList(s.IdentityLink); err != nil {
		return nil, err
	}
	for _, f := range s.IdentityName {
		sel, err := cascadia.Parse(f.Selector)
		if err != nil {
			return nil, fmt.Errorf("invalid signal selector %q: %w", f.Selector, err)
		}
		c.identityName = append(c.identityName, compiledField{sel: sel, attr: f.Attr})
	}
	return &c, nil
}

func anyMatch(doc *goquery.Document, sels []cascadia.Sel) bool {
	for _, sel := range sels {
		if cascadia.Query(doc.Get(0), sel) != nil {
			return true
		}
	}
	return false
}

// first returns the first node under doc matching sel.
func first(doc *goquery.Document, sel cascadia.Sel) *goquery.Selection {
	n := cascadia.Query(doc.Get(0), sel)
	if n == nil {
		return nil
	}
	return doc.FindNodes(n)
}
