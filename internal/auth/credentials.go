// internal/auth/credentials.go
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/sift/api/schemas"
)

var (
	// ErrMissingToken means the credentials lack the authentication token cookie.
	ErrMissingToken = errors.New("auth: authentication token missing")
	// ErrNotAuthenticated means the platform did not accept the session.
	ErrNotAuthenticated = errors.New("auth: session not authenticated")
)

// Credentials is the set of cookies parsed from a raw Cookie header.
type Credentials struct {
	tokenKey string
	names    []string
	values   map[string]string
}

// ParseCredentials parses a semicolon delimited name=value list. Surrounding quotes on
// values are removed and a repeated name keeps its last value. The cookie named
// tokenKey must be present and non-empty.
func ParseCredentials(raw, tokenKey string) (*Credentials, error) {
	c := &Credentials{tokenKey: tokenKey, values: make(map[string]string)}
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if _, seen := c.values[name]; !seen {
			c.names = append(c.names, name)
		}
		c.values[name] = value
	}
	if c.values[tokenKey] == "" {
		return nil, fmt.Errorf("%w: cookie %q not found", ErrMissingToken, tokenKey)
	}
	return c, nil
}

// Token returns the value of the authentication token cookie.
func (c *Credentials) Token() string { return c.values[c.tokenKey] }

// Len returns the number of distinct cookies.
func (c *Credentials) Len() int { return len(c.names) }

// Get returns the value of the named cookie.
func (c *Credentials) Get(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Cookies renders the credentials as browser cookies scoped to domain, in input order.
func (c *Credentials) Cookies(domain string) []schemas.Cookie {
	cookies := make([]schemas.Cookie, 0, len(c.names))
	for _, name := range c.names {
		cookies = append(cookies, schemas.Cookie{
			Name:     name,
			Value:    c.values[name],
			Domain:   domain,
			Path:     "/",
			Secure:   true,
			HTTPOnly: name == c.tokenKey,
		})
	}
	return cookies
}
