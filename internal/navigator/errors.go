// internal/navigator/errors.go
package navigator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSearch is returned for a missing or malformed search request.
	ErrInvalidSearch = errors.New("invalid search")
	// ErrExpired means the platform redirected to a login or checkpoint page.
	ErrExpired = errors.New("session expired")
	// ErrBlocked means a captcha, security check or rate limit page was served.
	ErrBlocked = errors.New("blocked by platform")
	// ErrRetriesExhausted means every attempt ended in a transient failure.
	ErrRetriesExhausted = errors.New("navigation retries exhausted")
)

// NavigationError describes why a page could not be loaded.
type NavigationError struct {
	Outcome  Outcome
	Page     int
	URL      string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("page %d (%s) %s after %d attempt(s): %v", e.Page, e.URL, e.Outcome, e.Attempts, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

func sentinelFor(o Outcome) error {
	switch o {
	case OutcomeExpired:
		return ErrExpired
	case OutcomeBlocked:
		return ErrBlocked
	default:
		return ErrRetriesExhausted
	}
}
