// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext returns a context derived from ctx1 (the tab context carrying the CDP
// connection values) that is also done when ctx2 (the operational context) is done.
// When ctx2 carries the earlier deadline it is copied, so expiry surfaces as
// context.DeadlineExceeded rather than a plain cancellation.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	var (
		combined context.Context
		cancel   context.CancelFunc
	)
	d2, ok2 := ctx2.Deadline()
	d1, ok1 := ctx1.Deadline()
	if ok2 && (!ok1 || d2.Before(d1)) {
		combined, cancel = context.WithDeadline(ctx1, d2)
	} else {
		combined, cancel = context.WithCancel(ctx1)
	}

	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// valueOnlyContext keeps the values of its parent and drops its deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but is not canceled when ctx is.
// Cleanup that must outlive the operation, such as closing a tab, runs on it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
