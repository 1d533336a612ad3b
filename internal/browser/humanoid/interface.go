// internal/browser/humanoid/interface.go
package humanoid

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/sift/api/schemas"
)

// Executor defines the low-level interface required by the Humanoid controller.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	// ExecuteScript invokes script, a JavaScript function expression, with args.
	ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
}

// contextExecutor adapts a BrowsingContext to the Executor interface.
type contextExecutor struct {
	browser schemas.BrowsingContext
}

// NewExecutor returns an Executor backed by the given browsing context.
func NewExecutor(browser schemas.BrowsingContext) Executor {
	return &contextExecutor{browser: browser}
}

// Sleep blocks for d or until ctx is done.
func (e *contextExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *contextExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	call, err := buildCall(script, args)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := e.browser.Evaluate(ctx, call, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// buildCall renders "(script)(arg0, arg1, ...)" with JSON-encoded arguments.
func buildCall(script string, args []interface{}) (string, error) {
	encoded := make([]string, 0, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encoding script argument %d: %w", i, err)
		}
		encoded = append(encoded, string(b))
	}
	return fmt.Sprintf("(%s)(%s)", strings.TrimSpace(script), strings.Join(encoded, ", ")), nil
}
