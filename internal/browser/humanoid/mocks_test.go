// FILE: ./internal/browser/humanoid/mocks_test.go
package humanoid

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"
)

// mockExecutor implements Executor over a simulated scrollable page.
type mockExecutor struct {
	t  *testing.T
	mu sync.Mutex

	offset, viewport, height int
	// growBy extends the page each time the bottom is reached, growCount times.
	growBy, growCount int

	deltas         []int
	sleepDurations []time.Duration
	scriptCalls    int

	// If set, these replace the default behavior. The override can call the
	// corresponding Default* method if the default logic is still required.
	MockExecuteScript func(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
	MockSleep         func(ctx context.Context, d time.Duration) error
}

func newMockExecutor(t *testing.T, viewport, height int) *mockExecutor {
	return &mockExecutor{t: t, viewport: viewport, height: height}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if m.MockSleep != nil {
		return m.MockSleep(ctx, d)
	}
	return m.DefaultSleep(ctx, d)
}

// DefaultSleep records the duration without blocking.
func (m *mockExecutor) DefaultSleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleepDurations = append(m.sleepDurations, d)
	return nil
}

func (m *mockExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if m.MockExecuteScript != nil {
		return m.MockExecuteScript(ctx, script, args)
	}
	return m.DefaultExecuteScript(ctx, script, args)
}

// DefaultExecuteScript applies the requested delta to the simulated page.
func (m *mockExecutor) DefaultExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scriptCalls++

	delta := args[0].(int)
	if delta != 0 {
		m.deltas = append(m.deltas, delta)
	}
	m.offset += delta
	if max := m.height - m.viewport; m.offset > max {
		m.offset = max
	}
	if m.offset < 0 {
		m.offset = 0
	}
	if m.offset+m.viewport >= m.height && m.growCount > 0 {
		// New results were lazily appended below the fold.
		m.height += m.growBy
		m.growCount--
	}

	return json.Marshal(scrollMetrics{Offset: m.offset, Viewport: m.viewport, Height: m.height})
}

func (m *mockExecutor) downSteps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.deltas {
		if d > 0 {
			n++
		}
	}
	return n
}

func (m *mockExecutor) upSteps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.deltas {
		if d < 0 {
			n++
		}
	}
	return n
}

var callArgs = regexp.MustCompile(`\)\((-?\d+)\)$`)

// parseDelta extracts the integer argument from a rendered "(fn)(n)" call.
func parseDelta(t *testing.T, call string) int {
	t.Helper()
	m := callArgs.FindStringSubmatch(call)
	if m == nil {
		t.Fatalf("unexpected call shape: %q", call)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		t.Fatalf("bad delta in call %q: %v", call, err)
	}
	return n
}
