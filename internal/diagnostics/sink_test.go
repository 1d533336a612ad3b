// internal/diagnostics/sink_test.go
package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/config"
)

func TestNewFileSink(t *testing.T) {
	sink, err := NewFileSink(config.DiagnosticsConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, sink)

	_, err = NewFileSink(config.DiagnosticsConfig{Enabled: true}, zaptest.NewLogger(t))
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "diag")
	sink, err = NewFileSink(config.DiagnosticsConfig{Enabled: true, Dir: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, dir, sink.Dir())
}

func TestFileSink_Capture(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(config.DiagnosticsConfig{Enabled: true, Dir: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)

	taken := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	snap := &schemas.Snapshot{
		URL:        "https://www.linkedin.com/checkpoint/challenge",
		HTML:       "<html><body>challenge</body></html>",
		Screenshot: []byte{0xff, 0xd8, 0xff},
		TakenAt:    taken,
	}
	require.NoError(t, sink.Capture(context.Background(), "blocked", snap))

	stem := "20260304T050607_001_blocked"
	html, err := os.ReadFile(filepath.Join(dir, stem+".html"))
	require.NoError(t, err)
	assert.Equal(t, snap.HTML, string(html))

	shot, err := os.ReadFile(filepath.Join(dir, stem+".jpg"))
	require.NoError(t, err)
	assert.Equal(t, snap.Screenshot, shot)

	raw, err := os.ReadFile(filepath.Join(dir, stem+".json"))
	require.NoError(t, err)
	var meta metadata
	require.NoError(t, jsoniter.Unmarshal(raw, &meta))
	assert.Equal(t, "blocked", meta.Reason)
	assert.Equal(t, snap.URL, meta.URL)
	assert.Equal(t, stem+".html", meta.HTMLFile)
	assert.Equal(t, stem+".jpg", meta.Screenshot)
	assert.True(t, meta.TakenAt.Equal(taken))
}

func TestFileSink_CaptureEdgeCases(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(config.DiagnosticsConfig{Enabled: true, Dir: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)
	sink.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	assert.Error(t, sink.Capture(context.Background(), "x", nil))

	// Metadata only, with an unsafe reason.
	require.NoError(t, sink.Capture(context.Background(), "../not authenticated", &schemas.Snapshot{URL: "about:blank"}))
	assert.FileExists(t, filepath.Join(dir, "20260101T000000_001_not_authenticated.json"))
	assert.NoFileExists(t, filepath.Join(dir, "20260101T000000_001_not_authenticated.html"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Capture(ctx, "late", &schemas.Snapshot{}), context.Canceled)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "blocked", sanitize("blocked"))
	assert.Equal(t, "a_b", sanitize("a/b"))
	assert.Equal(t, "capture", sanitize(""))
	assert.Equal(t, "capture", sanitize("///"))
}
