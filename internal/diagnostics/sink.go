// internal/diagnostics/sink.go
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/config"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// FileSink writes diagnostic snapshots to a directory: the page HTML, a JPEG
// screenshot and a small JSON index entry per capture.
type FileSink struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq int
}

var _ schemas.SnapshotSink = (*FileSink)(nil)

// metadata is the JSON sidecar written next to every capture.
type metadata struct {
	Reason     string    `json:"reason"`
	URL        string    `json:"url"`
	TakenAt    time.Time `json:"takenAt"`
	HTMLFile   string    `json:"htmlFile,omitempty"`
	Screenshot string    `json:"screenshotFile,omitempty"`
}

// NewFileSink creates the capture directory. It returns nil, nil when diagnostics are
// disabled; callers must not store that nil in a schemas.SnapshotSink.
func NewFileSink(cfg config.DiagnosticsConfig, logger *zap.Logger) (*FileSink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("diagnostics.dir is required when diagnostics are enabled")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create diagnostics dir: %w", err)
	}
	return &FileSink{dir: cfg.Dir, logger: logger.Named("diagnostics"), now: time.Now}, nil
}

// Dir returns the capture directory.
func (s *FileSink) Dir() string { return s.dir }

// Capture stores snap under a name derived from the time and reason.
func (s *FileSink) Capture(ctx context.Context, reason string, snap *schemas.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("diagnostics: nil snapshot")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	taken := snap.TakenAt
	if taken.IsZero() {
		taken = s.now()
	}
	stem := fmt.Sprintf("%s_%03d_%s", taken.UTC().Format("20060102T150405"), seq, sanitize(reason))
	meta := metadata{Reason: reason, URL: snap.URL, TakenAt: taken}

	if snap.HTML != "" {
		meta.HTMLFile = stem + ".html"
		if err := s.write(meta.HTMLFile, []byte(snap.HTML)); err != nil {
			return err
		}
	}
	if len(snap.Screenshot) > 0 {
		meta.Screenshot = stem + ".jpg"
		if err := s.write(meta.Screenshot, snap.Screenshot); err != nil {
			return err
		}
	}

	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("diagnostics: encode metadata: %w", err)
	}
	if err := s.write(stem+".json", data); err != nil {
		return err
	}

	s.logger.Info("Saved diagnostic snapshot.", zap.String("reason", reason), zap.String("file", filepath.Join(s.dir, stem+".json")))
	return nil
}

func (s *FileSink) write(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o640); err != nil {
		return fmt.Errorf("diagnostics: write %s: %w", name, err)
	}
	return nil
}

func sanitize(reason string) string {
	r := strings.Trim(unsafeChars.ReplaceAllString(reason, "_"), "_")
	if r == "" {
		return "capture"
	}
	return r
}
