// internal/browser/humanoid/scrolling.go
package humanoid

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// scrollStepJS scrolls by an offset and reports the resulting scroll metrics.
//
//go:embed scroll.js
var scrollStepJS string

type scrollMetrics struct {
	Offset   int `json:"offset"`
	Viewport int `json:"viewport"`
	Height   int `json:"height"`
}

// atBottom reports whether the viewport has reached the measured scrollable height.
func (m scrollMetrics) atBottom() bool {
	return m.Offset+m.Viewport >= m.Height-1
}

// Settle scrolls the page down in randomized steps so lazily rendered results load.
// It stops at the bottom of the document or when the step budget is spent. Failures
// are logged and end the settle early; Settle never reports an error.
func (h *Humanoid) Settle(ctx context.Context) {
	if !h.cfg.Enabled {
		return
	}

	metrics, err := h.scrollBy(ctx, 0)
	if err != nil {
		h.logger.Warn("Humanoid: could not measure page before scrolling", zap.Error(err))
		return
	}

	steps := 0
	for ; steps < h.cfg.MaxSteps; steps++ {
		if ctx.Err() != nil || metrics.atBottom() {
			break
		}

		if metrics, err = h.scrollBy(ctx, h.intn(h.cfg.StepMin, h.cfg.StepMax)); err != nil {
			h.logger.Warn("Humanoid: scroll step failed", zap.Error(err), zap.Int("step", steps))
			return
		}
		if h.executor.Sleep(ctx, h.duration(h.cfg.PauseMin, h.cfg.PauseMax)) != nil {
			return
		}

		// Occasional upward correction, as when re-reading an entry.
		if !metrics.atBottom() && h.chance(h.cfg.ReverseProbability) {
			if metrics, err = h.scrollBy(ctx, -h.intn(h.cfg.ReverseMin, h.cfg.ReverseMax)); err != nil {
				h.logger.Warn("Humanoid: reverse scroll failed", zap.Error(err), zap.Int("step", steps))
				return
			}
			if h.executor.Sleep(ctx, h.duration(h.cfg.PauseMin, h.cfg.PauseMax)) != nil {
				return
			}
		}

		if h.chance(h.cfg.LongPauseProbability) {
			if h.executor.Sleep(ctx, h.duration(h.cfg.LongPauseMin, h.cfg.LongPauseMax)) != nil {
				return
			}
		}
	}

	if steps >= h.cfg.MaxSteps && !metrics.atBottom() {
		h.logger.Debug("Humanoid: scroll step budget exhausted before the end of the page",
			zap.Int("offset", metrics.Offset), zap.Int("height", metrics.Height))
	}
}

func (h *Humanoid) scrollBy(ctx context.Context, deltaY int) (scrollMetrics, error) {
	raw, err := h.executor.ExecuteScript(ctx, scrollStepJS, []interface{}{deltaY})
	if err != nil {
		return scrollMetrics{}, fmt.Errorf("javascript execution error during scroll: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "undefined" {
		return scrollMetrics{}, fmt.Errorf("javascript execution returned null or empty result during scroll")
	}
	var m scrollMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return scrollMetrics{}, fmt.Errorf("failed to unmarshal scroll result JSON: %w", err)
	}
	return m, nil
}
