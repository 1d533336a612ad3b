// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/sift/internal/config"
	"go.uber.org/zap"
)

// Humanoid drives human-like page interaction against a single browsing context.
type Humanoid struct {
	// mu protects rng.
	mu       sync.Mutex
	cfg      config.ScrollConfig
	logger   *zap.Logger
	executor Executor
	rng      *rand.Rand
}

// New creates a Humanoid. A nil rng is replaced by a time-seeded source.
func New(cfg config.ScrollConfig, logger *zap.Logger, executor Executor, rng *rand.Rand) *Humanoid {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Humanoid{
		cfg:      cfg,
		logger:   logger.Named("humanoid"),
		executor: executor,
		rng:      rng,
	}
}

// NewTestHumanoid creates a Humanoid with a deterministic rng and fast timings.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	cfg := config.ScrollConfig{
		Enabled:              true,
		MaxSteps:             10,
		StepMin:              300,
		StepMax:              500,
		PauseMin:             time.Millisecond,
		PauseMax:             2 * time.Millisecond,
		ReverseProbability:   0.2,
		ReverseMin:           20,
		ReverseMax:           40,
		LongPauseProbability: 0.1,
		LongPauseMin:         5 * time.Millisecond,
		LongPauseMax:         6 * time.Millisecond,
	}
	return New(cfg, zap.NewNop(), executor, rand.New(rand.NewSource(seed)))
}

// intn returns a uniform value in [min, max].
func (h *Humanoid) intn(min, max int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if max <= min {
		return min
	}
	return min + h.rng.Intn(max-min+1)
}

func (h *Humanoid) duration(min, max time.Duration) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if max <= min {
		return min
	}
	return min + time.Duration(h.rng.Int63n(int64(max-min)+1))
}

func (h *Humanoid) chance(p float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64() < p
}
