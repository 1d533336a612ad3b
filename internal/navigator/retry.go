// internal/navigator/retry.go
package navigator

import (
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy bounds how often a transient page failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the pause before the given retry; attempt starts at 1.
	Backoff func(attempt int) time.Duration
}

// RandomBackoff returns a policy whose pauses are drawn uniformly from [min, max].
// A nil rng is replaced by a time-seeded source.
func RandomBackoff(maxAttempts int, min, max time.Duration, rng *rand.Rand) RetryPolicy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var mu sync.Mutex
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff: func(int) time.Duration {
			if max <= min {
				return min
			}
			mu.Lock()
			defer mu.Unlock()
			return min + time.Duration(rng.Int63n(int64(max-min)+1))
		},
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}
