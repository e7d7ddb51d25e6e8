package retry

import (
	"math/rand/v2"
	"time"
)

// Jitter is the fraction of each delay that is randomized:
//   - 0 or negative: no randomness
//   - 0.5: half fixed, half random
//   - 1.0: uniformly random between 0 and the delay
type Jitter float64

const (
	// EqualJitter computes delay/2 + random(0, delay/2).
	EqualJitter Jitter = 0.5
	// FullJitter computes random(0, delay).
	FullJitter Jitter = 1.0
	// WithoutJitter uses the exact computed delay.
	WithoutJitter Jitter = -1.0
)

func (j Jitter) apply(d time.Duration) time.Duration {
	if j <= 0.0 || d <= 0 {
		return d
	}

	if j > 1.0 {
		j = 1.0
	}

	//nolint:gosec // G404: jitter does not need a cryptographic source
	r := rand.Float64() * float64(d)

	return time.Duration(float64(j)*r + float64(1.0-j)*float64(d))
}
