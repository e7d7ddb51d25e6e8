package retry

import (
	"math"
	"time"
)

// Backoff computes the delay before the next attempt. The attempt parameter
// is 0-indexed: Delay(0) is the wait after the first failure.
type Backoff interface {
	Delay(attempt uint) time.Duration
}

// ExpBackoff grows delays geometrically: Base * Factor^attempt. A positive
// Max caps the delay; Max <= 0 leaves it uncapped. Delays never overflow,
// they saturate at the largest representable duration.
//
//	backoff := retry.ExpBackoff{Base: time.Second, Factor: 2}
//	// Delays: 1s, 2s, 4s, 8s, ...
type ExpBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

func (b ExpBackoff) Delay(attempt uint) time.Duration {
	f := float64(b.Base) * math.Pow(b.Factor, float64(attempt))

	var d time.Duration
	if math.IsInf(f, 0) || math.IsNaN(f) || f >= math.MaxInt64 {
		d = time.Duration(math.MaxInt64)
	} else {
		d = time.Duration(f)
	}

	if d < b.Base {
		d = b.Base
	}

	if b.Max > 0 && d > b.Max {
		return b.Max
	}

	return d
}

// ConstantBackoff waits the same duration between every attempt.
type ConstantBackoff time.Duration

func (c ConstantBackoff) Delay(uint) time.Duration {
	return time.Duration(c)
}
