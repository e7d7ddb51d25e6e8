package genapi

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/amp-labs/restyle/generation"
	"github.com/google/uuid"
)

// ErrOverloaded is the simulated model refusing work.
var ErrOverloaded = errors.New(generation.OverloadedMessage)

// Simulator stands in for the image model. Each generation takes a random
// time in [LatencyMin, LatencyMax] and then fails with ErrOverloaded with
// probability OverloadProbability. The result echoes the input image.
type Simulator struct {
	LatencyMin          time.Duration
	LatencyMax          time.Duration
	OverloadProbability float64

	// Rand returns numbers in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

func (s *Simulator) random() float64 {
	if s.Rand != nil {
		return s.Rand()
	}

	return rand.Float64() //nolint:gosec
}

func (s *Simulator) latency() time.Duration {
	spread := s.LatencyMax - s.LatencyMin
	if spread <= 0 {
		return max(s.LatencyMin, 0)
	}

	return s.LatencyMin + time.Duration(s.random()*float64(spread))
}

// Generate runs one simulated generation. It returns ctx's error as soon
// as ctx ends.
func (s *Simulator) Generate(ctx context.Context, req generation.Request) (*generation.Response, error) {
	timer := time.NewTimer(s.latency())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if s.random() < s.OverloadProbability {
		return nil, ErrOverloaded
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	return &generation.Response{
		ID:        id.String(),
		DataURL:   req.ImageDataURL,
		Prompt:    req.Prompt,
		Style:     req.Style,
		CreatedAt: time.Now().UTC(),
	}, nil
}
