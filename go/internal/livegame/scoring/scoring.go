// Package scoring turns answer timing into points and orders leaderboards.
package scoring

import (
	"errors"
	"math"
	"time"
)

// DefaultBasePoints is awarded for a correct answer submitted at round start.
const DefaultBasePoints = 1000

var (
	ErrInvalidDuration   = errors.New("round duration must be positive")
	ErrInvalidBasePoints = errors.New("base points must not be negative")
)

// Engine computes points for a single submission. It holds no state beyond
// its base points and is safe for concurrent use.
type Engine struct {
	basePoints int
}

// NewEngine returns an Engine awarding basePoints for an instant correct answer.
func NewEngine(basePoints int) (*Engine, error) {
	if basePoints < 0 {
		return nil, ErrInvalidBasePoints
	}
	return &Engine{basePoints: basePoints}, nil
}

// Points returns basePoints × correct × remainingFraction, rounded to the
// nearest integer with halves away from zero. remainingFraction is
// (duration - elapsed) / duration clamped to [0, 1], so a negative elapsed
// scores as an instant answer and a late one scores zero.
func (e *Engine) Points(correct bool, elapsed, duration time.Duration) (int, error) {
	if duration <= 0 {
		return 0, ErrInvalidDuration
	}
	if !correct {
		return 0, nil
	}
	fraction := RemainingFraction(elapsed, duration)
	points := math.Round(float64(e.basePoints) * fraction)
	if math.IsNaN(points) || points < 0 {
		return 0, nil
	}
	return int(points), nil
}

// RemainingFraction is the clamped share of the round left at elapsed.
func RemainingFraction(elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	f := float64(duration-elapsed) / float64(duration)
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
