package processing

import (
	"context"
	"math/rand"
	"time"

	"github.com/doctools/backend/internal/models"
)

const (
	// DefaultTickInterval matches the cadence of the interactive progress bar.
	DefaultTickInterval = 200 * time.Millisecond
	// DefaultMaxStep is the largest progress increment a single tick may add.
	DefaultMaxStep = 15.0
)

// Simulator is a stand-in Engine: it performs no document work and advances
// progress by a random positive increment on every tick until it reaches 100.
type Simulator struct {
	interval time.Duration
	maxStep  float64
	random   func() float64
	now      func() time.Time
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithRandom replaces the uniform [0,1) source used to size increments.
func WithRandom(fn func() float64) SimulatorOption {
	return func(s *Simulator) { s.random = fn }
}

// WithClock replaces the clock used to stamp outputs.
func WithClock(now func() time.Time) SimulatorOption {
	return func(s *Simulator) { s.now = now }
}

// NewSimulator creates a simulator ticking every interval with increments in (0, maxStep].
// Non-positive arguments fall back to the defaults.
func NewSimulator(interval time.Duration, maxStep float64, opts ...SimulatorOption) *Simulator {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	s := &Simulator{
		interval: interval,
		maxStep:  maxStep,
		random:   rand.Float64,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Step returns the next increment. It is always in (0, maxStep].
func (s *Simulator) Step() float64 {
	return s.maxStep * (1 - s.random())
}

// Run ticks until accumulated progress reaches 100 or ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, job Job, progress ProgressFunc) (*models.Output, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var acc float64
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			acc += s.Step()
			if acc >= 100 {
				progress(100)
				return NewOutput(job, s.now()), nil
			}
			progress(acc)
		}
	}
}
