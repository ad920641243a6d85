// Package scheduler runs the fixed-step update loop
//
// A frame is one PreUpdate, zero or more FixedUpdate calls paced by an accumulator,
// then one PostUpdate with the leftover fraction of a step
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrReentrant reports a Frame call made while another frame is running
var ErrReentrant = errors.New("frame already running")

const (
	DefaultStep             = time.Second / 60
	DefaultMaxStepsPerFrame = 5
)

// Phases is the set of callbacks driven once per frame
type Phases interface {
	PreUpdate(dt time.Duration)
	FixedUpdate(step time.Duration)
	PostUpdate(alpha float64)
}

// Config holds loop timing
type Config struct {
	// Step is the fixed simulation step
	Step time.Duration
	// MaxStepsPerFrame caps catch-up; time beyond the cap is dropped
	MaxStepsPerFrame int
	// FrameInterval paces Run, defaults to Step
	FrameInterval time.Duration
}

func DefaultConfig() Config {
	return Config{Step: DefaultStep, MaxStepsPerFrame: DefaultMaxStepsPerFrame}
}

// Loop owns the accumulator; Frame must be called from one goroutine at a time
type Loop struct {
	cfg    Config
	phases Phases
	logger *zap.Logger

	acc     time.Duration
	running atomic.Bool

	frames  atomic.Uint64
	steps   atomic.Uint64
	dropped atomic.Int64
}

func New(cfg Config, phases Phases, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.MaxStepsPerFrame <= 0 {
		cfg.MaxStepsPerFrame = DefaultMaxStepsPerFrame
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = cfg.Step
	}
	return &Loop{cfg: cfg, phases: phases, logger: logger.With(zap.String("component", "scheduler"))}
}

// Frame advances by elapsed wall time and returns the number of fixed steps run
func (l *Loop) Frame(elapsed time.Duration) (int, error) {
	if !l.running.CompareAndSwap(false, true) {
		return 0, ErrReentrant
	}
	defer l.running.Store(false)

	if elapsed < 0 {
		elapsed = 0
	}
	l.phases.PreUpdate(elapsed)

	l.acc += elapsed
	n := int(l.acc / l.cfg.Step)
	if n > l.cfg.MaxStepsPerFrame {
		// Too far behind, resync instead of spiraling
		drop := time.Duration(n-l.cfg.MaxStepsPerFrame) * l.cfg.Step
		l.acc -= drop
		l.dropped.Add(int64(drop))
		l.logger.Debug("frame behind, dropping time", zap.Duration("dropped", drop))
		n = l.cfg.MaxStepsPerFrame
	}
	for range n {
		l.phases.FixedUpdate(l.cfg.Step)
		l.acc -= l.cfg.Step
		l.steps.Add(1)
	}

	l.phases.PostUpdate(float64(l.acc) / float64(l.cfg.Step))
	l.frames.Add(1)
	return n, nil
}

// Run drives frames from a ticker until ctx is done
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.FrameInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := l.Frame(now.Sub(last)); err != nil {
				return err
			}
			last = now
		}
	}
}

func (l *Loop) Step() time.Duration { return l.cfg.Step }

func (l *Loop) Frames() uint64 { return l.frames.Load() }

func (l *Loop) Steps() uint64 { return l.steps.Load() }

// Dropped returns total wall time discarded by the catch-up cap
func (l *Loop) Dropped() time.Duration { return time.Duration(l.dropped.Load()) }
