// Package scheduler runs the bridge loop at an adaptive rate.
package scheduler

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// State is the scheduler state.
type State int32

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Source yields at most one packet per tick. LastSeen is the arrival time of
// the last datagram, valid or not, and keeps the link alive on its own.
type Source interface {
	Poll() (*core.Packet, bool)
	LastSeen() time.Time
}

// Pipeline is the per-tick work. Process runs for a tick that received a
// packet, Decay for an active tick without one.
type Pipeline interface {
	Process(p *core.Packet, now time.Time, dt time.Duration)
	Decay(now time.Time, dt time.Duration)
}

// Hooks are called on state transitions, from the loop goroutine.
type Hooks struct {
	OnActive func()
	OnIdle   func()
}

// Scheduler drives a Pipeline from a Source. Run must be called from one goroutine;
// State and TickRate may be read from anywhere.
type Scheduler struct {
	cfg      config.SchedulerConfig
	source   Source
	pipeline Pipeline
	hooks    Hooks
	log      *slog.Logger
	now      func() time.Time

	state      atomic.Int32
	lastPacket time.Time
	lastTick   time.Time

	ticks     int
	rateStart time.Time
	rate      atomic.Uint64 // float64 bits
}

// New returns a scheduler in the Idle state.
func New(cfg config.SchedulerConfig, source Source, pipeline Pipeline, hooks Hooks, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		source:   source,
		pipeline: pipeline,
		hooks:    hooks,
		log:      log,
		now:      time.Now,
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// TickRate returns the measured ticks per second over the last second.
func (s *Scheduler) TickRate() float64 {
	return math.Float64frombits(s.rate.Load())
}

// Interval returns the wait before the next tick.
func (s *Scheduler) Interval() time.Duration {
	if s.State() == Active {
		return s.cfg.ActiveInterval
	}
	return s.cfg.IdleInterval
}

// Run loops until ctx is done. Cancellation is observed between ticks only.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTimer(s.Interval())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		s.Step(s.now())
		t.Reset(s.Interval())
	}
}

// Step runs one tick at the given time.
func (s *Scheduler) Step(now time.Time) {
	dt := s.cfg.ActiveInterval
	if !s.lastTick.IsZero() {
		dt = now.Sub(s.lastTick)
	}
	s.lastTick = now
	s.measure(now)

	p, ok := s.source.Poll()
	switch {
	case ok:
		s.lastPacket = now
		if s.State() == Idle {
			s.transition(Active)
			// the first active tick must not integrate the idle gap
			dt = s.cfg.ActiveInterval
		}
		s.pipeline.Process(p, now, dt)

	case s.State() == Active:
		if now.Sub(s.lastAlive()) > s.cfg.LivenessTimeout {
			s.transition(Idle)
			return
		}
		s.pipeline.Decay(now, dt)
	}
}

// lastAlive is the later of the last valid packet and the last datagram of any kind.
func (s *Scheduler) lastAlive() time.Time {
	if seen := s.source.LastSeen(); seen.After(s.lastPacket) {
		return seen
	}
	return s.lastPacket
}

func (s *Scheduler) transition(to State) {
	s.state.Store(int32(to))
	s.log.Info("Scheduler state changed", "state", to.String())

	switch to {
	case Active:
		if s.hooks.OnActive != nil {
			s.hooks.OnActive()
		}
	case Idle:
		if s.hooks.OnIdle != nil {
			s.hooks.OnIdle()
		}
	}
}

func (s *Scheduler) measure(now time.Time) {
	if s.rateStart.IsZero() {
		s.rateStart = now
	}
	s.ticks++
	if elapsed := now.Sub(s.rateStart); elapsed >= time.Second {
		s.rate.Store(math.Float64bits(float64(s.ticks) / elapsed.Seconds()))
		s.ticks = 0
		s.rateStart = now
	}
}
