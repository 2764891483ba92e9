// Package effects synthesizes motor intensities from tracker events.
package effects

import (
	"math"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/pkg/core"
)

type continuousEffect struct {
	effect core.HapticEffect
	missed int
}

// Engine owns the set of active haptic effects. It is not safe for concurrent use.
type Engine struct {
	cfg   config.EffectsConfig
	clock time.Duration

	oneShots   map[core.EffectKind]*core.HapticEffect
	continuous map[core.EffectKind]*continuousEffect
}

// New returns an engine with no active effects.
func New(cfg config.EffectsConfig) *Engine {
	e := &Engine{cfg: cfg}
	e.Reset()
	return e
}

// Reset drops every active effect.
func (e *Engine) Reset() {
	e.clock = 0
	e.oneShots = make(map[core.EffectKind]*core.HapticEffect)
	e.continuous = make(map[core.EffectKind]*continuousEffect)
}

// Tick advances the engine by dt, applies this tick's events and continuous
// signals and returns the mixed motor output.
func (e *Engine) Tick(events []core.Event, cont core.ContinuousSignals, dt time.Duration) core.MotorOutputState {
	e.clock += dt

	seen := make(map[core.EffectKind]float64)
	for _, ev := range events {
		e.apply(ev, dt, seen)
	}
	e.applySignals(cont, seen)

	e.advanceOneShots()
	e.refreshContinuous(seen)

	level := lo.Clamp(e.sum(), 0, 1)
	return core.MotorOutputState{Throttle: level, Joystick: level}
}

// apply triggers one-shots and records continuous intensities for this tick.
func (e *Engine) apply(ev core.Event, dt time.Duration, seen map[core.EffectKind]float64) {
	switch ev := ev.(type) {
	case core.AmmoDecreased:
		e.trigger(core.EffectGunFire, e.cfg.Gun.Envelope, e.cfg.Gun.Peak, dt)

	case core.StationCountDecreased:
		peak := e.cfg.Release.UnknownPeak
		if ev.UnitWeight > 0 {
			peak = scaled(e.cfg.Release.ScaledPulseConfig, ev.UnitWeight)
		}
		e.trigger(core.EffectWeaponRelease, e.cfg.Release.Envelope, peak, dt)

	case core.GearLocked:
		e.trigger(core.EffectGearClunk, e.cfg.Clunk.Envelope, e.cfg.Clunk.Peak, dt)

	case core.TouchdownImpact:
		e.trigger(core.EffectLandingImpact, e.cfg.Impact.Envelope, scaled(e.cfg.Impact, ev.CompressionRate), dt)

	case core.GearTransit:
		seen[core.EffectGearTransit] = lo.Clamp(e.cfg.TransitLevel, 0, 1)

	case core.GroundWobble:
		seen[core.EffectGroundWobble] = WobbleIntensity(e.cfg.Wobble, WobbleMagnitude(ev))

	case core.AoaExceeded:
		if _, ok := seen[core.EffectAoaBuffet]; !ok {
			seen[core.EffectAoaBuffet] = AoaIntensity(e.cfg.Aoa, ev.AoaDegrees)
		}
	}
}

// applySignals lets the forwarded AOA drive the buffet even without an event.
func (e *Engine) applySignals(cont core.ContinuousSignals, seen map[core.EffectKind]float64) {
	if !cont.HasFlight {
		return
	}
	if e.cfg.Aoa.SuppressOnGround && cont.HasWow && cont.WeightOnWheels {
		seen[core.EffectAoaBuffet] = 0
		return
	}
	seen[core.EffectAoaBuffet] = AoaIntensity(e.cfg.Aoa, cont.AoaDegrees)
}

// trigger starts or restarts a one-shot. The new effect is aged by min(dt, attack)
// once advanced so it is felt on the tick it was triggered.
func (e *Engine) trigger(kind core.EffectKind, env core.Envelope, peak float64, dt time.Duration) {
	e.oneShots[kind] = &core.HapticEffect{
		Kind:     kind,
		Started:  e.clock - min(dt, env.Attack),
		Envelope: env,
		Peak:     lo.Clamp(peak, 0, 1),
	}
}

func (e *Engine) advanceOneShots() {
	for kind, fx := range e.oneShots {
		age := e.clock - fx.Started
		if age >= fx.Envelope.Duration() {
			delete(e.oneShots, kind)
			continue
		}
		fx.Intensity = fx.Peak * fx.Envelope.Level(age)
	}
}

// refreshContinuous updates, keeps or removes each continuous effect. A
// condition that is missing or no longer holds is bridged for
// cfg.ContinuousGrace ticks at the last intensity.
func (e *Engine) refreshContinuous(seen map[core.EffectKind]float64) {
	for _, kind := range []core.EffectKind{core.EffectGroundWobble, core.EffectGearTransit, core.EffectAoaBuffet} {
		if intensity := seen[kind]; intensity > 0 {
			fx, ok := e.continuous[kind]
			if !ok {
				fx = &continuousEffect{effect: core.HapticEffect{Kind: kind, Started: e.clock, Continuous: true, Peak: 1}}
				e.continuous[kind] = fx
			}
			fx.effect.Intensity = intensity
			fx.missed = 0
			continue
		}

		fx, ok := e.continuous[kind]
		if !ok {
			continue
		}
		fx.missed++
		if fx.missed > e.cfg.ContinuousGrace {
			delete(e.continuous, kind)
		}
	}
}

func (e *Engine) sum() float64 {
	var total float64
	for _, fx := range e.oneShots {
		total += fx.Intensity
	}
	for _, fx := range e.continuous {
		total += fx.effect.Intensity
	}
	return total
}

// Active returns a snapshot of the active effects ordered by kind.
func (e *Engine) Active() []core.HapticEffect {
	out := make([]core.HapticEffect, 0, len(e.oneShots)+len(e.continuous))
	for _, fx := range e.oneShots {
		out = append(out, *fx)
	}
	for _, fx := range e.continuous {
		out = append(out, fx.effect)
	}
	slices.SortFunc(out, func(a, b core.HapticEffect) int {
		return int(a.Kind) - int(b.Kind)
	})
	return out
}

func scaled(c config.ScaledPulseConfig, input float64) float64 {
	return lo.Clamp(input*c.Gain, c.Min, c.Max)
}

// WobbleMagnitude is the length of the wobble G vector.
func WobbleMagnitude(w core.GroundWobble) float64 {
	return math.Hypot(math.Hypot(w.GLateral, w.GVertical), w.GLongitudinal)
}

// WobbleIntensity maps a G magnitude to the ground roll intensity.
func WobbleIntensity(c config.WobbleConfig, g float64) float64 {
	mag := math.Abs(g)
	if mag < c.Deadband || c.Saturation <= c.Deadband {
		return 0
	}
	ramp := lo.Clamp((mag-c.Deadband)/(c.Saturation-c.Deadband), 0, 1)
	return c.Floor + (1-c.Floor)*ramp
}

// AoaIntensity maps angle of attack to the buffet intensity.
func AoaIntensity(c config.AoaConfig, aoa float64) float64 {
	if c.Full <= c.Onset {
		return 0
	}
	return lo.Clamp((aoa-c.Onset)/(c.Full-c.Onset), 0, 1)
}
