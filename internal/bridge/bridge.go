// Package bridge wires the core components into the per-tick pipeline.
package bridge

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/winghaptics/wwbridge/internal/dispatcher"
	"github.com/winghaptics/wwbridge/internal/effects"
	"github.com/winghaptics/wwbridge/internal/leds"
	"github.com/winghaptics/wwbridge/internal/receiver"
	"github.com/winghaptics/wwbridge/internal/tracker"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// Output is the device side of the pipeline.
type Output interface {
	Write(leds core.LedOutputState, motors core.MotorOutputState) error
}

// Publisher receives immutable per-tick snapshots and session records.
type Publisher interface {
	Publish(topic string, payload any) error
}

// handlerChecker is implemented by publishers that know whether a topic has subscribers.
type handlerChecker interface {
	HasHandler(topic string) bool
}

// Health is the bridge's contribution to the status line.
type Health struct {
	Aircraft    string
	Motor       float64
	Stale       uint64
	WriteErrors uint64
	Session     *core.Session

	// LastFrame and LastAccepted describe the last packet the tracker accepted,
	// zero until one is accepted.
	LastFrame    uint64
	LastAccepted time.Time
}

// Bridge owns the tracker, effect engine, LED mapper and device output. All
// pipeline methods are called from the scheduler goroutine; Health may be
// called from anywhere.
type Bridge struct {
	tracker *tracker.Tracker
	engine  *effects.Engine
	mapper  *leds.Mapper
	output  Output
	pub     Publisher

	log   *slog.Logger
	soft  zerolog.Logger
	stats func() receiver.Stats

	aircraft core.Aircraft
	leds     core.LedOutputState
	motors   core.MotorOutputState

	mu           sync.Mutex
	session      *core.Session
	stale        uint64
	writeErrors  uint64
	health       Health
	baseline     receiver.Stats
	staleAtStart uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithSampledLogger sets the rate-limited logger for per-tick soft errors.
func WithSampledLogger(l zerolog.Logger) Option {
	return func(b *Bridge) { b.soft = l }
}

// WithStats sets the receiver counters folded into each session record.
func WithStats(f func() receiver.Stats) Option {
	return func(b *Bridge) { b.stats = f }
}

// WithPublisher sets where snapshots and sessions go.
func WithPublisher(p Publisher) Option {
	return func(b *Bridge) { b.pub = p }
}

// New returns a bridge with all outputs considered off.
func New(t *tracker.Tracker, e *effects.Engine, m *leds.Mapper, out Output, opts ...Option) *Bridge {
	b := &Bridge{
		tracker:  t,
		engine:   e,
		mapper:   m,
		output:   out,
		log:      slog.Default(),
		soft:     zerolog.Nop(),
		aircraft: core.UnresolvedAircraft,
		leds:     m.AllOff(),
		health:   Health{Aircraft: core.UnresolvedAircraft.String()},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Process runs the full pipeline for a received packet.
func (b *Bridge) Process(p *core.Packet, now time.Time, dt time.Duration) {
	events, cont, ok := b.tracker.Update(p)
	if !ok {
		b.mu.Lock()
		b.stale++
		b.mu.Unlock()
		b.soft.Debug().Uint64("frame", p.Frame).Msg("ignoring stale packet")
		b.Decay(now, dt)
		return
	}

	aircraft := b.mapper.Resolve(p, b.mapper.Override())
	if aircraft != b.aircraft {
		b.log.Info("Aircraft resolution changed", "from", b.aircraft.String(), "to", aircraft.String())
		b.aircraft = aircraft
	}

	b.motors = b.engine.Tick(events, cont, dt)
	b.leds = b.mapper.Map(p, aircraft)

	b.mu.Lock()
	b.health.LastFrame = p.Frame
	b.health.LastAccepted = b.tracker.LastAccepted()
	if b.session != nil {
		if p.Aircraft != "" {
			b.session.Aircraft = p.Aircraft
		}
		b.session.CountEvents(events)
		b.session.PeakMotor = max(b.session.PeakMotor, b.motors.Throttle, b.motors.Joystick)
	}
	b.mu.Unlock()

	b.write()
	b.publish(now, p.Frame, events)
}

// Decay advances the effects without new data so envelopes run out, and
// rewrites the last LED state.
func (b *Bridge) Decay(now time.Time, dt time.Duration) {
	b.motors = b.engine.Tick(nil, core.ContinuousSignals{}, dt)
	b.write()

	frame, _ := b.tracker.LastFrame()
	b.publish(now, frame, nil)
}

// OnActive starts a session and restores the default LED levels.
func (b *Bridge) OnActive() {
	b.mu.Lock()
	b.session = core.NewSession("", time.Now())
	b.staleAtStart = b.stale
	if b.stats != nil {
		b.baseline = b.stats()
	}
	b.mu.Unlock()

	b.leds = b.mapper.Defaults()
	b.motors = core.MotorOutputState{}
	b.write()
}

// OnIdle turns every output off, forgets all state and publishes the session.
func (b *Bridge) OnIdle() {
	b.leds = b.mapper.AllOff()
	b.motors = core.MotorOutputState{}
	b.write()

	b.tracker.Reset()
	b.engine.Reset()
	b.mapper.Reset()
	b.aircraft = core.UnresolvedAircraft

	b.mu.Lock()
	b.health.LastFrame = 0
	b.health.LastAccepted = time.Time{}
	s := b.session
	b.session = nil
	if s != nil {
		s.EndedAt = time.Now()
		s.Stale = b.stale - b.staleAtStart
		if b.stats != nil {
			st := b.stats()
			s.Packets = st.Packets - b.baseline.Packets
			s.Malformed = st.Malformed - b.baseline.Malformed
			s.Coalesced = st.Coalesced - b.baseline.Coalesced
		}
	}
	b.mu.Unlock()

	if s == nil {
		return
	}
	b.log.Info("Telemetry session ended",
		"session", s.ID.String(), "aircraft", s.Aircraft, "duration", s.Duration().Round(time.Second),
		"events", s.EventCounts, "peakMotor", s.PeakMotor)
	if b.pub != nil {
		if err := b.pub.Publish(dispatcher.TopicSession, s); err != nil {
			b.log.Warn("Failed to publish session", "error", err)
		}
	}
}

// Health returns the current aircraft, motor level and error counters.
func (b *Bridge) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.health
	h.Stale = b.stale
	h.WriteErrors = b.writeErrors
	if b.session != nil {
		s := *b.session
		s.EventCounts = maps.Clone(s.EventCounts)
		h.Session = &s
	}
	return h
}

func (b *Bridge) write() {
	err := b.output.Write(b.leds, b.motors)

	b.mu.Lock()
	b.health.Aircraft = b.aircraft.String()
	b.health.Motor = max(b.motors.Throttle, b.motors.Joystick)
	if err != nil {
		b.writeErrors++
		if b.session != nil {
			b.session.WriteErrors++
		}
	}
	b.mu.Unlock()

	if err != nil {
		b.soft.Warn().Err(err).Msg("device write failed")
	}
}

func (b *Bridge) publish(now time.Time, frame uint64, events []core.Event) {
	if b.pub == nil {
		return
	}
	if hc, ok := b.pub.(handlerChecker); ok && !hc.HasHandler(dispatcher.TopicFrame) {
		return
	}
	snap := core.FrameSnapshot{
		Time:     now,
		Frame:    frame,
		Aircraft: b.aircraft,
		Events:   events,
		Motors:   b.motors,
		Leds:     cloneLeds(b.leds),
		Effects:  b.engine.Active(),
	}
	if err := b.pub.Publish(dispatcher.TopicFrame, snap); err != nil {
		b.soft.Debug().Err(err).Msg("snapshot dropped")
	}
}

func cloneLeds(s core.LedOutputState) core.LedOutputState {
	out := make(core.LedOutputState, len(s))
	for dev, group := range s {
		for name, level := range group {
			out.Set(dev, name, level)
		}
	}
	return out
}
