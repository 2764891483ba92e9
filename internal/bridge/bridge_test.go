package bridge

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/dispatcher"
	"github.com/winghaptics/wwbridge/internal/effects"
	"github.com/winghaptics/wwbridge/internal/leds"
	"github.com/winghaptics/wwbridge/internal/receiver"
	"github.com/winghaptics/wwbridge/internal/tracker"
	"github.com/winghaptics/wwbridge/pkg/core"
)

type write struct {
	leds   core.LedOutputState
	motors core.MotorOutputState
}

type fakeOutput struct {
	failLeft int
	writes   []write
}

func (f *fakeOutput) Write(l core.LedOutputState, m core.MotorOutputState) error {
	f.writes = append(f.writes, write{l, m})
	if f.failLeft > 0 {
		f.failLeft--
		return errors.New("device gone")
	}
	return nil
}

func (f *fakeOutput) last() write {
	return f.writes[len(f.writes)-1]
}

type published struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePublisher) Publish(topic string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{topic, payload})
	return nil
}

func (f *fakePublisher) topic(name string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.events {
		if e.topic == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func newTestBridge(t *testing.T) (*Bridge, *fakeOutput, *fakePublisher) {
	t.Helper()
	t.Cleanup(viper.Reset)
	config.SetDefaults()

	dc, err := config.GetDeviceConfig()
	require.NoError(t, err)

	tr := tracker.New(tracker.ConfigFrom(config.GetTrackerConfig(), config.GetWeaponWeights()))
	eng := effects.New(config.GetEffectsConfig())
	m := leds.New(dc.Bindings, config.AircraftConfig{})

	out := &fakeOutput{}
	pub := &fakePublisher{}
	b := New(tr, eng, m, out,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPublisher(pub))
	return b, out, pub
}

func ammoPacket(frame uint64, ammo int) *core.Packet {
	return &core.Packet{
		Aircraft: "FA-18C_hornet",
		Frame:    frame,
		Payload:  &core.Payload{CannonAmmo: ammo, HasCannonAmmo: true},
	}
}

const tick = 10 * time.Millisecond

func TestBridge_UnresolvedAircraftStillDrivesMotors(t *testing.T) {
	b, out, _ := newTestBridge(t)
	now := time.Now()

	b.OnActive()
	b.Process(ammoPacket(1, 100), now, tick)
	b.Process(ammoPacket(2, 99), now.Add(tick), tick)

	w := out.last()
	assert.Greater(t, w.motors.Throttle, 0.0)
	assert.Greater(t, w.motors.Joystick, 0.0)

	level, ok := w.leds.Get(core.DevicePTO2, "MASTER_CAUTION")
	require.True(t, ok, "every bound LED is present")
	assert.Equal(t, core.LedLevel(0), level)

	level, ok = w.leds.Get(core.DevicePTO2, "SL_BRIGHTNESS")
	require.True(t, ok)
	assert.Equal(t, core.LedLevel(1), level, "brightness at default")

	assert.Equal(t, "unresolved", b.Health().Aircraft)
}

func TestBridge_ResolvedAircraftMapsLeds(t *testing.T) {
	b, out, _ := newTestBridge(t)
	now := time.Now()

	p := ammoPacket(1, 100)
	p.Leds = map[string]core.LedValue{"MASTER_CAUTION": core.BoolValue(true)}
	b.OnActive()
	b.Process(p, now, tick)

	level, _ := out.last().leds.Get(core.DevicePTO2, "MASTER_CAUTION")
	assert.Equal(t, core.LedLevel(1), level)
	assert.Equal(t, "FA-18C_hornet", b.Health().Aircraft)
}

func TestBridge_StalePacketDecays(t *testing.T) {
	b, out, _ := newTestBridge(t)
	now := time.Now()

	b.OnActive()
	b.Process(ammoPacket(5, 100), now, tick)
	b.Process(ammoPacket(6, 90), now.Add(tick), tick)
	n := len(out.writes)

	b.Process(ammoPacket(4, 50), now.Add(2*tick), tick)

	assert.Equal(t, uint64(1), b.Health().Stale)
	assert.Len(t, out.writes, n+1, "stale tick still writes output")

	s := b.Health().Session
	require.NotNil(t, s)
	assert.Equal(t, 1, s.EventCounts[core.KindAmmoDecreased.String()], "stale packet adds no events")
}

func TestBridge_HealthTracksLastAcceptedPacket(t *testing.T) {
	b, _, _ := newTestBridge(t)
	now := time.Now()

	h := b.Health()
	assert.Zero(t, h.LastFrame)
	assert.True(t, h.LastAccepted.IsZero())

	b.OnActive()
	b.Process(ammoPacket(5, 100), now, tick)
	h = b.Health()
	assert.Equal(t, uint64(5), h.LastFrame)
	assert.False(t, h.LastAccepted.IsZero())

	accepted := h.LastAccepted
	b.Process(ammoPacket(4, 90), now.Add(tick), tick)
	h = b.Health()
	assert.Equal(t, uint64(5), h.LastFrame, "stale packet is not accepted")
	assert.Equal(t, accepted, h.LastAccepted)

	b.OnIdle()
	h = b.Health()
	assert.Zero(t, h.LastFrame)
	assert.True(t, h.LastAccepted.IsZero())
}

func TestBridge_EnvelopeDecaysWithoutPackets(t *testing.T) {
	b, out, _ := newTestBridge(t)
	now := time.Now()

	b.OnActive()
	b.Process(ammoPacket(1, 100), now, tick)
	b.Process(ammoPacket(2, 99), now, tick)
	require.Greater(t, out.last().motors.Throttle, 0.0)

	for i := range 20 {
		b.Decay(now.Add(time.Duration(i)*tick), tick)
	}
	assert.Equal(t, core.MotorOutputState{}, out.last().motors)
}

func TestBridge_OnIdleTurnsEverythingOff(t *testing.T) {
	b, out, pub := newTestBridge(t)
	now := time.Now()

	b.OnActive()
	b.Process(ammoPacket(1, 100), now, tick)
	b.Process(ammoPacket(2, 99), now, tick)
	b.OnIdle()

	w := out.last()
	assert.Equal(t, core.MotorOutputState{}, w.motors)
	for _, group := range w.leds {
		for name, level := range group {
			assert.Equal(t, core.LedLevel(0), level, name)
		}
	}

	sessions := pub.topic(dispatcher.TopicSession)
	require.Len(t, sessions, 1)
	s := sessions[0].(*core.Session)
	assert.Equal(t, "FA-18C_hornet", s.Aircraft)
	assert.False(t, s.EndedAt.IsZero())
	assert.Equal(t, 1, s.EventCounts[core.KindAmmoDecreased.String()])
	assert.Nil(t, b.Health().Session)

	// tracker state was reset, so an older frame is accepted again
	b.OnActive()
	b.Process(ammoPacket(1, 100), now, tick)
	assert.Equal(t, uint64(0), b.Health().Stale)
}

func TestBridge_OnIdleWithoutSession(t *testing.T) {
	b, _, pub := newTestBridge(t)
	b.OnIdle()
	assert.Empty(t, pub.topic(dispatcher.TopicSession))
}

func TestBridge_OnActiveRestoresDefaults(t *testing.T) {
	b, out, _ := newTestBridge(t)

	b.OnActive()

	w := out.last()
	level, _ := w.leds.Get(core.DevicePTO2, "FLAG_BRIGHTNESS")
	assert.Equal(t, core.LedLevel(1), level)
	level, _ = w.leds.Get(core.DevicePTO2, "HOOK")
	assert.Equal(t, core.LedLevel(0), level)
}

func TestBridge_KeepsProducingOutputAfterWriteFailures(t *testing.T) {
	b, out, _ := newTestBridge(t)
	now := time.Now()
	b.OnActive()
	out.writes = nil
	out.failLeft = 5

	ammo := 100
	for frame := uint64(1); frame <= 8; frame++ {
		b.Process(ammoPacket(frame, ammo), now.Add(time.Duration(frame)*tick), tick)
		ammo--
	}

	assert.Len(t, out.writes, 8)
	assert.Equal(t, uint64(5), b.Health().WriteErrors)
	assert.Greater(t, out.last().motors.Throttle, 0.0, "fresh output after the failures")
}

func TestBridge_PublishesSnapshots(t *testing.T) {
	b, _, pub := newTestBridge(t)
	now := time.Now()

	b.OnActive()
	b.Process(ammoPacket(1, 100), now, tick)
	b.Process(ammoPacket(2, 97), now.Add(tick), tick)
	b.Decay(now.Add(2*tick), tick)

	frames := pub.topic(dispatcher.TopicFrame)
	require.Len(t, frames, 3)

	snap := frames[1].(core.FrameSnapshot)
	assert.Equal(t, uint64(2), snap.Frame)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, core.AmmoDecreased{Delta: 3}, snap.Events[0])
	assert.NotEmpty(t, snap.Effects)

	decay := frames[2].(core.FrameSnapshot)
	assert.Equal(t, uint64(2), decay.Frame)
	assert.Empty(t, decay.Events)
}

var _ handlerChecker = (*dispatcher.Dispatcher)(nil)

type sessionOnlyPublisher struct {
	fakePublisher
}

func (p *sessionOnlyPublisher) HasHandler(topic string) bool {
	return topic == dispatcher.TopicSession
}

func TestBridge_SkipsSnapshotsWithoutFrameHandlers(t *testing.T) {
	b, _, _ := newTestBridge(t)
	pub := &sessionOnlyPublisher{}
	WithPublisher(pub)(b)
	now := time.Now()

	b.OnActive()
	b.Process(ammoPacket(1, 100), now, tick)
	b.Decay(now.Add(tick), tick)
	b.OnIdle()

	assert.Empty(t, pub.topic(dispatcher.TopicFrame))
	assert.Len(t, pub.topic(dispatcher.TopicSession), 1)
}

func TestDebugPrinter(t *testing.T) {
	var buf bytes.Buffer
	h := DebugPrinter(&buf)

	snap := core.FrameSnapshot{
		Time:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Frame:  7,
		Events: []core.Event{core.LedChanged{Name: "HOOK", Value: core.BoolValue(true)}, core.AmmoDecreased{Delta: 2}},
		Motors: core.MotorOutputState{Throttle: 0.5, Joystick: 0.5},
	}
	require.NoError(t, h(dispatcher.Event{Topic: dispatcher.TopicFrame, Payload: snap}))

	out := buf.String()
	assert.Contains(t, out, "frame=7 ammo_decreased delta=2")
	assert.NotContains(t, out, "HOOK")
	assert.Contains(t, out, "throttle=0.50")

	buf.Reset()
	snap.Events = nil
	require.NoError(t, h(dispatcher.Event{Topic: dispatcher.TopicFrame, Payload: snap}))
	assert.Empty(t, buf.String(), "unchanged motors are not repeated")

	assert.Error(t, h(dispatcher.Event{Payload: "nope"}))
}

func TestBridge_SessionFoldsReceiverStats(t *testing.T) {
	b, _, pub := newTestBridge(t)
	stats := receiver.Stats{Packets: 10, Malformed: 1}
	b.stats = func() receiver.Stats { return stats }

	now := time.Now()
	b.OnActive()
	b.Process(ammoPacket(2, 100), now, tick)
	b.Process(ammoPacket(1, 100), now, tick)
	stats = receiver.Stats{Packets: 25, Malformed: 3, Coalesced: 4}
	b.OnIdle()

	sessions := pub.topic(dispatcher.TopicSession)
	require.Len(t, sessions, 1)
	s := sessions[0].(*core.Session)
	assert.Equal(t, uint64(15), s.Packets)
	assert.Equal(t, uint64(2), s.Malformed)
	assert.Equal(t, uint64(4), s.Coalesced)
	assert.Equal(t, uint64(1), s.Stale)
}
