package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/pkg/core"
)

func testConfig() Config {
	return Config{
		AoaOnset:           15,
		TouchdownThreshold: 0.1,
		Weights:            map[string]float64{"{gbu-38}": 253},
	}
}

func withAmmo(frame uint64, ammo int) *core.Packet {
	return &core.Packet{Frame: frame, Payload: &core.Payload{CannonAmmo: ammo, HasCannonAmmo: true}}
}

func withGear(frame uint64, pos float64) *core.Packet {
	return &core.Packet{Frame: frame, Leds: map[string]core.LedValue{core.KeyGearPos: core.FloatValue(pos)}}
}

func withStations(frame uint64, stations map[int]core.Station) *core.Packet {
	return &core.Packet{Frame: frame, Payload: &core.Payload{Stations: stations}}
}

func run(t *testing.T, tr *Tracker, packets ...*core.Packet) [][]core.Event {
	t.Helper()
	var out [][]core.Event
	for _, p := range packets {
		events, _, ok := tr.Update(p)
		require.True(t, ok, "frame %d rejected", p.Frame)
		out = append(out, events)
	}
	return out
}

func TestUpdate_AmmoScenario(t *testing.T) {
	tr := New(testConfig())

	got := run(t, tr, withAmmo(1, 100), withAmmo(2, 99), withAmmo(3, 99), withAmmo(4, 95))

	want := [][]core.Event{
		nil,
		{core.AmmoDecreased{Delta: 1}},
		nil,
		{core.AmmoDecreased{Delta: 4}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_AmmoIncreaseIsSilent(t *testing.T) {
	tr := New(testConfig())

	got := run(t, tr, withAmmo(1, 10), withAmmo(2, 578))
	assert.Empty(t, got[1])
}

func TestUpdate_GearScenario(t *testing.T) {
	tr := New(testConfig())

	got := run(t, tr, withGear(1, 0), withGear(2, 0.3), withGear(3, 0.7), withGear(4, 0.99), withGear(5, 0.99))

	want := [][]core.Event{
		nil,
		{core.GearTransit{Position: 0.3}},
		{core.GearTransit{Position: 0.7}},
		{core.GearTransit{Position: 0.99}, core.GearLocked{}},
		nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_SingleGearLockedPerCrossing(t *testing.T) {
	tr := New(testConfig())

	got := run(t, tr, withGear(1, 0.9), withGear(2, 0.985), withGear(3, 0.99), withGear(4, 1), withGear(5, 1))

	locks := 0
	for _, events := range got {
		for _, e := range events {
			if e.Kind() == core.KindGearLocked {
				locks++
			}
		}
	}
	assert.Equal(t, 1, locks)

	// retract and extend again
	got = run(t, tr, withGear(6, 0.5), withGear(7, 1))
	assert.Contains(t, got[1], core.Event(core.GearLocked{}))
}

func TestUpdate_Staleness(t *testing.T) {
	tr := New(testConfig())

	run(t, tr, withAmmo(5, 100))

	for _, frame := range []uint64{5, 4, 0} {
		events, cont, ok := tr.Update(withAmmo(frame, 1))
		assert.False(t, ok)
		assert.Nil(t, events)
		assert.Equal(t, core.ContinuousSignals{}, cont)
	}

	last, accepted := tr.LastFrame()
	assert.True(t, accepted)
	assert.Equal(t, uint64(5), last)

	// stale packets did not overwrite the ammo baseline
	got := run(t, tr, withAmmo(6, 98))
	assert.Equal(t, []core.Event{core.AmmoDecreased{Delta: 2}}, got[0])
}

func TestCheck(t *testing.T) {
	tr := New(testConfig())

	assert.NoError(t, tr.Check(&core.Packet{Frame: 0}))
	run(t, tr, &core.Packet{Frame: 3})

	err := tr.Check(&core.Packet{Frame: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStale))
	assert.Error(t, tr.Check(nil))
}

func TestReset_AcceptsRestartedMission(t *testing.T) {
	tr := New(testConfig())
	run(t, tr, withAmmo(900, 100))

	tr.Reset()
	_, accepted := tr.LastFrame()
	assert.False(t, accepted)

	got := run(t, tr, withAmmo(1, 50))
	assert.Empty(t, got[0], "no diff against the previous mission")
}

func TestLastAccepted(t *testing.T) {
	tr := New(testConfig())
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return clock }

	assert.True(t, tr.LastAccepted().IsZero())

	run(t, tr, withAmmo(1, 100))
	assert.Equal(t, clock, tr.LastAccepted())

	later := clock.Add(time.Second)
	clock = later
	_, _, ok := tr.Update(withAmmo(1, 99))
	require.False(t, ok)
	assert.Equal(t, later.Add(-time.Second), tr.LastAccepted(), "rejected packet leaves the time alone")

	run(t, tr, withAmmo(2, 99))
	assert.Equal(t, later, tr.LastAccepted())

	tr.Reset()
	assert.True(t, tr.LastAccepted().IsZero())
}

func TestUpdate_LedChanges(t *testing.T) {
	tr := New(testConfig())

	first := &core.Packet{Frame: 1, Leds: map[string]core.LedValue{
		"MASTER_CAUTION": core.BoolValue(false),
		"HOOK":           core.BoolValue(true),
		core.KeyWowLeft:  core.BoolValue(true),
		core.KeyGearPos:  core.FloatValue(1),
	}}
	second := &core.Packet{Frame: 2, Leds: map[string]core.LedValue{
		"MASTER_CAUTION": core.BoolValue(true),
		"HOOK":           core.BoolValue(true),
		"APU_READY":      core.FloatValue(0.8),
		core.KeyWowLeft:  core.BoolValue(false),
	}}
	third := &core.Packet{Frame: 3}

	got := run(t, tr, first, second, third)

	want := [][]core.Event{
		{
			core.LedChanged{Name: "HOOK", Value: core.BoolValue(true)},
			core.LedChanged{Name: "MASTER_CAUTION", Value: core.BoolValue(false)},
		},
		{
			core.LedChanged{Name: "APU_READY", Value: core.FloatValue(0.8)},
			core.LedChanged{Name: "MASTER_CAUTION", Value: core.BoolValue(true)},
		},
		nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_StationRelease(t *testing.T) {
	tr := New(testConfig())

	got := run(t, tr,
		withStations(1, map[int]core.Station{
			2: {Count: 2, CLSID: "{GBU-38}"},
			5: {Count: 1, CLSID: "{UNLISTED}", Weight: 120},
			7: {Count: 1, CLSID: "{MYSTERY}"},
		}),
		withStations(2, map[int]core.Station{
			2: {Count: 1},
			7: {Count: 1},
		}),
		withStations(3, map[int]core.Station{
			2: {Count: 0},
		}),
	)

	want := [][]core.Event{
		nil,
		{
			core.StationCountDecreased{StationID: 2, Prior: 2, New: 1, UnitWeight: 253, CLSID: "{GBU-38}"},
			core.StationCountDecreased{StationID: 5, Prior: 1, New: 0, UnitWeight: 120, CLSID: "{UNLISTED}"},
		},
		{
			core.StationCountDecreased{StationID: 2, Prior: 1, New: 0, UnitWeight: 253, CLSID: "{GBU-38}"},
			core.StationCountDecreased{StationID: 7, Prior: 1, New: 0, UnitWeight: 0, CLSID: "{MYSTERY}"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_PayloadAbsentIsNoData(t *testing.T) {
	tr := New(testConfig())

	got := run(t, tr,
		withStations(1, map[int]core.Station{1: {Count: 1}}),
		&core.Packet{Frame: 2},
		withStations(3, map[int]core.Station{1: {Count: 1}}),
	)
	assert.Empty(t, got[1])
	assert.Empty(t, got[2])
}

func TestUpdate_SuppressReleaseOnGround(t *testing.T) {
	cfg := testConfig()
	cfg.SuppressReleaseOnGround = true
	tr := New(cfg)

	onGround := func(frame uint64, count int) *core.Packet {
		p := withStations(frame, map[int]core.Station{1: {Count: count}})
		p.Leds = map[string]core.LedValue{core.KeyWowLeft: core.BoolValue(true)}
		return p
	}
	airborne := func(frame uint64, count int) *core.Packet {
		p := withStations(frame, map[int]core.Station{1: {Count: count}})
		p.Leds = map[string]core.LedValue{core.KeyWowLeft: core.BoolValue(false)}
		return p
	}

	got := run(t, tr, onGround(1, 4), onGround(2, 2), airborne(3, 2), airborne(4, 1))
	assert.Empty(t, got[1], "rearm on the ground is not a release")
	assert.Empty(t, got[2])
	assert.Equal(t, []core.Event{core.StationCountDecreased{StationID: 1, Prior: 2, New: 1}}, got[3])
}

func TestUpdate_GroundWobbleAndAoa(t *testing.T) {
	tr := New(testConfig())

	p := &core.Packet{
		Frame:  1,
		Leds:   map[string]core.LedValue{core.KeyWowRight: core.BoolValue(true)},
		Flight: &core.Flight{GX: -0.3, GY: 1.2, GZ: 0.05, AOA: 16},
	}
	events, cont, ok := tr.Update(p)
	require.True(t, ok)

	want := []core.Event{
		core.GroundWobble{GLateral: 0.05, GVertical: 1.2 - 1, GLongitudinal: -0.3},
		core.AoaExceeded{AoaDegrees: 16},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, cont.HasFlight)
	assert.Equal(t, 16.0, cont.AoaDegrees)
	assert.True(t, cont.HasWow)
	assert.True(t, cont.WeightOnWheels)
	assert.False(t, cont.HasGear)
}

func TestUpdate_WobbleNeedsFlightAndMainGear(t *testing.T) {
	tr := New(testConfig())

	got := run(t, tr,
		&core.Packet{Frame: 1, Leds: map[string]core.LedValue{core.KeyWowLeft: core.BoolValue(true)}},
		&core.Packet{Frame: 2, Leds: map[string]core.LedValue{core.KeyWowNose: core.BoolValue(true)}, Flight: &core.Flight{}},
		&core.Packet{Frame: 3, Flight: &core.Flight{AOA: 15}},
	)
	for i, events := range got {
		assert.Empty(t, events, "tick %d", i+1)
	}
}

func TestUpdate_TouchdownImpact(t *testing.T) {
	tr := New(testConfig())

	mech := func(frame uint64, wow bool, rod float64) *core.Packet {
		return &core.Packet{Frame: frame, Leds: map[string]core.LedValue{
			core.KeyWowLeft:  core.BoolValue(wow),
			core.KeyWowRight: core.BoolValue(wow),
			core.KeyRodLeft:  core.FloatValue(rod),
			core.KeyRodRight: core.FloatValue(rod * 0.9),
		}}
	}

	got := run(t, tr, mech(1, false, 0), mech(2, true, 0.45), mech(3, true, 0.6))

	require.Len(t, got[1], 1)
	impact, ok := got[1][0].(core.TouchdownImpact)
	require.True(t, ok)
	assert.InDelta(t, 0.45, impact.CompressionRate, 1e-9)
	assert.Empty(t, got[2], "already on the ground")
}

func TestUpdate_SoftTouchdownBelowThreshold(t *testing.T) {
	tr := New(testConfig())

	mech := func(frame uint64, wow bool, rod float64) *core.Packet {
		return &core.Packet{Frame: frame, Leds: map[string]core.LedValue{
			core.KeyWowLeft: core.BoolValue(wow),
			core.KeyRodLeft: core.FloatValue(rod),
		}}
	}

	got := run(t, tr, mech(1, false, 0.02), mech(2, true, 0.08))
	assert.Empty(t, got[1])
}

func TestUpdate_ContinuousSignalsAlwaysForwarded(t *testing.T) {
	tr := New(testConfig())

	p := &core.Packet{Frame: 1, Leds: map[string]core.LedValue{
		core.KeyGearPos: core.FloatValue(1),
		core.KeyRodLeft: core.FloatValue(0.2),
	}}
	run(t, tr, p)

	p2 := &core.Packet{Frame: 2, Leds: p.Leds}
	events, cont, ok := tr.Update(p2)
	require.True(t, ok)
	assert.Empty(t, events)
	assert.Equal(t, core.ContinuousSignals{HasStrut: true, StrutCompression: 0.2, HasGear: true, GearPosition: 1}, cont)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(configTracker(), map[string]float64{"{x}": 1})
	assert.Equal(t, 15.0, cfg.AoaOnset)
	assert.Equal(t, 0.1, cfg.TouchdownThreshold)
	assert.Equal(t, 1.0, cfg.Weights["{x}"])
}

func configTracker() config.TrackerConfig {
	return config.TrackerConfig{AoaOnset: 15, TouchdownThreshold: 0.1}
}
