package core

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want LedValue
	}{
		{"true", `true`, BoolValue(true)},
		{"false", `false`, BoolValue(false)},
		{"null", `null`, BoolValue(false)},
		{"integer", `1`, FloatValue(1)},
		{"fraction", `0.42`, FloatValue(0.42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v LedValue
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.want, v)
		})
	}

	var v LedValue
	assert.Error(t, json.Unmarshal([]byte(`"on"`), &v))
}

func TestLedValue_Conversions(t *testing.T) {
	assert.Equal(t, 1.0, BoolValue(true).Float())
	assert.Equal(t, 0.0, BoolValue(false).Float())
	assert.True(t, FloatValue(0.1).Truthy())
	assert.False(t, FloatValue(0).Truthy())
	assert.Equal(t, "0.5", FloatValue(0.5).String())
}

func TestPayload_UnmarshalJSON(t *testing.T) {
	in := `{
		"cannon_ammo": 578,
		"current_station": 2,
		"station_1_count": 1,
		"station_1_clsid": "{6CEB49FC-DED8-4DED-B053-E1F033FF72D3}",
		"station_2_count": 2,
		"station_2_weight": 232.5,
		"station_x_count": 9,
		"unrelated": "ignored"
	}`

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(in), &p))

	assert.True(t, p.HasCannonAmmo)
	assert.Equal(t, 578, p.CannonAmmo)
	assert.Equal(t, 2, p.CurrentStation)
	require.Len(t, p.Stations, 2)
	assert.Equal(t, Station{Count: 1, CLSID: "{6CEB49FC-DED8-4DED-B053-E1F033FF72D3}"}, p.Stations[1])
	assert.Equal(t, Station{Count: 2, Weight: 232.5}, p.Stations[2])
}

func TestPayload_WithoutAmmo(t *testing.T) {
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`{"station_3_count": 0}`), &p))
	assert.False(t, p.HasCannonAmmo)
	assert.Contains(t, p.Stations, 3)
}

func TestPayload_BadStationCount(t *testing.T) {
	var p Payload
	err := json.Unmarshal([]byte(`{"station_3_count": "two"}`), &p)
	assert.Error(t, err)
}

func TestPacket_Mechanics(t *testing.T) {
	p := &Packet{Leds: map[string]LedValue{
		KeyGearPos:  FloatValue(1),
		KeyWowLeft:  BoolValue(true),
		KeyWowRight: FloatValue(0),
		KeyRodLeft:  FloatValue(0.4),
		KeyRodRight: FloatValue(0.6),
		"HOOK":      BoolValue(true),
	}}

	m := p.Mechanics()
	assert.True(t, m.HasGearPos)
	assert.Equal(t, 1.0, m.GearPos)
	assert.True(t, m.HasWow)
	assert.True(t, m.OnGround())
	assert.True(t, m.HasRod)
	assert.Equal(t, 0.6, m.StrutCompression())

	assert.Equal(t, Mechanics{}, (&Packet{}).Mechanics())
}

func TestIsMechanicsKey(t *testing.T) {
	assert.True(t, IsMechanicsKey(KeyRodNose))
	assert.False(t, IsMechanicsKey("MASTER_CAUTION"))
}

func TestEnvelope_Level(t *testing.T) {
	env := Envelope{Attack: 10 * time.Millisecond, Sustain: 20 * time.Millisecond, Decay: 10 * time.Millisecond}

	assert.Equal(t, 40*time.Millisecond, env.Duration())
	assert.Equal(t, 0.0, env.Level(-time.Millisecond))
	assert.Equal(t, 0.0, env.Level(0))
	assert.InDelta(t, 0.5, env.Level(5*time.Millisecond), 1e-9)
	assert.Equal(t, 1.0, env.Level(10*time.Millisecond))
	assert.Equal(t, 1.0, env.Level(29*time.Millisecond))
	assert.InDelta(t, 0.5, env.Level(35*time.Millisecond), 1e-9)
	assert.Equal(t, 0.0, env.Level(40*time.Millisecond))

	instant := Envelope{Sustain: 10 * time.Millisecond}
	assert.Equal(t, 1.0, instant.Level(0))
}

func TestLedOutputState_SetGet(t *testing.T) {
	s := LedOutputState{}
	s.Set(DevicePTO2, "HOOK", 1)

	l, ok := s.Get(DevicePTO2, "HOOK")
	assert.True(t, ok)
	assert.True(t, l.On())

	_, ok = s.Get(DeviceThrottle, "HOOK")
	assert.False(t, ok)
}

func TestDescribeEvent(t *testing.T) {
	assert.Equal(t, "ammo_decreased delta=4", DescribeEvent(AmmoDecreased{Delta: 4}))
	assert.Equal(t, "gear_locked", DescribeEvent(GearLocked{}))
	assert.Equal(t, "led_changed HOOK=true", DescribeEvent(LedChanged{Name: "HOOK", Value: BoolValue(true)}))
	assert.True(t, KindAoaExceeded.Continuous())
	assert.False(t, KindGearLocked.Continuous())
}

func TestSession_CountEvents(t *testing.T) {
	s := NewSession("FA-18C_hornet", time.Now())
	s.CountEvents([]Event{AmmoDecreased{Delta: 1}, AmmoDecreased{Delta: 2}, GearLocked{}})

	assert.Equal(t, 2, s.EventCounts["ammo_decreased"])
	assert.Equal(t, 1, s.EventCounts["gear_locked"])
	assert.NotEqual(t, s.ID.String(), NewSession("", time.Now()).ID.String())
}
