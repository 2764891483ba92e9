// pkg/core/packet.go
package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Universal mechanics keys carried in the leds sub-record for every aircraft.
const (
	KeyGearPos  = "GEAR_POS"
	KeyWowNose  = "WOW_NOSE"
	KeyWowLeft  = "WOW_LEFT"
	KeyWowRight = "WOW_RIGHT"
	KeyRodNose  = "ROD_NOSE"
	KeyRodLeft  = "ROD_LEFT"
	KeyRodRight = "ROD_RIGHT"
)

// IsMechanicsKey reports whether name is one of the universal gear/strut keys.
func IsMechanicsKey(name string) bool {
	switch name {
	case KeyGearPos, KeyWowNose, KeyWowLeft, KeyWowRight, KeyRodNose, KeyRodLeft, KeyRodRight:
		return true
	}
	return false
}

// Packet is one telemetry snapshot exported by the simulator.
// Nil sub-records mean no data for that domain this tick.
type Packet struct {
	Aircraft string
	Frame    uint64
	Time     float64

	Leds    map[string]LedValue
	Payload *Payload
	Flight  *Flight
	Engine  *Engine
}

// LedValue is either a boolean or a numeric cockpit argument.
type LedValue struct {
	Bool    bool
	Num     float64
	Numeric bool
}

// BoolValue returns a boolean LedValue.
func BoolValue(b bool) LedValue {
	return LedValue{Bool: b}
}

// FloatValue returns a numeric LedValue.
func FloatValue(f float64) LedValue {
	return LedValue{Num: f, Numeric: true}
}

// Float returns the value as a number, booleans map to 0 and 1.
func (v LedValue) Float() float64 {
	if v.Numeric {
		return v.Num
	}
	if v.Bool {
		return 1
	}
	return 0
}

// Truthy returns the value as a boolean, numbers are true when non-zero.
func (v LedValue) Truthy() bool {
	if v.Numeric {
		return v.Num != 0
	}
	return v.Bool
}

func (v LedValue) String() string {
	if v.Numeric {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return strconv.FormatBool(v.Bool)
}

// UnmarshalJSON accepts true, false, numbers and null.
func (v *LedValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch s {
	case "true":
		*v = BoolValue(true)
		return nil
	case "false", "null":
		*v = BoolValue(false)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("led value %s is neither bool nor number", s)
	}
	*v = FloatValue(f)
	return nil
}

// MarshalJSON writes the value in the form it was received.
func (v LedValue) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// Station is the loadout of one pylon.
type Station struct {
	Count  int     `json:"count"`
	Weight float64 `json:"weight,omitempty"`
	CLSID  string  `json:"clsid,omitempty"`
}

// Payload holds weapon state. Stations are keyed by station number.
type Payload struct {
	CannonAmmo     int
	HasCannonAmmo  bool
	CurrentStation int
	Stations       map[int]Station
}

// UnmarshalJSON decodes the flat station_<n>_<field> layout of the exporter.
func (p *Payload) UnmarshalJSON(b []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	p.Stations = make(map[int]Station)
	for key, val := range raw {
		switch key {
		case "cannon_ammo":
			if err := json.Unmarshal(val, &p.CannonAmmo); err != nil {
				return fmt.Errorf("cannon_ammo: %w", err)
			}
			p.HasCannonAmmo = true
			continue
		case "current_station":
			if err := json.Unmarshal(val, &p.CurrentStation); err != nil {
				return fmt.Errorf("current_station: %w", err)
			}
			continue
		}

		n, field, ok := parseStationKey(key)
		if !ok {
			continue
		}
		st := p.Stations[n]
		switch field {
		case "count":
			if err := json.Unmarshal(val, &st.Count); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		case "weight":
			if err := json.Unmarshal(val, &st.Weight); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		case "clsid":
			if err := json.Unmarshal(val, &st.CLSID); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		default:
			continue
		}
		p.Stations[n] = st
	}
	return nil
}

// parseStationKey splits "station_3_count" into (3, "count").
func parseStationKey(key string) (int, string, bool) {
	rest, ok := strings.CutPrefix(key, "station_")
	if !ok {
		return 0, "", false
	}
	num, field, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, "", false
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, "", false
	}
	return n, field, true
}

// Flight holds the kinematic state of the aircraft.
type Flight struct {
	Altitude         float64 `json:"altitude"`
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	AltAGL           float64 `json:"alt_agl"`
	VerticalVelocity float64 `json:"vertical_velocity"`
	GX               float64 `json:"g_x"`
	GY               float64 `json:"g_y"`
	GZ               float64 `json:"g_z"`
	AOA              float64 `json:"aoa"`
	GroundSpeed      float64 `json:"ground_speed"`
	SpeedIAS         float64 `json:"speed_ias"`
	SpeedTAS         float64 `json:"speed_tas"`
	VelX             float64 `json:"vel_x"`
	VelY             float64 `json:"vel_y"`
	VelZ             float64 `json:"vel_z"`
}

// Engine holds engine state.
type Engine struct {
	RPMLeft  float64 `json:"rpm_left"`
	RPMRight float64 `json:"rpm_right"`
}

// Mechanics are the universal gear and strut values folded out of the leds record.
type Mechanics struct {
	GearPos    float64
	HasGearPos bool

	WowNose  bool
	WowLeft  bool
	WowRight bool
	HasWow   bool

	RodNose  float64
	RodLeft  float64
	RodRight float64
	HasRod   bool
}

// OnGround reports main gear weight-on-wheels.
func (m Mechanics) OnGround() bool {
	return m.WowLeft || m.WowRight
}

// StrutCompression is the larger of the two main strut compressions.
func (m Mechanics) StrutCompression() float64 {
	return max(m.RodLeft, m.RodRight)
}

// Mechanics extracts the universal gear fields from the leds record.
func (p *Packet) Mechanics() Mechanics {
	var m Mechanics
	if p.Leds == nil {
		return m
	}
	if v, ok := p.Leds[KeyGearPos]; ok {
		m.GearPos, m.HasGearPos = v.Float(), true
	}
	for key, dst := range map[string]*bool{KeyWowNose: &m.WowNose, KeyWowLeft: &m.WowLeft, KeyWowRight: &m.WowRight} {
		if v, ok := p.Leds[key]; ok {
			*dst = v.Truthy()
			m.HasWow = true
		}
	}
	for key, dst := range map[string]*float64{KeyRodNose: &m.RodNose, KeyRodLeft: &m.RodLeft, KeyRodRight: &m.RodRight} {
		if v, ok := p.Leds[key]; ok {
			*dst = v.Float()
			m.HasRod = true
		}
	}
	return m
}
