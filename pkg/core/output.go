// pkg/core/output.go
package core

import (
	"fmt"
	"time"
)

// EffectKind identifies a haptic effect.
type EffectKind uint8

const (
	EffectGunFire EffectKind = iota + 1
	EffectWeaponRelease
	EffectGroundWobble
	EffectGearTransit
	EffectGearClunk
	EffectAoaBuffet
	EffectLandingImpact
)

var effectKindNames = map[EffectKind]string{
	EffectGunFire:       "gun_fire",
	EffectWeaponRelease: "weapon_release",
	EffectGroundWobble:  "ground_wobble",
	EffectGearTransit:   "gear_transit",
	EffectGearClunk:     "gear_clunk",
	EffectAoaBuffet:     "aoa_buffet",
	EffectLandingImpact: "landing_impact",
}

func (k EffectKind) String() string {
	if s, ok := effectKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("effect(%d)", uint8(k))
}

// Envelope is a linear attack, flat sustain and linear decay curve.
type Envelope struct {
	Attack  time.Duration `json:"attack" mapstructure:"attack"`
	Sustain time.Duration `json:"sustain" mapstructure:"sustain"`
	Decay   time.Duration `json:"decay" mapstructure:"decay"`
}

// Duration is the total length of the envelope.
func (e Envelope) Duration() time.Duration {
	return e.Attack + e.Sustain + e.Decay
}

// Level returns the envelope gain in [0,1] at the given age.
func (e Envelope) Level(age time.Duration) float64 {
	switch {
	case age < 0:
		return 0
	case age < e.Attack:
		return float64(age) / float64(e.Attack)
	case age < e.Attack+e.Sustain:
		return 1
	case age < e.Duration():
		return 1 - float64(age-e.Attack-e.Sustain)/float64(e.Decay)
	default:
		return 0
	}
}

// HapticEffect is one active effect inside the engine.
type HapticEffect struct {
	Kind       EffectKind
	Started    time.Duration // engine clock at trigger
	Envelope   Envelope
	Peak       float64
	Intensity  float64
	Continuous bool
}

// MotorOutputState holds the two motor intensities in [0,1].
type MotorOutputState struct {
	Throttle float64
	Joystick float64
}

// DeviceID names a physical output device.
type DeviceID string

const (
	DevicePTO2     DeviceID = "pto2"
	DeviceThrottle DeviceID = "throttle"
	DeviceJoystick DeviceID = "joystick"
)

// LedLevel is an LED level in [0,1]. Switched LEDs only use 0 and 1.
type LedLevel float64

// On reports whether the LED is lit at all.
func (l LedLevel) On() bool {
	return l > 0
}

// LedOutputState maps device to LED name to level.
type LedOutputState map[DeviceID]map[string]LedLevel

// Set stores a level, creating the device group when needed.
func (s LedOutputState) Set(device DeviceID, name string, level LedLevel) {
	group, ok := s[device]
	if !ok {
		group = make(map[string]LedLevel)
		s[device] = group
	}
	group[name] = level
}

// Get returns the level of an LED and whether it is present.
func (s LedOutputState) Get(device DeviceID, name string) (LedLevel, bool) {
	l, ok := s[device][name]
	return l, ok
}

// OutputKind is how a binding is encoded into a report.
type OutputKind string

const (
	OutputBit        OutputKind = "bit"
	OutputBrightness OutputKind = "brightness"
	OutputMotor      OutputKind = "motor"
)

// Motor channel names used as binding keys.
const (
	MotorThrottle = "motor.throttle"
	MotorJoystick = "motor.joystick"
)

// DeviceBinding maps one logical output to a place in a device report.
type DeviceBinding struct {
	Name       string     `json:"name" mapstructure:"name"`
	Device     DeviceID   `json:"device" mapstructure:"device"`
	Kind       OutputKind `json:"kind" mapstructure:"kind"`
	Command    byte       `json:"command" mapstructure:"command"`
	ByteOffset int        `json:"byteOffset" mapstructure:"byteOffset"`
	Bit        uint8      `json:"bit" mapstructure:"bit"`
	Scale      float64    `json:"scale" mapstructure:"scale"`
	Minimum    float64    `json:"minimum" mapstructure:"minimum"`
	Default    float64    `json:"default" mapstructure:"default"`
	// Switched brightness outputs are driven fully on or off.
	Switched bool `json:"switched" mapstructure:"switched"`
	// Source is the telemetry key driving this output, Name when empty.
	Source string `json:"source" mapstructure:"source"`
}

// Key returns the telemetry key that drives the binding.
func (b DeviceBinding) Key() string {
	if b.Source != "" {
		return b.Source
	}
	return b.Name
}

// Aircraft is either resolved to a name or unresolved.
type Aircraft struct {
	Name     string
	Resolved bool
}

// ResolvedAircraft returns a resolved aircraft.
func ResolvedAircraft(name string) Aircraft {
	return Aircraft{Name: name, Resolved: true}
}

// UnresolvedAircraft is the aircraft used when no LED data can be trusted.
var UnresolvedAircraft = Aircraft{}

func (a Aircraft) String() string {
	if !a.Resolved {
		return "unresolved"
	}
	return a.Name
}
