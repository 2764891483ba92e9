// Package leds resolves telemetry LED values into per-device output levels.
package leds

import (
	"strings"

	"github.com/samber/lo"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// Hysteresis thresholds for numeric values on switched outputs.
const (
	OnThreshold  = 0.5
	OffThreshold = 0.3
)

// GearHandleKey is the gear handle warning light, lit while the gear travels.
const GearHandleKey = "GEAR_HANDLE"

// gearGreens light once the gear is down and locked.
var gearGreens = map[string]bool{
	"NOSE_GEAR":  true,
	"LEFT_GEAR":  true,
	"RIGHT_GEAR": true,
}

// Mapper turns the leds record of a packet into device output levels.
// It keeps hysteresis state between calls and is not safe for concurrent use.
type Mapper struct {
	bindings  []core.DeviceBinding
	supported []string
	override  string

	lit map[string]bool
}

// New builds a mapper over the LED bindings; motor bindings are ignored.
func New(bindings []core.DeviceBinding, aircraft config.AircraftConfig) *Mapper {
	return &Mapper{
		bindings: lo.Filter(bindings, func(b core.DeviceBinding, _ int) bool {
			return b.Kind == core.OutputBit || b.Kind == core.OutputBrightness
		}),
		supported: aircraft.Supported,
		override:  aircraft.Override,
		lit:       make(map[string]bool),
	}
}

// Override returns the configured aircraft override, empty when none.
func (m *Mapper) Override() string {
	return m.override
}

// Resolve decides whether the packet's LED data can be trusted.
func (m *Mapper) Resolve(p *core.Packet, override string) core.Aircraft {
	if p == nil || p.Leds == nil {
		return core.UnresolvedAircraft
	}
	name := p.Aircraft
	if override != "" {
		name = override
	} else if len(m.supported) > 0 && !lo.ContainsBy(m.supported, func(s string) bool {
		return strings.EqualFold(s, p.Aircraft)
	}) {
		return core.UnresolvedAircraft
	}
	if name == "" {
		name = "unknown"
	}
	return core.ResolvedAircraft(name)
}

// Map returns the level of every bound LED. An unresolved aircraft or a packet
// without LED data yields the default state.
func (m *Mapper) Map(p *core.Packet, aircraft core.Aircraft) core.LedOutputState {
	if !aircraft.Resolved || p == nil || p.Leds == nil {
		return m.Defaults()
	}

	mech := p.Mechanics()
	out := make(core.LedOutputState)
	for _, b := range m.bindings {
		v, ok := p.Leds[b.Key()]
		if !ok {
			v, ok = foldIn(b.Key(), mech)
		}

		switch {
		case b.Kind == core.OutputBit || b.Switched:
			on := ok && m.switched(b, v)
			out.Set(b.Device, b.Name, onOff(on))
		case ok:
			out.Set(b.Device, b.Name, brightness(b, v.Float()))
		default:
			out.Set(b.Device, b.Name, brightness(b, b.Default))
		}
	}
	return out
}

// switched applies hysteresis to numeric values; booleans pass through.
func (m *Mapper) switched(b core.DeviceBinding, v core.LedValue) bool {
	key := string(b.Device) + "/" + b.Name
	on := m.lit[key]
	switch {
	case !v.Numeric:
		on = v.Bool
	case v.Num >= OnThreshold:
		on = true
	case v.Num <= OffThreshold:
		on = false
	}
	m.lit[key] = on
	return on
}

// foldIn derives cockpit lights from the universal gear position when the
// aircraft does not export them.
func foldIn(key string, mech core.Mechanics) (core.LedValue, bool) {
	if !mech.HasGearPos {
		return core.LedValue{}, false
	}
	switch {
	case key == GearHandleKey:
		return core.BoolValue(mech.GearPos > 0 && mech.GearPos < 1), true
	case gearGreens[key]:
		return core.BoolValue(mech.GearPos >= 0.98), true
	}
	return core.LedValue{}, false
}

// Defaults is the state for an unresolved aircraft: switched LEDs off,
// brightness outputs at their configured default.
func (m *Mapper) Defaults() core.LedOutputState {
	out := make(core.LedOutputState)
	for _, b := range m.bindings {
		if b.Kind == core.OutputBit || b.Switched {
			out.Set(b.Device, b.Name, 0)
			continue
		}
		out.Set(b.Device, b.Name, brightness(b, b.Default))
	}
	return out
}

// AllOff turns every bound LED fully off.
func (m *Mapper) AllOff() core.LedOutputState {
	return m.uniform(0)
}

// AllOn lights every bound LED at full level.
func (m *Mapper) AllOn() core.LedOutputState {
	return m.uniform(1)
}

func (m *Mapper) uniform(level core.LedLevel) core.LedOutputState {
	out := make(core.LedOutputState)
	for _, b := range m.bindings {
		out.Set(b.Device, b.Name, level)
	}
	return out
}

// Reset forgets the hysteresis state.
func (m *Mapper) Reset() {
	clear(m.lit)
}

func brightness(b core.DeviceBinding, v float64) core.LedLevel {
	return core.LedLevel(max(lo.Clamp(v, 0, 1), lo.Clamp(b.Minimum, 0, 1)))
}

func onOff(on bool) core.LedLevel {
	if on {
		return 1
	}
	return 0
}
