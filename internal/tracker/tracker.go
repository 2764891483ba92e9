// Package tracker diffs successive telemetry packets into discrete events.
package tracker

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// GearLockThreshold is the gear position at which the gear counts as down and locked.
const GearLockThreshold = 0.98

// ErrStale is returned by Check for packets at or behind the last accepted frame.
var ErrStale = errors.New("stale packet")

// Config holds the tracker thresholds and the weapon weight table.
type Config struct {
	AoaOnset                float64
	TouchdownThreshold      float64
	SuppressReleaseOnGround bool
	// Weights maps lower-case CLSID to unit weight in kg.
	Weights map[string]float64
}

// ConfigFrom builds a tracker Config from the loaded configuration.
func ConfigFrom(tc config.TrackerConfig, weights map[string]float64) Config {
	return Config{
		AoaOnset:                tc.AoaOnset,
		TouchdownThreshold:      tc.TouchdownThreshold,
		SuppressReleaseOnGround: tc.SuppressReleaseOnGround,
		Weights:                 weights,
	}
}

// Tracker owns the previous accepted telemetry state.
type Tracker struct {
	cfg Config
	now func() time.Time

	accepted     bool
	lastFrame    uint64
	lastAccepted time.Time

	leds map[string]core.LedValue

	hasPayload bool
	hasAmmo    bool
	ammo       int
	stations   map[int]core.Station

	hasGear bool
	gearPos float64

	hasWow bool
	wow    bool

	hasStrut bool
	strut    float64
}

// New returns an empty tracker.
func New(cfg Config) *Tracker {
	if cfg.Weights == nil {
		cfg.Weights = map[string]float64{}
	}
	t := &Tracker{cfg: cfg, now: time.Now}
	t.Reset()
	return t
}

// Reset forgets everything, the next packet is accepted regardless of frame.
func (t *Tracker) Reset() {
	*t = Tracker{
		cfg:      t.cfg,
		now:      t.now,
		leds:     make(map[string]core.LedValue),
		stations: make(map[int]core.Station),
	}
}

// LastFrame returns the last accepted frame and whether any packet was accepted.
func (t *Tracker) LastFrame() (uint64, bool) {
	return t.lastFrame, t.accepted
}

// LastAccepted returns the wall clock time of the last accepted packet.
func (t *Tracker) LastAccepted() time.Time {
	return t.lastAccepted
}

// Check reports whether p would be accepted.
func (t *Tracker) Check(p *core.Packet) error {
	if p == nil {
		return errors.New("nil packet")
	}
	if t.accepted && p.Frame <= t.lastFrame {
		return fmt.Errorf("%w: frame %d, last accepted %d", ErrStale, p.Frame, t.lastFrame)
	}
	return nil
}

// Update diffs p against the previous accepted state. Packets rejected by Check
// yield ok=false and leave the state untouched.
func (t *Tracker) Update(p *core.Packet) (events []core.Event, cont core.ContinuousSignals, ok bool) {
	if t.Check(p) != nil {
		return nil, core.ContinuousSignals{}, false
	}

	mech := p.Mechanics()

	events = t.diffLeds(p.Leds, events)
	if p.Payload != nil {
		events = t.diffPayload(p.Payload, mech, events)
	}
	if mech.HasGearPos {
		events = t.diffGear(mech.GearPos, events)
	}

	if mech.HasWow && mech.OnGround() && p.Flight != nil {
		events = append(events, core.GroundWobble{
			GLateral:      p.Flight.GZ,
			GVertical:     p.Flight.GY - 1,
			GLongitudinal: p.Flight.GX,
		})
	}
	if p.Flight != nil && p.Flight.AOA > t.cfg.AoaOnset {
		events = append(events, core.AoaExceeded{AoaDegrees: p.Flight.AOA})
	}

	if mech.HasWow && mech.HasRod && t.hasWow && t.hasStrut && !t.wow && mech.OnGround() {
		rate := mech.StrutCompression() - t.strut
		if rate > t.cfg.TouchdownThreshold {
			events = append(events, core.TouchdownImpact{CompressionRate: rate})
		}
	}

	cont = continuous(p, mech)
	t.commit(p, mech)
	return events, cont, true
}

func (t *Tracker) diffLeds(leds map[string]core.LedValue, events []core.Event) []core.Event {
	for _, name := range slices.Sorted(maps.Keys(leds)) {
		if core.IsMechanicsKey(name) {
			continue
		}
		v := leds[name]
		if prev, ok := t.leds[name]; !ok || prev != v {
			events = append(events, core.LedChanged{Name: name, Value: v})
		}
	}
	return events
}

func (t *Tracker) diffPayload(p *core.Payload, mech core.Mechanics, events []core.Event) []core.Event {
	if p.HasCannonAmmo && t.hasAmmo && p.CannonAmmo < t.ammo {
		events = append(events, core.AmmoDecreased{Delta: t.ammo - p.CannonAmmo})
	}

	if !t.hasPayload {
		return events
	}
	if t.cfg.SuppressReleaseOnGround && mech.HasWow && mech.OnGround() {
		return events
	}

	for _, id := range slices.Sorted(maps.Keys(t.stations)) {
		prior := t.stations[id]
		current := p.Stations[id] // missing station counts as empty
		if current.Count >= prior.Count {
			continue
		}

		clsid := prior.CLSID
		if clsid == "" {
			clsid = current.CLSID
		}
		events = append(events, core.StationCountDecreased{
			StationID:  id,
			Prior:      prior.Count,
			New:        current.Count,
			UnitWeight: t.unitWeight(clsid, prior, current),
			CLSID:      clsid,
		})
	}
	return events
}

// unitWeight resolves the weight table first, then the exported station weight.
func (t *Tracker) unitWeight(clsid string, prior, current core.Station) float64 {
	if clsid != "" {
		if kg, ok := t.cfg.Weights[strings.ToLower(clsid)]; ok {
			return kg
		}
	}
	if prior.Weight > 0 {
		return prior.Weight
	}
	return current.Weight
}

func (t *Tracker) diffGear(pos float64, events []core.Event) []core.Event {
	moving := !t.hasGear || pos != t.gearPos
	if pos > 0 && pos < 1 && moving {
		events = append(events, core.GearTransit{Position: pos})
	}
	if t.hasGear && t.gearPos < GearLockThreshold && pos >= GearLockThreshold {
		events = append(events, core.GearLocked{})
	}
	return events
}

func continuous(p *core.Packet, mech core.Mechanics) core.ContinuousSignals {
	var c core.ContinuousSignals
	if p.Flight != nil {
		c.HasFlight = true
		c.AoaDegrees = p.Flight.AOA
		c.GX, c.GY, c.GZ = p.Flight.GX, p.Flight.GY, p.Flight.GZ
	}
	if mech.HasWow {
		c.HasWow = true
		c.WeightOnWheels = mech.OnGround()
	}
	if mech.HasRod {
		c.HasStrut = true
		c.StrutCompression = mech.StrutCompression()
	}
	if mech.HasGearPos {
		c.HasGear = true
		c.GearPosition = mech.GearPos
	}
	return c
}

func (t *Tracker) commit(p *core.Packet, mech core.Mechanics) {
	t.accepted = true
	t.lastFrame = p.Frame
	t.lastAccepted = t.now()

	for name, v := range p.Leds {
		t.leds[name] = v
	}

	if p.Payload != nil {
		if p.Payload.HasCannonAmmo {
			t.ammo, t.hasAmmo = p.Payload.CannonAmmo, true
		}
		stations := make(map[int]core.Station, len(p.Payload.Stations))
		for id, st := range p.Payload.Stations {
			if st.CLSID == "" {
				st.CLSID = t.stations[id].CLSID
			}
			stations[id] = st
		}
		t.stations = stations
		t.hasPayload = true
	}

	if mech.HasGearPos {
		t.gearPos, t.hasGear = mech.GearPos, true
	}
	if mech.HasWow {
		t.wow, t.hasWow = mech.OnGround(), true
	}
	if mech.HasRod {
		t.strut, t.hasStrut = mech.StrutCompression(), true
	}
}
