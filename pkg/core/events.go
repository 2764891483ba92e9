// pkg/core/events.go
package core

import "fmt"

// EventKind identifies an Event variant.
type EventKind uint8

const (
	KindLedChanged EventKind = iota + 1
	KindAmmoDecreased
	KindStationCountDecreased
	KindGearTransit
	KindGearLocked
	KindGroundWobble
	KindAoaExceeded
	KindTouchdownImpact
)

var eventKindNames = map[EventKind]string{
	KindLedChanged:            "led_changed",
	KindAmmoDecreased:         "ammo_decreased",
	KindStationCountDecreased: "station_count_decreased",
	KindGearTransit:           "gear_transit",
	KindGearLocked:            "gear_locked",
	KindGroundWobble:          "ground_wobble",
	KindAoaExceeded:           "aoa_exceeded",
	KindTouchdownImpact:       "touchdown_impact",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Continuous reports whether the kind is re-emitted every tick while its condition holds.
func (k EventKind) Continuous() bool {
	switch k {
	case KindGearTransit, KindGroundWobble, KindAoaExceeded:
		return true
	}
	return false
}

// Event is one state transition detected by the tracker.
type Event interface {
	Kind() EventKind
}

// LedChanged is emitted when a cockpit light changes value.
type LedChanged struct {
	Name  string
	Value LedValue
}

// AmmoDecreased is emitted when the cannon round count drops.
type AmmoDecreased struct {
	Delta int
}

// StationCountDecreased is emitted per pylon whose store count dropped.
type StationCountDecreased struct {
	StationID  int
	Prior      int
	New        int
	UnitWeight float64 // kg, 0 when unknown
	CLSID      string
}

// GearTransit is emitted every tick while the gear is moving.
type GearTransit struct {
	Position float64
}

// GearLocked is emitted once when the gear reaches the locked position.
type GearLocked struct{}

// GroundWobble carries accelerations while weight is on wheels.
type GroundWobble struct {
	GLateral      float64
	GVertical     float64 // deviation from 1G
	GLongitudinal float64
}

// AoaExceeded is emitted every tick while angle of attack is above the buffet onset.
type AoaExceeded struct {
	AoaDegrees float64
}

// TouchdownImpact is emitted once on the tick the main gear takes weight.
type TouchdownImpact struct {
	CompressionRate float64
}

func (LedChanged) Kind() EventKind            { return KindLedChanged }
func (AmmoDecreased) Kind() EventKind         { return KindAmmoDecreased }
func (StationCountDecreased) Kind() EventKind { return KindStationCountDecreased }
func (GearTransit) Kind() EventKind           { return KindGearTransit }
func (GearLocked) Kind() EventKind            { return KindGearLocked }
func (GroundWobble) Kind() EventKind          { return KindGroundWobble }
func (AoaExceeded) Kind() EventKind           { return KindAoaExceeded }
func (TouchdownImpact) Kind() EventKind       { return KindTouchdownImpact }

// ContinuousSignals are forwarded every tick regardless of change.
type ContinuousSignals struct {
	HasFlight  bool
	AoaDegrees float64
	GX         float64
	GY         float64
	GZ         float64

	HasWow         bool
	WeightOnWheels bool

	HasStrut         bool
	StrutCompression float64

	HasGear      bool
	GearPosition float64
}

// DescribeEvent renders an event for debug output.
func DescribeEvent(e Event) string {
	switch ev := e.(type) {
	case LedChanged:
		return fmt.Sprintf("%s %s=%s", ev.Kind(), ev.Name, ev.Value)
	case AmmoDecreased:
		return fmt.Sprintf("%s delta=%d", ev.Kind(), ev.Delta)
	case StationCountDecreased:
		return fmt.Sprintf("%s station=%d %d->%d weight=%.0fkg clsid=%s",
			ev.Kind(), ev.StationID, ev.Prior, ev.New, ev.UnitWeight, ev.CLSID)
	case GearTransit:
		return fmt.Sprintf("%s pos=%.2f", ev.Kind(), ev.Position)
	case GroundWobble:
		return fmt.Sprintf("%s lat=%.2fG vert=%.2fG long=%.2fG", ev.Kind(), ev.GLateral, ev.GVertical, ev.GLongitudinal)
	case AoaExceeded:
		return fmt.Sprintf("%s aoa=%.1f", ev.Kind(), ev.AoaDegrees)
	case TouchdownImpact:
		return fmt.Sprintf("%s rate=%.3f", ev.Kind(), ev.CompressionRate)
	case nil:
		return "<nil>"
	default:
		return e.Kind().String()
	}
}
