// pkg/core/session.go
package core

import (
	"time"

	"github.com/google/uuid"
)

// Session is one run of continuous telemetry, from Idle->Active to Active->Idle.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time
	EndedAt   time.Time
	Aircraft  string

	Packets   uint64
	Malformed uint64
	Coalesced uint64
	Stale     uint64

	EventCounts map[string]int
	PeakMotor   float64
	WriteErrors uint64
}

// NewSession starts a session record.
func NewSession(aircraft string, start time.Time) *Session {
	return &Session{
		ID:          uuid.New(),
		StartedAt:   start,
		Aircraft:    aircraft,
		EventCounts: make(map[string]int),
	}
}

// Duration returns how long the session lasted, or has lasted so far.
func (s *Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// CountEvents adds the given events to the per-kind totals.
func (s *Session) CountEvents(events []Event) {
	for _, e := range events {
		s.EventCounts[e.Kind().String()]++
	}
}

// FrameSnapshot is the immutable per-tick record handed to observers.
type FrameSnapshot struct {
	Time     time.Time
	Frame    uint64
	Aircraft Aircraft
	Events   []Event
	Motors   MotorOutputState
	Leds     LedOutputState
	Effects  []HapticEffect
}

// BridgeStatus is the periodic health report of the running bridge.
type BridgeStatus struct {
	Time        time.Time
	State       string
	Aircraft    string
	Packets     uint64
	Valid       uint64
	Malformed   uint64
	Coalesced   uint64
	LastSeenAge time.Duration
	Connected   bool
	TickRate    float64
	WriteErrors uint64
	Motor       float64

	// Frame is the last accepted frame, PacketAge the time since it was accepted.
	Frame     uint64
	PacketAge time.Duration
}
