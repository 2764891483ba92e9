package gormstorage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/winghaptics/wwbridge/pkg/core"
)

// SessionRecord is the persisted form of core.Session.
type SessionRecord struct {
	ID          string    `gorm:"primaryKey;size:36"`
	StartedAt   time.Time `gorm:"index"`
	EndedAt     time.Time
	DurationMs  int64
	Aircraft    string `gorm:"size:64;index"`
	Packets     uint64
	Malformed   uint64
	Coalesced   uint64
	Stale       uint64
	EventCounts datatypes.JSONMap
	PeakMotor   float64
	WriteErrors uint64
}

func (SessionRecord) TableName() string { return "sessions" }

// StatusSample is one persisted status line.
type StatusSample struct {
	ID          uint      `gorm:"primaryKey"`
	Time        time.Time `gorm:"index"`
	State       string    `gorm:"size:16"`
	Aircraft    string    `gorm:"size:64"`
	Packets     uint64
	Valid       uint64
	Malformed   uint64
	Coalesced   uint64
	LastSeenMs  int64
	Connected   bool
	TickRate    float64
	WriteErrors uint64
	Motor       float64
}

func (StatusSample) TableName() string { return "status_samples" }

// Models lists every table migrated by the backend.
var Models = []any{&SessionRecord{}, &StatusSample{}}

// SessionToRecord converts a core session.
func SessionToRecord(s *core.Session) SessionRecord {
	counts := make(datatypes.JSONMap, len(s.EventCounts))
	for k, v := range s.EventCounts {
		counts[k] = v
	}
	return SessionRecord{
		ID:          s.ID.String(),
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		DurationMs:  s.Duration().Milliseconds(),
		Aircraft:    s.Aircraft,
		Packets:     s.Packets,
		Malformed:   s.Malformed,
		Coalesced:   s.Coalesced,
		Stale:       s.Stale,
		EventCounts: counts,
		PeakMotor:   s.PeakMotor,
		WriteErrors: s.WriteErrors,
	}
}

// RecordToSession converts a stored row back. Event counts read back from
// JSON arrive as float64.
func RecordToSession(r SessionRecord) core.Session {
	id, _ := uuid.Parse(r.ID)
	counts := make(map[string]int, len(r.EventCounts))
	for k, v := range r.EventCounts {
		switch n := v.(type) {
		case float64:
			counts[k] = int(n)
		case int:
			counts[k] = n
		case int64:
			counts[k] = int(n)
		}
	}
	return core.Session{
		ID:          id,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		Aircraft:    r.Aircraft,
		Packets:     r.Packets,
		Malformed:   r.Malformed,
		Coalesced:   r.Coalesced,
		Stale:       r.Stale,
		EventCounts: counts,
		PeakMotor:   r.PeakMotor,
		WriteErrors: r.WriteErrors,
	}
}

// StatusToSample converts a status line.
func StatusToSample(s core.BridgeStatus) StatusSample {
	return StatusSample{
		Time:        s.Time,
		State:       s.State,
		Aircraft:    s.Aircraft,
		Packets:     s.Packets,
		Valid:       s.Valid,
		Malformed:   s.Malformed,
		Coalesced:   s.Coalesced,
		LastSeenMs:  s.LastSeenAge.Milliseconds(),
		Connected:   s.Connected,
		TickRate:    s.TickRate,
		WriteErrors: s.WriteErrors,
		Motor:       s.Motor,
	}
}
