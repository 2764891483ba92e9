package influx

import (
	"fmt"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/winghaptics/wwbridge/internal/dispatcher"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// StatusPoint renders a status sample as a bridge_status point.
func StatusPoint(s core.BridgeStatus) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		"bridge_status",
		map[string]string{
			"state":    s.State,
			"aircraft": tagValue(s.Aircraft),
		},
		map[string]any{
			"packets":      int64(s.Packets),
			"valid":        int64(s.Valid),
			"malformed":    int64(s.Malformed),
			"coalesced":    int64(s.Coalesced),
			"last_seen_ms": s.LastSeenAge.Milliseconds(),
			"connected":    s.Connected,
			"tick_rate":    s.TickRate,
			"write_errors": int64(s.WriteErrors),
			"motor":        s.Motor,
		},
		s.Time,
	)
}

// FramePoint renders a frame as a motor_output point.
func FramePoint(f core.FrameSnapshot) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		"motor_output",
		map[string]string{
			"aircraft": tagValue(f.Aircraft.String()),
		},
		map[string]any{
			"frame":    int64(f.Frame),
			"throttle": f.Motors.Throttle,
			"joystick": f.Motors.Joystick,
			"effects":  len(f.Effects),
			"events":   len(f.Events),
		},
		f.Time,
	)
}

// SessionPoint renders a finished session as a session point.
func SessionPoint(s *core.Session) *influxdb2_write.Point {
	fields := map[string]any{
		"duration_sec": s.Duration().Seconds(),
		"packets":      int64(s.Packets),
		"malformed":    int64(s.Malformed),
		"coalesced":    int64(s.Coalesced),
		"stale":        int64(s.Stale),
		"write_errors": int64(s.WriteErrors),
		"peak_motor":   s.PeakMotor,
	}
	for kind, n := range s.EventCounts {
		fields["events_"+kind] = n
	}
	return influxdb2_write.NewPoint(
		"session",
		map[string]string{
			"aircraft": tagValue(s.Aircraft),
			"id":       s.ID.String(),
		},
		fields,
		s.EndedAt,
	)
}

func tagValue(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// StatusHandler writes status samples to the performance bucket.
func StatusHandler(m *Manager) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		s, ok := e.Payload.(core.BridgeStatus)
		if !ok {
			return fmt.Errorf("unexpected status payload %T", e.Payload)
		}
		return m.WritePoint(BucketPerformance, StatusPoint(s))
	}
}

// SessionHandler writes finished sessions to the performance bucket.
func SessionHandler(m *Manager) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		s, ok := e.Payload.(*core.Session)
		if !ok {
			return fmt.Errorf("unexpected session payload %T", e.Payload)
		}
		return m.WritePoint(BucketPerformance, SessionPoint(s))
	}
}

// FrameHandler writes frames that carry events or motor output to the haptics bucket.
// Quiet frames are skipped.
func FrameHandler(m *Manager) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		f, ok := e.Payload.(core.FrameSnapshot)
		if !ok {
			return fmt.Errorf("unexpected frame payload %T", e.Payload)
		}
		if len(f.Events) == 0 && f.Motors.Throttle == 0 && f.Motors.Joystick == 0 {
			return nil
		}
		return m.WritePoint(BucketHaptics, FramePoint(f))
	}
}
