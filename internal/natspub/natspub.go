// Package natspub publishes sessions, status samples and discrete haptic
// events to NATS subjects under a configurable prefix.
package natspub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/dispatcher"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
	Flush() error
	Close()
}

type (
	Publisher struct {
		conn   Conn
		prefix string
		l      *slog.Logger
	}
	Option func(*Publisher)

	SessionMessage struct {
		ID          string         `json:"id"`
		Aircraft    string         `json:"aircraft"`
		StartedAt   time.Time      `json:"startedAt"`
		EndedAt     time.Time      `json:"endedAt"`
		DurationSec float64        `json:"durationSec"`
		Packets     uint64         `json:"packets"`
		Malformed   uint64         `json:"malformed"`
		Stale       uint64         `json:"stale"`
		PeakMotor   float64        `json:"peakMotor"`
		EventCounts map[string]int `json:"eventCounts"`
	}

	StatusMessage struct {
		Time        time.Time `json:"time"`
		State       string    `json:"state"`
		Aircraft    string    `json:"aircraft"`
		Packets     uint64    `json:"packets"`
		Malformed   uint64    `json:"malformed"`
		LastSeenMs  int64     `json:"lastSeenMs"`
		Connected   bool      `json:"connected"`
		TickRate    float64   `json:"tickRate"`
		WriteErrors uint64    `json:"writeErrors"`
		Motor       float64   `json:"motor"`
	}

	EventMessage struct {
		Time     time.Time `json:"time"`
		Frame    uint64    `json:"frame"`
		Aircraft string    `json:"aircraft"`
		Kind     string    `json:"kind"`
		Text     string    `json:"text"`
	}
)

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		p.l = l
	}
}

func WithPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

// Connect dials the configured server and returns a publisher on it.
func Connect(cfg config.NatsConfig, opts ...Option) (*Publisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("wwbridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.URL, err)
	}
	return New(conn, append([]Option{WithPrefix(cfg.SubjectPrefix)}, opts...)...), nil
}

func New(conn Conn, opts ...Option) *Publisher {
	ret := &Publisher{
		conn:   conn,
		prefix: "wwbridge",
		l:      slog.Default(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Subject returns the full subject for a suffix.
func (p *Publisher) Subject(suffix string) string {
	return p.prefix + "." + suffix
}

func (p *Publisher) Close() {
	if err := p.conn.Flush(); err != nil {
		p.l.Warn("Failed to flush nats connection", "error", err)
	}
	p.conn.Close()
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) PublishSession(s *core.Session) error {
	return p.publish(p.Subject("session"), SessionMessage{
		ID:          s.ID.String(),
		Aircraft:    s.Aircraft,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		DurationSec: s.Duration().Seconds(),
		Packets:     s.Packets,
		Malformed:   s.Malformed,
		Stale:       s.Stale,
		PeakMotor:   s.PeakMotor,
		EventCounts: s.EventCounts,
	})
}

func (p *Publisher) PublishStatus(s core.BridgeStatus) error {
	return p.publish(p.Subject("status"), StatusMessage{
		Time:        s.Time,
		State:       s.State,
		Aircraft:    s.Aircraft,
		Packets:     s.Packets,
		Malformed:   s.Malformed,
		LastSeenMs:  s.LastSeenAge.Milliseconds(),
		Connected:   s.Connected,
		TickRate:    s.TickRate,
		WriteErrors: s.WriteErrors,
		Motor:       s.Motor,
	})
}

// PublishFrame publishes the discrete events of a frame, one message each.
// Continuous events are skipped.
func (p *Publisher) PublishFrame(f core.FrameSnapshot) error {
	for _, ev := range f.Events {
		kind := ev.Kind()
		if kind.Continuous() {
			continue
		}
		msg := EventMessage{
			Time:     f.Time,
			Frame:    f.Frame,
			Aircraft: f.Aircraft.String(),
			Kind:     kind.String(),
			Text:     core.DescribeEvent(ev),
		}
		if err := p.publish(p.Subject("event."+kind.String()), msg); err != nil {
			return err
		}
	}
	return nil
}

// Handler routes dispatcher events to the matching publish method.
func (p *Publisher) Handler() dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		switch v := e.Payload.(type) {
		case *core.Session:
			return p.PublishSession(v)
		case core.BridgeStatus:
			return p.PublishStatus(v)
		case core.FrameSnapshot:
			return p.PublishFrame(v)
		default:
			return fmt.Errorf("unexpected %s payload %T", e.Topic, e.Payload)
		}
	}
}
