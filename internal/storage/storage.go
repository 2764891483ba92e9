// Package storage persists session summaries and status samples.
package storage

import (
	"fmt"

	"github.com/winghaptics/wwbridge/internal/dispatcher"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// SaveSession stores a finished session.
	SaveSession(s *core.Session) error
	// RecordStatus stores one periodic status sample.
	RecordStatus(s core.BridgeStatus) error
	// Sessions returns up to limit sessions, newest first.
	Sessions(limit int) ([]core.Session, error)
}

// SessionHandler adapts a backend to the dispatcher's session topic.
func SessionHandler(b Backend) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		s, ok := e.Payload.(*core.Session)
		if !ok {
			return fmt.Errorf("unexpected session payload %T", e.Payload)
		}
		return b.SaveSession(s)
	}
}

// StatusHandler adapts a backend to the dispatcher's status topic.
func StatusHandler(b Backend) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		s, ok := e.Payload.(core.BridgeStatus)
		if !ok {
			return fmt.Errorf("unexpected status payload %T", e.Payload)
		}
		return b.RecordStatus(s)
	}
}
