// Package memory keeps sessions in memory and exports each finished session to a JSON file.
package memory

import (
	"slices"
	"sync"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/queue"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// StatusLimit is how many status samples are retained.
const StatusLimit = 2048

// Backend stores sessions in memory and exports them to JSON
type Backend struct {
	cfg      config.MemoryConfig
	sessions []core.Session
	statuses *queue.Queue[core.BridgeStatus]

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		statuses: queue.NewBounded[core.BridgeStatus](StatusLimit),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// SaveSession keeps a copy of the session and exports it when OutputDir is set.
func (b *Backend) SaveSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	cp.EventCounts = make(map[string]int, len(s.EventCounts))
	for k, v := range s.EventCounts {
		cp.EventCounts[k] = v
	}

	if i := slices.IndexFunc(b.sessions, func(x core.Session) bool { return x.ID == s.ID }); i >= 0 {
		b.sessions[i] = cp
	} else {
		b.sessions = append(b.sessions, cp)
	}

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON(&cp)
}

// RecordStatus retains the sample, dropping the oldest beyond StatusLimit.
func (b *Backend) RecordStatus(s core.BridgeStatus) error {
	b.statuses.Push(s)
	return nil
}

// Sessions returns up to limit sessions, newest first. A limit of zero or less returns all of them.
func (b *Backend) Sessions(limit int) ([]core.Session, error) {
	b.mu.RLock()
	out := slices.Clone(b.sessions)
	b.mu.RUnlock()

	slices.SortStableFunc(out, func(a, c core.Session) int {
		return c.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Statuses returns the retained status samples, oldest first.
func (b *Backend) Statuses() []core.BridgeStatus {
	items := b.statuses.GetAndEmpty()
	b.statuses.Requeue(items)
	return items
}

// GetExportedFilePath returns the path to the last exported file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
