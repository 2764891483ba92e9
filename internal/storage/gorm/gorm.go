// Package gormstorage implements the storage.Backend interface on GORM with
// a queue of status samples flushed by a background writer goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/winghaptics/wwbridge/internal/queue"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// Writer defaults.
const (
	DefaultFlushInterval = 2 * time.Second
	DefaultQueueLimit    = 10000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// Backend implements storage.Backend with GORM.
type Backend struct {
	deps     Dependencies
	statuses *queue.Queue[StatusSample]

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:     deps,
		statuses: queue.NewBounded[StatusSample](DefaultQueueLimit),
	}
}

// Init migrates the schema and starts the status writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend has no database")
	}
	b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Dialector.Name())
	if err := b.deps.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer and flushes whatever is queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.done
	return b.Flush()
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SaveSession upserts the session row.
func (b *Backend) SaveSession(s *core.Session) error {
	rec := SessionToRecord(s)
	if err := b.deps.DB.Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	return nil
}

// RecordStatus queues a status sample for the next flush.
func (b *Backend) RecordStatus(s core.BridgeStatus) error {
	if dropped := b.statuses.Push(StatusToSample(s)); dropped > 0 {
		b.deps.Logger.Warn("Status queue full, dropped oldest samples", "dropped", dropped)
	}
	return nil
}

// Sessions returns up to limit sessions, newest first. A limit of zero or less returns all of them.
func (b *Backend) Sessions(limit int) ([]core.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	var recs []SessionRecord
	if err := b.deps.DB.Order("started_at desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]core.Session, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecordToSession(r))
	}
	return out, nil
}

// Pending returns the number of queued status samples.
func (b *Backend) Pending() int {
	return b.statuses.Len()
}

// Flush writes every queued status sample. Failed batches are requeued.
func (b *Backend) Flush() error {
	batch := b.statuses.GetAndEmpty()
	if len(batch) == 0 {
		return nil
	}
	if err := b.deps.DB.CreateInBatches(batch, 500).Error; err != nil {
		b.statuses.Requeue(batch)
		return fmt.Errorf("failed to write %d status samples: %w", len(batch), err)
	}
	return nil
}

func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("Status flush failed", "error", err)
			}
		}
	}
}
