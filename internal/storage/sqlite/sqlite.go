// Package sqlitestorage implements the storage.Backend interface on SQLite.
// It wraps the GORM backend; an in-memory database is dumped to disk
// periodically via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/database"
	gormstorage "github.com/winghaptics/wwbridge/internal/storage/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SqliteConfig
	log      *slog.Logger
	started  bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// New opens cfg.Path, or an in-memory database when it is empty.
func New(cfg config.SqliteConfig, log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := database.OpenSqlite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, Logger: log}),
		db:       db,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (b *Backend) dumping() bool {
	return b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.started = true
	if b.dumping() {
		go b.dumpLoop()
	} else {
		close(b.done)
	}

	return nil
}

// Close stops the dump goroutine, flushes, writes a final dump and closes the database.
func (b *Backend) Close() error {
	if b.started {
		b.stopOnce.Do(func() { close(b.stopChan) })
		<-b.done
	}

	err := b.Backend.Close()
	if b.cfg.DumpPath != "" {
		if _, dumpErr := database.DumpToDisk(b.db, b.cfg.DumpPath); dumpErr != nil && err == nil {
			err = dumpErr
		}
	}
	if sqlDB, dbErr := b.db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	return err
}

// dumpLoop periodically dumps the database to disk via VACUUM INTO.
func (b *Backend) dumpLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Error("Status flush before dump failed", "error", err)
			}
			if d, err := database.DumpToDisk(b.db, b.cfg.DumpPath); err != nil {
				b.log.Error("Error dumping SQLite DB to disk", "error", err)
			} else {
				b.log.Debug("Dumped SQLite DB to disk", "path", b.cfg.DumpPath, "duration", d)
			}
		}
	}
}
