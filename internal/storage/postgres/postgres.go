// Package postgres implements the storage.Backend interface on PostgreSQL.
// When the server cannot be reached it falls back to an in-memory SQLite
// database which is dumped to disk on Close.
package postgres

import (
	"errors"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/database"
	gormstorage "github.com/winghaptics/wwbridge/internal/storage/gorm"
	"github.com/winghaptics/wwbridge/pkg/core"
)

var errNotInitialized = errors.New("postgres backend not initialized")

// Option configures a Backend.
type Option func(*Backend)

// WithFallbackDump sets where the SQLite fallback database is written on Close.
func WithFallbackDump(path string) Option {
	return func(b *Backend) {
		b.fallbackDump = path
	}
}

// Backend implements storage.Backend using GORM/PostgreSQL.
type Backend struct {
	cfg          config.PostgresConfig
	log          *slog.Logger
	manager      *database.Manager
	fallbackDump string

	inner *gormstorage.Backend
}

// New creates a Postgres backend. No connection is made until Init.
func New(cfg config.PostgresConfig, log *slog.Logger, dbLog zerolog.Logger, opts ...Option) *Backend {
	if log == nil {
		log = slog.Default()
	}
	b := &Backend{
		cfg:     cfg,
		log:     log,
		manager: database.NewManager(dbLog),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init connects, migrates the schema and starts the status writer.
func (b *Backend) Init() error {
	if err := b.manager.Connect(b.cfg); err != nil {
		return err
	}
	b.inner = gormstorage.New(gormstorage.Dependencies{DB: b.manager.DB, Logger: b.log})
	return b.inner.Init()
}

// Fallback reports whether the backend is running on the local SQLite database.
func (b *Backend) Fallback() bool {
	return b.manager.ShouldSaveLocal
}

// Close flushes, dumps the fallback database when in use and disconnects.
func (b *Backend) Close() error {
	if b.inner == nil {
		return nil
	}
	err := b.inner.Close()

	if b.manager.ShouldSaveLocal && b.fallbackDump != "" {
		if d, dumpErr := database.DumpToDisk(b.manager.DB, b.fallbackDump); dumpErr != nil {
			err = errors.Join(err, dumpErr)
		} else {
			b.log.Info("Saved local fallback database", "path", b.fallbackDump, "duration", d)
		}
	}

	return errors.Join(err, b.manager.Close())
}

// SaveSession upserts the session row.
func (b *Backend) SaveSession(s *core.Session) error {
	if b.inner == nil {
		return errNotInitialized
	}
	return b.inner.SaveSession(s)
}

// RecordStatus queues a status sample.
func (b *Backend) RecordStatus(s core.BridgeStatus) error {
	if b.inner == nil {
		return errNotInitialized
	}
	return b.inner.RecordStatus(s)
}

// Sessions returns up to limit sessions, newest first.
func (b *Backend) Sessions(limit int) ([]core.Session, error) {
	if b.inner == nil {
		return nil, errNotInitialized
	}
	return b.inner.Sessions(limit)
}
