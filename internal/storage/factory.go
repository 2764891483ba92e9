package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/storage/memory"
	"github.com/winghaptics/wwbridge/internal/storage/postgres"
	sqlitestorage "github.com/winghaptics/wwbridge/internal/storage/sqlite"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, log *slog.Logger, dbLog zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(cfg.Postgres, log, dbLog, postgres.WithFallbackDump(cfg.Sqlite.DumpPath)), nil
	case "sqlite":
		return sqlitestorage.New(cfg.Sqlite, log)
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
