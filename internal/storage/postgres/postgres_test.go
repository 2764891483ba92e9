package postgres

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/database"
	gormstorage "github.com/winghaptics/wwbridge/internal/storage/gorm"
	"github.com/winghaptics/wwbridge/pkg/core"
)

func unreachable() config.PostgresConfig {
	return config.PostgresConfig{Host: "127.0.0.1", Port: "1", Username: "postgres", Password: "postgres", Database: "wwbridge"}
}

func TestBackend_NotInitialized(t *testing.T) {
	b := New(unreachable(), nil, zerolog.Nop())

	assert.ErrorIs(t, b.SaveSession(core.NewSession("F-16C_50", time.Now())), errNotInitialized)
	assert.ErrorIs(t, b.RecordStatus(core.BridgeStatus{}), errNotInitialized)
	_, err := b.Sessions(10)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, b.Close())
}

func TestBackend_FallsBackAndDumps(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "fallback.db")
	b := New(unreachable(), nil, zerolog.Nop(), WithFallbackDump(dump))
	require.NoError(t, b.Init())
	assert.True(t, b.Fallback())

	s := core.NewSession("F-16C_50", time.Now())
	s.EndedAt = s.StartedAt.Add(time.Minute)
	require.NoError(t, b.SaveSession(s))

	got, err := b.Sessions(0)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	require.NoError(t, b.Close())

	db, err := database.OpenSqlite(dump)
	require.NoError(t, err)
	var rec gormstorage.SessionRecord
	require.NoError(t, db.First(&rec, "id = ?", s.ID.String()).Error)
	assert.Equal(t, "F-16C_50", rec.Aircraft)
}
