package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/database"
	gormstorage "github.com/winghaptics/wwbridge/internal/storage/gorm"
	"github.com/winghaptics/wwbridge/pkg/core"
)

func TestBackend_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wwbridge.db")
	b, err := New(config.SqliteConfig{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	s := core.NewSession("FA-18C_hornet", time.Now())
	s.EndedAt = s.StartedAt.Add(time.Minute)
	require.NoError(t, b.SaveSession(s))
	require.NoError(t, b.Close())

	db, err := database.OpenSqlite(path)
	require.NoError(t, err)
	var n int64
	require.NoError(t, db.Model(&gormstorage.SessionRecord{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestBackend_DumpOnClose(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.db")
	b, err := New(config.SqliteConfig{Path: filepath.Join(dir, "live.db"), DumpPath: dump}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordStatus(core.BridgeStatus{State: "active", Motor: 0.4}))
	require.NoError(t, b.Close())

	db, err := database.OpenSqlite(dump)
	require.NoError(t, err)
	var rows []gormstorage.StatusSample
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.4, rows[0].Motor)
}

func TestBackend_PeriodicDump(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "periodic.db")
	b, err := New(config.SqliteConfig{
		Path:         filepath.Join(dir, "live.db"),
		DumpPath:     dump,
		DumpInterval: 10 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool {
		return fileExists(dump)
	}, time.Second, 5*time.Millisecond)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
