package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finqueue/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformBackupProducesReadableCopy(t *testing.T) {
	db, dbPath := newTestDB(t)
	entry := insertTestEntry(t, db, "backed up")

	backupDir := filepath.Join(t.TempDir(), "backups")
	logger := zerolog.Nop()
	svc := NewBackupService(dbPath, config.BackupConfig{
		Enabled:     true,
		StoragePath: backupDir,
	}, &logger)

	require.NoError(t, svc.PerformBackup())

	files, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	restored, err := NewDB(filepath.Join(backupDir, files[0].Name()))
	require.NoError(t, err)
	defer restored.Close()

	entries, err := restored.GetAllEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.JSONEq(t, string(entry.Payload), string(entries[0].Payload))
}

func TestCleanupOldBackups(t *testing.T) {
	backupDir := t.TempDir()

	old := filepath.Join(backupDir, "queue_20200101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("stale"), 0o644))
	past := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(old, past, past))

	fresh := filepath.Join(backupDir, "queue_recent.db")
	require.NoError(t, os.WriteFile(fresh, []byte("fresh"), 0o644))

	logger := zerolog.Nop()
	svc := NewBackupService("", config.BackupConfig{
		Enabled:       true,
		RetentionDays: 7,
		StoragePath:   backupDir,
	}, &logger)
	svc.CleanupOldBackups()

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestBackupFallbackCopiesFile(t *testing.T) {
	db, dbPath := newTestDB(t)
	insertTestEntry(t, db, "fallback")
	require.NoError(t, db.Close())

	backupDir := t.TempDir()
	logger := zerolog.Nop()
	svc := NewBackupService(dbPath, config.BackupConfig{StoragePath: backupDir}, &logger)

	dest := filepath.Join(backupDir, "copy.db")
	require.NoError(t, svc.performBackupFallback(dest))

	restored, err := NewDB(dest)
	require.NoError(t, err)
	defer restored.Close()

	entries, err := restored.GetAllEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
