package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

func writeBackup(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name+dbExt)
	require.NoError(t, os.WriteFile(path, []byte("db"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+configExt), []byte("name: x"), 0o644))
	ts := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, ts, ts))
	return path
}

func TestListBackups(t *testing.T) {
	dir := t.TempDir()
	backups, err := listBackups(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, backups)

	older := writeBackup(t, dir, "a", 2*time.Hour)
	newer := writeBackup(t, dir, "b", time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	backups, err = listBackups(dir)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, newer, backups[0].Path)
	assert.Equal(t, older, backups[1].Path)
}

func TestApplyRetention_Tiers(t *testing.T) {
	dir := t.TempDir()
	policy := RetentionPolicy{Hourly: 2, Daily: 1, Weekly: 1, Monthly: 1}

	var hourly []string
	for i := 1; i <= 4; i++ {
		hourly = append(hourly, writeBackup(t, dir, fmt.Sprintf("h%d", i), time.Duration(i)*time.Hour))
	}
	day2 := writeBackup(t, dir, "d2", 2*24*time.Hour)
	day3 := writeBackup(t, dir, "d3", 3*24*time.Hour)
	week := writeBackup(t, dir, "w", 10*24*time.Hour)
	month := writeBackup(t, dir, "m", 60*24*time.Hour)
	ancient := writeBackup(t, dir, "old", 400*24*time.Hour)

	removed, err := applyRetention(dir, policy, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	for _, kept := range []string{hourly[0], hourly[1], day2, week, month} {
		assert.FileExists(t, kept)
	}
	for _, gone := range []string{hourly[2], hourly[3], day3, ancient} {
		assert.NoFileExists(t, gone)
		assert.NoFileExists(t, gone[:len(gone)-len(dbExt)]+configExt, "config copy is pruned with its database")
	}
}

func TestConfigFrom_FillsDefaults(t *testing.T) {
	cfg := ConfigFrom(config.BackupConfig{Dir: "/b", Interval: time.Hour, KeepDaily: 3})
	assert.Equal(t, "/b", cfg.Dir)
	assert.Equal(t, 3, cfg.Retention.Daily)
	assert.Equal(t, DefaultRetention().Hourly, cfg.Retention.Hourly)
	assert.Equal(t, DefaultRetention().Monthly, cfg.Retention.Monthly)
}

func newTestService(t *testing.T) (*Service, *world.Registry) {
	t.Helper()
	log := logger.NewNop()
	registry, err := world.NewRegistry(t.TempDir(), world.SQLiteStores(nil, log), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	svc, err := NewService(registry, Config{Dir: t.TempDir()}, log)
	require.NoError(t, err)
	return svc, registry
}

func TestService_BackupWorld(t *testing.T) {
	ctx := context.Background()
	svc, registry := newTestService(t)

	h, err := registry.Create(ctx, types.WorldConfig{Name: "Ceres", Description: "An asteroid colony"})
	require.NoError(t, err)
	require.NoError(t, h.Store.InsertArticle(ctx, &types.Article{ID: "a1", Title: "Ceres Station", Content: "A mining hub."}))

	res, err := svc.BackupWorld(ctx, "Ceres")
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Positive(t, res.Size)
	assert.FileExists(t, res.Path)
	require.NotEmpty(t, res.ConfigPath)
	cfgData, err := os.ReadFile(res.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(cfgData), "An asteroid colony")
	assert.False(t, svc.LastBackup().IsZero())

	backups, err := svc.List("Ceres")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, res.Path, backups[0].Path)

	// The copy is a readable world database.
	require.NoError(t, verifyBackup(ctx, res.Path))
}

func TestService_BackupErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.BackupWorld(ctx, "Nowhere")
	assert.ErrorIs(t, err, world.ErrWorldNotFound)

	_, err = svc.List("../etc")
	assert.ErrorIs(t, err, world.ErrInvalidWorldName)
}

func TestService_BackupAll(t *testing.T) {
	ctx := context.Background()
	svc, registry := newTestService(t)

	for _, name := range []string{"Alpha", "Beta"} {
		_, err := registry.Create(ctx, types.WorldConfig{Name: name})
		require.NoError(t, err)
	}
	// A world directory without a database is reported but does not stop the others.
	require.NoError(t, os.MkdirAll(registry.Dir("Empty"), 0o755))

	results, err := svc.BackupAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDatabase)
	assert.Len(t, results, 2)
}

func TestNewService_RequiresDir(t *testing.T) {
	_, err := NewService(nil, Config{}, nil)
	assert.Error(t, err)
}
