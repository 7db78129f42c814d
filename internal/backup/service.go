package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/world"
)

// Service backs up the SQLite database and world.yaml of every world in a
// registry.
type Service struct {
	registry  *world.Registry
	dir       string
	interval  time.Duration
	retention RetentionPolicy
	log       *logger.Logger

	mu         sync.Mutex
	lastBackup time.Time
}

// NewService creates the backup directory and returns a service writing to it.
func NewService(registry *world.Registry, cfg Config, log *logger.Logger) (*Service, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.Retention == (RetentionPolicy{}) {
		cfg.Retention = DefaultRetention()
	}
	if log == nil {
		log = logger.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &Service{
		registry:  registry,
		dir:       cfg.Dir,
		interval:  cfg.Interval,
		retention: cfg.Retention,
		log:       log,
	}, nil
}

// Run backs up every world each interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("backup service started", "interval", s.interval, "dir", s.dir)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("backup service stopped")
			return
		case <-ticker.C:
			results, err := s.BackupAll(ctx)
			if err != nil {
				s.log.Error("scheduled backup failed", "error", err)
			}
			s.log.Info("scheduled backup completed", "worlds", len(results))
		}
	}
}

// BackupAll backs up every world. Failures do not stop the remaining worlds;
// they are joined into the returned error.
func (s *Service) BackupAll(ctx context.Context) ([]*Result, error) {
	names, err := s.registry.List()
	if err != nil {
		return nil, err
	}
	var (
		results []*Result
		errs    []error
	)
	for _, name := range names {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := s.BackupWorld(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("world %s: %w", name, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// BackupWorld writes a verified copy of a world's database, and of its
// world.yaml when present, then prunes the world's older backups.
func (s *Service) BackupWorld(ctx context.Context, name string) (*Result, error) {
	if !s.registry.Exists(name) {
		return nil, fmt.Errorf("%w: %s", world.ErrWorldNotFound, name)
	}
	start := time.Now()
	srcDir := s.registry.Dir(name)
	dbPath := filepath.Join(srcDir, world.DatabaseFile)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDatabase, name)
	}

	destDir := filepath.Join(s.dir, name)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	base := fmt.Sprintf("%s-%s", name, start.UTC().Format("20060102-150405.000000"))
	res := &Result{World: name, Path: filepath.Join(destDir, base+dbExt)}

	if err := backupSQLite(ctx, dbPath, res.Path); err != nil {
		return nil, err
	}
	if err := verifyBackup(ctx, res.Path); err != nil {
		_ = os.Remove(res.Path)
		return nil, fmt.Errorf("verify backup: %w", err)
	}
	res.Verified = true

	cfgPath := filepath.Join(srcDir, world.ConfigFile)
	if _, err := os.Stat(cfgPath); err == nil {
		res.ConfigPath = filepath.Join(destDir, base+configExt)
		if err := copyFile(cfgPath, res.ConfigPath); err != nil {
			return nil, fmt.Errorf("copy %s: %w", world.ConfigFile, err)
		}
	}

	if info, err := os.Stat(res.Path); err == nil {
		res.Size = info.Size()
	}
	res.Duration = time.Since(start)

	s.mu.Lock()
	s.lastBackup = time.Now()
	s.mu.Unlock()

	if removed, err := applyRetention(destDir, s.retention, time.Now()); err != nil {
		s.log.Warn("backup retention failed", "world", name, "error", err)
	} else if removed > 0 {
		s.log.Debug("pruned old backups", "world", name, "removed", removed)
	}

	s.log.Info("world backed up", "world", name, "path", res.Path, "size", res.Size, "duration", res.Duration)
	return res, nil
}

// List returns the stored backups of a world, newest first.
func (s *Service) List(name string) ([]Info, error) {
	if err := world.ValidateName(name); err != nil {
		return nil, err
	}
	return listBackups(filepath.Join(s.dir, name))
}

// LastBackup is the completion time of the most recent successful backup.
func (s *Service) LastBackup() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBackup
}
