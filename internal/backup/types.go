// Package backup takes verified point-in-time copies of world databases and
// prunes them with a tiered retention policy.
package backup

import (
	"errors"
	"time"

	"github.com/scrypster/lorewiki/internal/config"
)

// ErrNoDatabase is returned for a world without a local SQLite database.
var ErrNoDatabase = errors.New("world has no local database")

// RetentionPolicy defines how many backups to keep at each tier.
// Backups are categorized by age:
// - Hourly: backups less than 24 hours old
// - Daily: backups between 1-7 days old
// - Weekly: backups between 7-30 days old
// - Monthly: backups between 30-365 days old
type RetentionPolicy struct {
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
}

// DefaultRetention keeps a day of hourly backups and a year of monthlies.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

// Config holds backup service configuration.
type Config struct {
	// Dir holds one subdirectory of backups per world.
	Dir string

	// Interval is the time between scheduled backups of every world.
	Interval time.Duration

	Retention RetentionPolicy
}

// ConfigFrom converts process configuration, filling zero tiers with
// DefaultRetention.
func ConfigFrom(cfg config.BackupConfig) Config {
	d := DefaultRetention()
	keep := func(n, def int) int {
		if n <= 0 {
			return def
		}
		return n
	}
	return Config{
		Dir:      cfg.Dir,
		Interval: cfg.Interval,
		Retention: RetentionPolicy{
			Hourly:  keep(cfg.KeepHourly, d.Hourly),
			Daily:   keep(cfg.KeepDaily, d.Daily),
			Weekly:  keep(cfg.KeepWeekly, d.Weekly),
			Monthly: keep(cfg.KeepMonthly, d.Monthly),
		},
	}
}

// Info describes one stored backup.
type Info struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result describes a completed backup.
type Result struct {
	World      string        `json:"world"`
	Path       string        `json:"path"`
	ConfigPath string        `json:"config_path,omitempty"`
	Size       int64         `json:"size"`
	Verified   bool          `json:"verified"`
	Duration   time.Duration `json:"duration_ms"`
}
