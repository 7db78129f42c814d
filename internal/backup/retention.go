package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	dbExt     = ".db"
	configExt = ".yaml"
)

// listBackups lists the database backups in dir, newest first. A missing
// directory has no backups.
func listBackups(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), dbExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// expired selects the backups the policy drops as of now. Backups older
// than a year are always dropped.
func expired(backups []Info, policy RetentionPolicy, now time.Time) []string {
	var hourly, daily, weekly, monthly, drop []string
	for _, b := range backups {
		age := now.Sub(b.Timestamp)
		switch {
		case age < 24*time.Hour:
			hourly = append(hourly, b.Path)
		case age < 7*24*time.Hour:
			daily = append(daily, b.Path)
		case age < 30*24*time.Hour:
			weekly = append(weekly, b.Path)
		case age < 365*24*time.Hour:
			monthly = append(monthly, b.Path)
		default:
			drop = append(drop, b.Path)
		}
	}

	overflow := func(tier []string, keep int) []string {
		if len(tier) > keep {
			return tier[keep:]
		}
		return nil
	}
	drop = append(drop, overflow(hourly, policy.Hourly)...)
	drop = append(drop, overflow(daily, policy.Daily)...)
	drop = append(drop, overflow(weekly, policy.Weekly)...)
	drop = append(drop, overflow(monthly, policy.Monthly)...)
	return drop
}

// applyRetention removes expired backups in dir along with their config
// copies. It keeps deleting after a failure and reports the last error.
func applyRetention(dir string, policy RetentionPolicy, now time.Time) (int, error) {
	backups, err := listBackups(dir)
	if err != nil {
		return 0, err
	}

	var lastErr error
	removed := 0
	for _, path := range expired(backups, policy, now) {
		if err := os.Remove(path); err != nil {
			lastErr = err
			continue
		}
		removed++
		_ = os.Remove(strings.TrimSuffix(path, dbExt) + configExt)
	}
	if lastErr != nil {
		return removed, fmt.Errorf("delete expired backups: %w", lastErr)
	}
	return removed, nil
}
