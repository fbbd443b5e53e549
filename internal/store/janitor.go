package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Sweep removes files older than maxAge from the store directory and
// returns how many were removed. It catches files orphaned by a crash
// between allocation and release. A non-positive maxAge removes nothing.
func (s *Store) Sweep(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error("Failed to read download dir", "dir", s.dir, "error", err)
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil {
			s.log.Warn("Failed to remove stale file", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("Removed stale files", "count", removed, "max_age", maxAge)
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("janitor interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(maxAge)
		case <-ctx.Done():
			return nil
		}
	}
}
