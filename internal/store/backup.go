package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Backup writes a consistent snapshot of the database to dest.
func (s *Store) Backup(ctx context.Context, dest string) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// BackupLoop periodically snapshots the database and prunes old copies.
// It runs until the context is cancelled.
func (s *Store) BackupLoop(ctx context.Context, dir string, interval, retention time.Duration, logger zerolog.Logger) {
	log := logger.With().Str("component", "backup").Logger()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error().Err(err).Msg("failed to create backup directory")
		return
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		dest := filepath.Join(dir, fmt.Sprintf("velora_%s.db", time.Now().Format("20060102_150405")))
		log.Info().Str("path", dest).Msg("starting database backup")
		if err := s.Backup(ctx, dest); err != nil {
			log.Error().Err(err).Msg("backup failed")
			return
		}
		if deleted := cleanupBackups(dir, retention); deleted > 0 {
			log.Info().Int("deleted", deleted).Msg("cleaned up old backups")
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func cleanupBackups(dir string, retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-retention)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(dir, entry.Name())) == nil {
				deleted++
			}
		}
	}
	return deleted
}
