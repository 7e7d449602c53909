package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/subgen/api/internal/metrics"
)

// Reclaim deletes every artifact belonging to key. Missing files are not
// errors; other failures are logged and counted, never returned.
func (s *Store) Reclaim(key string) {
	for _, path := range []string{
		s.UploadPath(key),
		s.TranscriptPath(key),
		s.TranslatedPath(key),
	} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			metrics.CleanupErrors.Inc()
			s.logger.Warn().Err(err).Str("key", key).Str("path", path).Msg("failed to remove artifact")
		}
	}
	s.DiscardWorkDir(key)
}

// Sweep removes everything under the storage root and reports how many
// entries were deleted. Entries that vanish concurrently are skipped.
// Only a failure to list the root is returned.
func (s *Store) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read storage dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		path := filepath.Join(s.dir, entry.Name())
		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			metrics.CleanupErrors.Inc()
			s.logger.Warn().Err(err).Str("path", path).Msg("sweep: failed to remove")
			continue
		}
		removed++
	}

	s.logger.Info().Int("removed", removed).Str("dir", s.dir).Msg("storage swept")
	return removed, nil
}
