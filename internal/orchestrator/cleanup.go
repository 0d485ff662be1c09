package orchestrator

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/local/shasdl/internal/metrics"
)

// Cleanup removes intermediate files and returns how many were actually
// deleted. Missing files are not counted and errors never stop the loop.
func Cleanup(paths []string) int {
	seen := make(map[string]bool, len(paths))
	deleted := 0
	for _, p := range paths {
		key := filepath.Clean(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := os.Remove(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			log.Error().Err(err).Str("file", p).Msg("failed to remove intermediate file")
			continue
		}
		deleted++
	}
	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("removed intermediate amud files")
		metrics.AddDeleted(deleted)
	}
	return deleted
}
