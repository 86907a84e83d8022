package wal

import (
	"fmt"
	"os"
	"time"
)

// CleanupStats tracks cleanup operation results
type CleanupStats struct {
	FilesRemoved int
	BytesFreed   int64
}

// Cleanup removes journal files last modified before now minus retention.
// The file currently open by w, if any, is never removed.
func Cleanup(dir string, retention time.Duration, w *WAL) (CleanupStats, error) {
	var stats CleanupStats
	if retention <= 0 {
		return stats, nil
	}

	cutoff := time.Now().Add(-retention)
	for _, file := range listFiles(dir) {
		if w != nil && file == w.Path() {
			continue
		}

		info, err := os.Stat(file)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(file); err != nil {
			return stats, fmt.Errorf("failed to remove %s: %w", file, err)
		}
		stats.FilesRemoved++
		stats.BytesFreed += info.Size()
	}

	return stats, nil
}
