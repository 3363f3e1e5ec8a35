package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/workers"
)

// staleTempAge is how old an abandoned pending file must be before a sweep
// removes it. Younger ones may belong to an encode still in progress.
const staleTempAge = time.Hour

// Sweep removes proxies last modified more than maxAge ago and returns the
// number of files removed and bytes freed.
func (t *Transcoder) Sweep(ctx context.Context, maxAge time.Duration) (int, int64, error) {
	cutoff := time.Now().Add(-maxAge)
	tempCutoff := time.Now().Add(-staleTempAge)

	removed, freed, err := t.removeWhere(ctx, "retention", func(info os.FileInfo) bool {
		if isPending(info.Name()) {
			return info.ModTime().Before(tempCutoff)
		}
		return info.ModTime().Before(cutoff)
	})
	if err != nil {
		return removed, freed, err
	}

	if removed > 0 {
		logging.Info("Proxy retention sweep: removed %d files, freed %d bytes", removed, freed)
	}
	return removed, freed, nil
}

func isPending(name string) bool {
	return strings.HasPrefix(name, ".")
}

// removeWhere concurrently deletes regular files in the proxy directory
// accepted by match, skipping files owned by a running encode.
func (t *Transcoder) removeWhere(ctx context.Context, reason string, match func(os.FileInfo) bool) (int, int64, error) {
	if t.cacheDir == "" {
		return 0, 0, nil
	}

	entries, err := os.ReadDir(t.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read proxy directory: %w", err)
	}

	var (
		mu      sync.Mutex
		removed int
		freed   int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers.ForIO(8))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(t.cacheDir, entry.Name())
		if t.isActive(path) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logging.Warn("failed to get info for %s: %v", path, err)
			continue
		}
		if !match(info) {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				if !os.IsNotExist(err) {
					logging.Warn("failed to remove proxy %s: %v", path, err)
				}
				return nil
			}
			if !isPending(info.Name()) {
				t.forget(gctx, path)
			}
			metrics.ProxyFilesRemoved.WithLabelValues(reason).Inc()

			mu.Lock()
			removed++
			freed += info.Size()
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	return removed, freed, err
}

func (t *Transcoder) isActive(path string) bool {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	_, ok := t.processes[path]
	return ok
}
