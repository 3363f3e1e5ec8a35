package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metrics"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	start := time.Now()
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		info, err := os.Stat(path)
		if err == nil {
			if attempt > 0 {
				logging.Info("NFS Stat succeeded on retry %d for %s", attempt, path)
				metrics.FilesystemRetrySuccess.WithLabelValues("stat").Inc()
			}
			metrics.FilesystemRetryDuration.WithLabelValues("stat").Observe(time.Since(start).Seconds())
			return info, nil
		}

		lastErr = err

		if !isNFSStaleError(err) {
			metrics.FilesystemRetryDuration.WithLabelValues("stat").Observe(time.Since(start).Seconds())
			return nil, err
		}

		metrics.FilesystemStaleErrors.WithLabelValues("stat").Inc()

		// Don't sleep after the last attempt
		if attempt < config.MaxRetries {
			metrics.FilesystemRetryAttempts.WithLabelValues("stat").Inc()
			logging.Debug("NFS Stat stale file handle for %s, retrying in %v (attempt %d/%d)",
				path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("NFS Stat failed after %d retries for %s: %v", config.MaxRetries, path, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues("stat").Inc()
	metrics.FilesystemRetryDuration.WithLabelValues("stat").Observe(time.Since(start).Seconds())
	return nil, lastErr
}

// Exists reports whether path exists as a regular, non-empty file.
// Zero-byte files are treated as missing so an interrupted writer on another
// host never short-circuits regeneration.
func Exists(path string) bool {
	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// FileSize returns the size of path in bytes.
func FileSize(path string) (int64, error) {
	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
