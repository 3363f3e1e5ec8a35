package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "FRAME_WORKERS"

// Count returns the number of workers for a task with the given
// CPU multiplier, capped at limit. A limit of 0 means no cap.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForDecode returns the bound for concurrent foreground frame decodes
// (1 per CPU).
func ForDecode(limit int) int {
	return Count(1.0, limit)
}

// ForPreload returns the bound for background preload decodes
// (1 per 2 CPUs), leaving room for interactive requests.
func ForPreload(limit int) int {
	return Count(0.5, limit)
}

// ForIO returns the bound for file-bound work such as proxy cache sweeps
// (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}
