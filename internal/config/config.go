package config

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"frame-scrubber/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	GoVersion = runtime.Version()
)

// Config holds all engine configuration
type Config struct {
	CacheDir    string
	FFmpegPath  string
	FFprobePath string

	ProxyThreshold int64
	ProxyMaxEdge   int
	ProxyRetention time.Duration

	ThumbCapacity   int
	ThumbEvictBatch int
	ThumbSize       int
	StripThumbSize  int
	PreloadRadius   int
	PreloadRate     float64

	PlaybackTickHz int

	CatalogEnabled bool
	WatchSource    bool
	MetricsEnabled bool

	// Derived paths
	ProxyDir    string
	CatalogPath string

	// Feature flags based on directory availability
	ProxyEnabled bool
}

// Default returns the built-in configuration without reading the
// environment or creating directories.
func Default() *Config {
	cacheDir := filepath.Join(os.TempDir(), "frame-scrubber")
	return &Config{
		CacheDir:        cacheDir,
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		ProxyThreshold:  50 << 20,
		ProxyMaxEdge:    1080,
		ProxyRetention:  30 * 24 * time.Hour,
		ThumbCapacity:   200,
		ThumbEvictBatch: 50,
		ThumbSize:       160,
		StripThumbSize:  96,
		PreloadRadius:   5,
		PreloadRate:     20,
		PlaybackTickHz:  30,
		CatalogEnabled:  true,
		WatchSource:     true,
		MetricsEnabled:  true,
		ProxyDir:        filepath.Join(cacheDir, "proxies"),
		CatalogPath:     filepath.Join(cacheDir, "catalog.db"),
		ProxyEnabled:    true,
	}
}

// WithCacheDir returns a copy of c rooted at dir, with derived paths updated.
func (c *Config) WithCacheDir(dir string) *Config {
	out := *c
	out.CacheDir = dir
	out.ProxyDir = filepath.Join(dir, "proxies")
	out.CatalogPath = filepath.Join(dir, "catalog.db")
	return &out
}

// LowWatermark returns the cache size eviction trims down to. It is zero,
// leaving the thumbnail cache to pick its default, unless the eviction
// batch is positive and smaller than the capacity.
func (c *Config) LowWatermark() int {
	if c.ThumbEvictBatch <= 0 || c.ThumbEvictBatch >= c.ThumbCapacity {
		return 0
	}
	return c.ThumbCapacity - c.ThumbEvictBatch
}

// Load loads configuration from environment variables and prepares the
// cache directory.
func Load() (*Config, error) {
	def := Default()

	logging.Info("------------------------------------------------------------")
	logging.Info("FRAME ENGINE CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Version:    %s (%s, %s)", Version, Commit, GoVersion)

	cfg := def.WithCacheDir(getEnv("CACHE_DIR", def.CacheDir))
	cfg.FFmpegPath = getEnv("FFMPEG_PATH", def.FFmpegPath)
	cfg.FFprobePath = getEnv("FFPROBE_PATH", def.FFprobePath)
	cfg.ProxyThreshold = getEnvInt64("PROXY_THRESHOLD_BYTES", def.ProxyThreshold)
	cfg.ProxyMaxEdge = getEnvInt("PROXY_MAX_EDGE", def.ProxyMaxEdge)
	cfg.ProxyRetention = getEnvDuration("PROXY_RETENTION", def.ProxyRetention)
	cfg.ThumbCapacity = getEnvInt("THUMB_CACHE_CAPACITY", def.ThumbCapacity)
	cfg.ThumbEvictBatch = getEnvInt("THUMB_EVICT_BATCH", def.ThumbEvictBatch)
	cfg.ThumbSize = getEnvInt("THUMB_SIZE", def.ThumbSize)
	cfg.PreloadRadius = getEnvInt("PRELOAD_RADIUS", def.PreloadRadius)
	cfg.PlaybackTickHz = getEnvInt("PLAYBACK_TICK_HZ", def.PlaybackTickHz)
	cfg.CatalogEnabled = getEnvBool("CATALOG_ENABLED", def.CatalogEnabled)
	cfg.WatchSource = getEnvBool("WATCH_SOURCE", def.WatchSource)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", def.MetricsEnabled)

	if cfg.ThumbEvictBatch >= cfg.ThumbCapacity {
		logging.Warn("  THUMB_EVICT_BATCH (%d) is not below THUMB_CACHE_CAPACITY (%d), using the cache default", cfg.ThumbEvictBatch, cfg.ThumbCapacity)
		cfg.ThumbEvictBatch = 0
	}

	logging.Info("  CACHE_DIR:             %s", cfg.CacheDir)
	logging.Info("  FFMPEG_PATH:           %s", cfg.FFmpegPath)
	logging.Info("  FFPROBE_PATH:          %s", cfg.FFprobePath)
	logging.Info("  PROXY_THRESHOLD_BYTES: %d", cfg.ProxyThreshold)
	logging.Info("  PROXY_MAX_EDGE:        %d", cfg.ProxyMaxEdge)
	logging.Info("  PROXY_RETENTION:       %s", cfg.ProxyRetention)
	logging.Info("  THUMB_CACHE_CAPACITY:  %d", cfg.ThumbCapacity)
	logging.Info("  THUMB_EVICT_BATCH:     %d", cfg.ThumbEvictBatch)
	logging.Info("  THUMB_SIZE:            %d", cfg.ThumbSize)
	logging.Info("  PRELOAD_RADIUS:        %d", cfg.PreloadRadius)
	logging.Info("  PLAYBACK_TICK_HZ:      %d", cfg.PlaybackTickHz)
	logging.Info("  CATALOG_ENABLED:       %v", cfg.CatalogEnabled)
	logging.Info("  WATCH_SOURCE:          %v", cfg.WatchSource)
	logging.Info("  METRICS_ENABLED:       %v", cfg.MetricsEnabled)
	logging.Info("  LOG_LEVEL:             %s", logging.GetLevel())

	if err := cfg.Prepare(); err != nil {
		return nil, err
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Proxies:  %s", enabledString(cfg.ProxyEnabled))
	logging.Info("    Catalog:  %s", enabledString(cfg.CatalogEnabled))
	logging.Info("    FFmpeg:   %s", availableString(checkBinary(cfg.FFmpegPath)))
	logging.Info("    FFprobe:  %s", availableString(checkBinary(cfg.FFprobePath)))

	return cfg, nil
}

// Prepare resolves the cache directory to an absolute path and probes the
// proxy directory for write access. An unwritable directory disables
// proxies and the catalog rather than failing.
func (c *Config) Prepare() error {
	abs, err := filepath.Abs(c.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	*c = *c.WithCacheDir(abs)

	c.ProxyEnabled = setupOptionalDir(c.ProxyDir, "proxy")
	if !c.ProxyEnabled && c.CatalogEnabled {
		logging.Warn("    catalog will be disabled")
		c.CatalogEnabled = false
	}
	return nil
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s generation will be disabled", name)
		return false
	}

	testFile := filepath.Join(path, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s generation will be disabled", name)
		return false
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("    failed to remove test file %s: %v", testFile, err)
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func availableString(err error) string {
	if err != nil {
		return "UNAVAILABLE (" + err.Error() + ")"
	}
	return "OK"
}

// checkBinary verifies that an ffmpeg-family binary runs.
func checkBinary(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", name, err)
	}

	if lines := strings.SplitN(string(output), "\n", 2); len(lines) > 0 {
		logging.Debug("  %s", strings.TrimSpace(lines[0]))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration value for %s: %q, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
