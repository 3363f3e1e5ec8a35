package media

import (
	"errors"
	"fmt"
	"sync"

	"frame-scrubber/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

// ErrVipsUnavailable is returned by libvips-backed encoders before InitVips.
var ErrVipsUnavailable = errors.New("libvips not available")

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// vipsSeverity ranks libvips levels so they can be compared without
// relying on the GLib flag values.
func vipsSeverity(l vips.LogLevel) int {
	switch l {
	case vips.LogLevelError, vips.LogLevelCritical:
		return 3
	case vips.LogLevelWarning:
		return 2
	case vips.LogLevelMessage, vips.LogLevelInfo:
		return 1
	default:
		return 0
	}
}

// vipsLogSettings maps the engine log level to a libvips level and a
// handler that forwards messages at or above minSeverity into the engine log.
func vipsLogSettings(level logging.LogLevel) (vips.LogLevel, func(string, vips.LogLevel, string)) {
	forward := func(minSeverity int) func(string, vips.LogLevel, string) {
		return func(domain string, l vips.LogLevel, msg string) {
			switch sev := vipsSeverity(l); {
			case sev < minSeverity:
			case sev == 3:
				logging.Error("[%s] %s", domain, msg)
			case sev == 2:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	}

	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo, forward(0)
	case logging.LevelInfo:
		return vips.LogLevelWarning, forward(2)
	default:
		return vips.LogLevelError, forward(3)
	}
}

// InitVips initializes libvips once per process.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	vips.LoggingSettings(vipsLogSettings(logging.GetLevel()))

	// Exports are one frame at a time; keep the operation cache small.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      32 * 1024 * 1024,
		MaxCacheSize:     50,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// EncodeHEIF re-encodes an encoded image (PNG or JPEG) as HEIF. EXIF data
// carried by the input is kept.
func EncodeHEIF(encoded []byte, quality int) ([]byte, error) {
	if !IsVipsAvailable() {
		return nil, ErrVipsUnavailable
	}

	ref, err := vips.NewImageFromBuffer(encoded)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load frame: %w", err)
	}
	defer ref.Close()

	params := vips.NewHeifExportParams()
	if quality > 0 {
		params.Quality = quality
	}

	out, _, err := ref.ExportHeif(params)
	if err != nil {
		return nil, fmt.Errorf("vips HEIF export failed: %w", err)
	}
	return out, nil
}
