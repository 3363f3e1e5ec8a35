// Package config resolves engine configuration from environment variables.
//
// Load reads every variable, logs a configuration banner at Info level, and
// prepares the cache directory. Proxy generation and the catalog depend on
// a writable cache directory and are disabled, with a warning, when it is
// not. Invalid values never fail Load: they are logged and replaced by the
// default.
//
// Default returns the same defaults without reading the environment or
// touching the filesystem, for embedding callers that configure the engine
// in code.
//
// # Environment Variables
//
//	CACHE_DIR              cache root (default: <tmp>/frame-scrubber)
//	FFMPEG_PATH            ffmpeg binary (default: "ffmpeg")
//	FFPROBE_PATH           ffprobe binary (default: "ffprobe")
//	PROXY_THRESHOLD_BYTES  sources larger than this get a proxy (default: 52428800)
//	PROXY_MAX_EDGE         proxy long-edge ceiling in pixels (default: 1080)
//	PROXY_RETENTION        age after which proxies are swept (default: 720h)
//	THUMB_CACHE_CAPACITY   cached thumbnails per asset (default: 200)
//	THUMB_EVICT_BATCH      entries removed per eviction (default: 50)
//	THUMB_SIZE             thumbnail long edge in pixels (default: 160)
//	PRELOAD_RADIUS         frames preloaded either side of a request (default: 5)
//	PLAYBACK_TICK_HZ       playhead update rate (default: 30)
//	CATALOG_ENABLED        persist proxies and metadata in sqlite (default: true)
//	WATCH_SOURCE           invalidate proxies when the source changes (default: true)
//	METRICS_ENABLED        refresh Prometheus gauges from engine state (default: true)
package config
