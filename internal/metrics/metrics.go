package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Thumbnail cache metrics
var (
	ThumbnailCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "framescrub_thumbnail_cache_hits_total",
			Help: "Total number of thumbnail requests served from the cache",
		},
	)

	ThumbnailCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "framescrub_thumbnail_cache_misses_total",
			Help: "Total number of thumbnail requests that started a decode",
		},
	)

	ThumbnailCoalescedWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "framescrub_thumbnail_coalesced_waits_total",
			Help: "Total number of thumbnail requests that attached to an in-flight decode",
		},
	)

	ThumbnailCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "framescrub_thumbnail_cache_evictions_total",
			Help: "Total number of thumbnails removed by batch eviction",
		},
	)

	ThumbnailCacheCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framescrub_thumbnail_cache_count",
			Help: "Number of thumbnails currently cached",
		},
	)

	ThumbnailInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framescrub_thumbnail_in_flight",
			Help: "Number of thumbnail decodes currently in flight",
		},
	)

	ThumbnailPreloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_thumbnail_preloads_total",
			Help: "Total number of preload sweeps by outcome",
		},
		[]string{"status"}, // "completed", "cancelled", "throttled"
	)
)

// Frame decoder metrics
var (
	FrameDecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_frame_decodes_total",
			Help: "Total number of single-frame decodes",
		},
		[]string{"tier", "status"},
	)

	FrameDecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framescrub_frame_decode_duration_seconds",
			Help:    "Single-frame decode duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"tier"},
	)
)

// Transcoder metrics
var (
	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_transcoder_jobs_total",
			Help: "Total number of proxy transcoding jobs",
		},
		[]string{"status"}, // "success", "cached", "error", "cancelled", "invalid"
	)

	TranscoderJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "framescrub_transcoder_job_duration_seconds",
			Help:    "Proxy transcoding job duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	TranscoderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framescrub_transcoder_jobs_in_progress",
			Help: "Number of proxy transcoding jobs currently in progress",
		},
	)

	ProxyFilesRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_proxy_files_removed_total",
			Help: "Total number of proxy files removed",
		},
		[]string{"reason"}, // "retention", "invalidated", "cleared"
	)

	ProxyCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framescrub_proxy_cache_bytes",
			Help: "Total size of the proxy cache directory in bytes",
		},
	)
)

// Metadata and export metrics
var (
	MetadataExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_metadata_extractions_total",
			Help: "Total number of metadata extractions by source",
		},
		[]string{"source"}, // "probe", "catalog", "error"
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_exports_total",
			Help: "Total number of exported stills",
		},
		[]string{"format", "status"},
	)

	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framescrub_export_duration_seconds",
			Help:    "Still export duration in seconds, including decode and encode",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)
)

// Catalog metrics
var (
	CatalogQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_catalog_queries_total",
			Help: "Total number of catalog queries",
		},
		[]string{"operation", "status"},
	)

	CatalogQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framescrub_catalog_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framescrub_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framescrub_memory_paused",
			Help: "Whether background work is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "framescrub_memory_gc_pauses_total",
			Help: "Total number of forced GCs triggered by memory pressure",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_filesystem_stale_errors_total",
			Help: "Total number of stale NFS file handle errors",
		},
		[]string{"operation"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framescrub_filesystem_retry_duration_seconds",
			Help:    "Duration of filesystem operations including retries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation"},
	)
)

// Engine metrics
var (
	AssetsLoadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framescrub_assets_loaded_total",
			Help: "Total number of video assets loaded",
		},
		[]string{"tier"}, // "proxied", "direct"
	)

	SubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framescrub_event_subscribers",
			Help: "Number of active state-change subscribers",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "framescrub_events_dropped_total",
			Help: "Total number of notifications dropped because a subscriber was full",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framescrub_app_info",
			Help: "Engine build information",
		},
		[]string{"version", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, goVersion string) {
	AppInfo.WithLabelValues(version, goVersion).Set(1)
}
