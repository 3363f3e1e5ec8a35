// Package metrics provides Prometheus instrumentation for the frame engine.
//
// Metrics are registered with the default registry through promauto and
// grouped by component:
//
//   - Thumbnail cache: hits, misses, coalesced waits, evictions, size
//   - Frame decoder: decodes and decode latency by tier
//   - Transcoder: proxy jobs, duration, in-progress gauge, removed files
//   - Metadata and export: extractions by source, exports by format
//   - Catalog: queries by operation
//   - Memory: usage ratio, pause state, forced GCs
//   - Filesystem: retry counters for stale NFS handles
//
// Gauges that mirror engine state are refreshed by a Collector, which polls
// a StatsProvider on a fixed interval.
//
// All metrics use the "framescrub_" prefix.
package metrics
