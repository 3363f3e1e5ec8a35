// Package memory watches heap usage and tells background frame work when to
// back off.
//
// Decoded thumbnails are held in memory, so an aggressive preload sweep over
// a long asset can grow the heap quickly. A Monitor samples the heap against
// a limit and exposes two thresholds:
//
//   - HighWaterMark: ShouldThrottle reports true and preload sweeps stop
//     scheduling new decodes.
//   - CriticalWaterMark: the monitor pauses, forces a GC, and Wait blocks
//     until usage falls back below the high water mark.
//
// Interactive requests never consult the monitor.
//
// When no explicit limit is configured the monitor falls back to GOMEMLIMIT.
// Without either, backpressure is disabled and every call returns
// immediately.
package memory
