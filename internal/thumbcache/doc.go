// Package thumbcache holds per-frame thumbnails for one loaded asset.
//
// Each frame index moves through Uncached, Pending, and then Cached or
// Failed. Concurrent requests for the same index share a single decode:
// requests are coalesced through a singleflight group keyed by the cache
// epoch and the frame index, and every waiter receives the same image.
//
// Decodes run on the cache's lifecycle context rather than the caller's.
// A caller that gives up returns immediately without failing the others.
//
// The cache is bounded. When an insert pushes it past capacity, the oldest
// inserted entries are evicted in one batch down to the low watermark.
//
// Preload schedules background decodes around a frame, nearest first,
// paced by a rate limiter and bounded by a small worker count. Starting a
// new preload cancels the previous sweep, and sweeps are skipped entirely
// while the memory gauge reports pressure.
//
// Reset and Close bump the epoch and cancel outstanding work. Results that
// arrive for an old epoch are dropped.
package thumbcache
