// Package framescrub is a frame-accurate video scrubbing and export engine.
//
// An Engine holds at most one loaded asset. Loading a file probes it,
// creates a thumbnail cache and a playback navigator for it, and starts the
// background work for the asset: proxy generation for large sources,
// one-time metadata extraction and, optionally, a watcher that invalidates
// the proxy when the source file is replaced.
//
// Scrubbing reads decode from the proxy once it is ready and from the
// original until then. Exports always decode the original at full
// resolution and may carry the asset's camera, capture and GPS metadata.
//
// State changes are published as events. Subscribers that fall behind lose
// events rather than slowing the engine down.
//
// Loading another asset, Unload and Close tear the current session down:
// its context is cancelled, its cache is cleared and results that arrive
// late are discarded.
package framescrub
