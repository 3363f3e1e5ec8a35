// Package asset loads a local video file into an immutable VideoAsset.
//
// Load stats the file, probes it with ffprobe, and derives everything the
// engine needs to address frames: duration in timecode ticks, the nominal
// frame rate, and the total frame count, which is computed exactly once.
//
// A source without a video stream or without a positive duration is
// rejected with ErrInvalidSource. A video stream that reports no usable
// frame rate falls back to timecode.DefaultRate; RateFallback reports
// when that happened.
//
// Each asset carries a content identity: a BLAKE2b-256 digest of the
// absolute path, size and modification time. It keys proxy files and
// catalog records, so an edited source never reuses a stale proxy.
//
// Tiers pairs an asset's original path with an optional proxy path and is
// how decoders pick the file they read.
package asset
