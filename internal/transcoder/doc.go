// Package transcoder builds scrub proxies: reduced-resolution H.264 copies
// of large sources that decode quickly at arbitrary positions.
//
// A proxy is generated at most once per source version. Its path is derived
// from the asset's content identity, so Generate first checks for an
// existing file and returns it immediately, reporting progress 1.0 without
// starting an encode.
//
// Encoding runs ffmpeg with machine-readable progress on stdout. Progress
// is reported to the caller from a separate reporter loop at a fixed
// interval while the encode runs, then once more with exactly 1.0 on
// success. The loop always stops before Generate returns.
//
// Output is written through a renameio pending file and renamed into place
// only after ffmpeg exits cleanly, so readers never observe a partial
// proxy. Failure or cancellation removes the temporary file.
//
// Proxies are retained across sessions and removed by Sweep (age based),
// Remove (one source) or ClearCache (everything). An optional Registry
// mirrors these changes, typically into the engine catalog.
//
// FFmpeg must be installed; its path is configurable.
package transcoder
