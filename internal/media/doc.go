// Package media decodes individual video frames into images.
//
// A Decoder runs ffmpeg once per request and reads a single PNG frame from
// its stdout. Two decode tiers exist, and the choice of file is structural
// rather than a caller decision:
//
//   - Preview decodes from the source's preview path (the scrub proxy when
//     one is ready, otherwise the original) bounded to a pixel size.
//   - Still decodes from the original at full resolution for export.
//
// Exact requests seek accurately to the start of the frame displayed at the
// requested time. Loose requests, used for the preview strip, seek to the
// nearest preceding keyframe and trade precision for latency.
//
// PreviewStrip samples evenly spaced frames across an asset. The sample
// count grows with duration (see StripCount) and decodes run concurrently
// under a bounded pool. A slot that fails to decode is left nil.
//
// The package also owns libvips initialisation, which backs HEIF encoding.
package media
