// Package probe runs ffprobe against a media file and decodes its JSON
// report into container-level and stream-level properties and tags.
//
// Requires ffprobe (part of FFmpeg) to be installed on the system.
package probe
