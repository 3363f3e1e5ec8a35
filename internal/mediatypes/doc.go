// Package mediatypes holds the dependency-free media vocabulary shared by the
// engine's packages: which source containers are accepted as video, and which
// still formats frames can be exported as.
//
// It imports nothing beyond the standard library so that probe, export and
// the engine root can all depend on it without import cycles.
//
// # Video sources
//
//	mediatypes.IsVideo("clip.MOV")     // true
//	mediatypes.GetMimeType(".mp4")     // "video/mp4"
//
// # Still formats
//
// StillFormat names an export encoding. Each format knows its file
// extension and MIME type:
//
//	f, err := mediatypes.ParseStillFormat("heic")   // StillHEIF
//	f.Extension()                                   // ".heic"
//	f.MimeType()                                    // "image/heic"
package mediatypes
