// Package playback tracks the playhead of one loaded asset.
//
// A Navigator holds the current time, the frame displayed at that time and
// whether playback is running. While playing, a fixed-rate tick loop advances
// the time by the elapsed wall-clock time and recomputes the frame from it.
// Playback stops on the last frame at the end of the media instead of
// looping. Every state change is reported to an optional observer.
package playback
