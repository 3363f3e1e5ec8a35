// Package timecode converts between frame indices, media time and display
// timecodes.
//
// Media time is kept as an integer count of ticks at a fixed timescale of
// 600 per second, so repeated seeks and frame steps never accumulate floating
// point drift. Frame rates are rationals (for example 30000/1001).
package timecode
