package timecode

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Timescale is the number of ticks per second.
const Timescale = 600

// Time is a point or span of media time measured in ticks of 1/Timescale seconds.
type Time int64

// Rate is a nominal frame rate expressed as Num/Den frames per second.
type Rate struct {
	Num int64
	Den int64
}

// DefaultRate is used when a source exposes no usable video frame rate.
var DefaultRate = Rate{Num: 30, Den: 1}

// Valid reports whether the rate can be used for frame arithmetic.
func (r Rate) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// OrDefault returns r when valid and DefaultRate otherwise.
func (r Rate) OrDefault() Rate {
	if r.Valid() {
		return r
	}
	return DefaultRate
}

// FPS returns the rate as a float.
func (r Rate) FPS() float64 {
	if !r.Valid() {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Nominal returns the rate rounded to whole frames per second, used for the
// frame field of a display timecode.
func (r Rate) Nominal() int64 {
	n := int64(math.Round(r.FPS()))
	if n < 1 {
		return 1
	}
	return n
}

func (r Rate) String() string {
	if r.Den == 1 {
		return strconv.FormatInt(r.Num, 10)
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// maxDen bounds rate denominators so frame arithmetic stays within int64.
const maxDen = 1001 * 1000

// ParseRate parses ffprobe style rates ("30000/1001", "25/1", "29.97").
// Decimal rates within rounding of an NTSC rate snap to it ("29.97" is
// 30000/1001). Zero, negative and malformed rates return an invalid Rate.
func ParseRate(s string) Rate {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseInt(num, 10, 64)
		d, err2 := strconv.ParseInt(den, 10, 64)
		if err1 != nil || err2 != nil || n <= 0 || d <= 0 || d > maxDen {
			return Rate{}
		}
		return Rate{Num: n, Den: d}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return Rate{}
	}
	if f != math.Trunc(f) {
		if n := math.Round(f * 1.001); n > 0 && math.Abs(n*1000/1001-f) < 0.0005 {
			return Rate{Num: int64(n) * 1000, Den: 1001}
		}
	}
	rat, ok := new(big.Rat).SetString(s)
	if !ok || !rat.Num().IsInt64() || !rat.Denom().IsInt64() || rat.Denom().Int64() > maxDen {
		return Rate{}
	}
	return Rate{Num: rat.Num().Int64(), Den: rat.Denom().Int64()}
}

// FromSeconds converts fractional seconds to the nearest tick.
func FromSeconds(s float64) Time {
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	return Time(math.Round(s * Timescale))
}

// FromDuration converts a time.Duration to the nearest tick.
func FromDuration(d time.Duration) Time {
	return FromSeconds(d.Seconds())
}

// Seconds returns t as fractional seconds.
func (t Time) Seconds() float64 {
	return float64(t) / Timescale
}

// Duration returns t as a time.Duration.
func (t Time) Duration() time.Duration {
	return time.Duration(t) * time.Second / Timescale
}

// FrameToTime returns the earliest tick that falls inside frame index.
// The result is rounded up so that TimeToFrame maps it back to index.
func FrameToTime(index int, rate Rate) Time {
	if index <= 0 {
		return 0
	}
	rate = rate.OrDefault()
	// ceil(index * Timescale * Den / Num)
	n := int64(index) * Timescale * rate.Den
	return Time((n + rate.Num - 1) / rate.Num)
}

// frameAt returns floor(t * Num / (Timescale * Den)) without clamping.
func frameAt(t Time, rate Rate) int64 {
	if t <= 0 {
		return 0
	}
	rate = rate.OrDefault()
	return int64(t) * rate.Num / (Timescale * rate.Den)
}

// TimeToFrame returns the frame displayed at t, clamped to [0, total-1].
// A total of zero or less yields 0.
func TimeToFrame(t Time, rate Rate, total int) int {
	if total <= 0 {
		return 0
	}
	idx := frameAt(t, rate)
	if idx >= int64(total) {
		return total - 1
	}
	return int(idx)
}

// FrameCount returns the number of whole frames in duration at rate.
func FrameCount(duration Time, rate Rate) int {
	return int(frameAt(duration, rate))
}

// FrameDuration returns the length of one frame, rounded up to a whole tick.
func FrameDuration(rate Rate) Time {
	return FrameToTime(1, rate)
}

// Clamp limits t to [0, duration].
func Clamp(t, duration Time) Time {
	if t < 0 {
		return 0
	}
	if duration >= 0 && t > duration {
		return duration
	}
	return t
}

// Next returns the start of the frame after the one displayed at t. At the
// last frame it returns t unchanged.
func Next(t Time, rate Rate, total int) Time {
	if total <= 0 {
		return t
	}
	idx := TimeToFrame(t, rate, total)
	if idx >= total-1 {
		return t
	}
	return FrameToTime(idx+1, rate)
}

// Previous returns the start of the frame before the one displayed at t.
// Inside the first frame it returns 0.
func Previous(t Time, rate Rate, total int) Time {
	if total <= 0 || t <= 0 {
		return 0
	}
	idx := TimeToFrame(t, rate, total)
	if idx == 0 {
		return 0
	}
	return FrameToTime(idx-1, rate)
}

// Format renders t as HH:MM:SS:FF where FF counts frames within the second.
func Format(t Time, rate Rate) string {
	if t < 0 {
		t = 0
	}
	rate = rate.OrDefault()
	totalSeconds := int64(t) / Timescale
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	// Frames elapsed since the start of the current second.
	sub := Time(int64(t) % Timescale)
	frames := frameAt(sub, rate) % rate.Nominal()

	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
