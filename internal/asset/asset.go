package asset

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"frame-scrubber/internal/filesystem"
	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/mediatypes"
	"frame-scrubber/internal/probe"
	"frame-scrubber/internal/timecode"
)

// ErrInvalidSource is returned for files that are not decodable video.
var ErrInvalidSource = mediatypes.ErrInvalidSource

// Prober reports stream information for a file.
type Prober interface {
	Probe(ctx context.Context, path string) (*probe.Result, error)
}

// VideoAsset is a loaded source video. It is immutable after Load.
type VideoAsset struct {
	id           string
	path         string
	size         int64
	modTime      time.Time
	duration     timecode.Time
	rate         timecode.Rate
	rateFallback bool
	totalFrames  int
	width        int
	height       int
	codec        string
	report       *probe.Result
}

// Load stats and probes path and returns the resulting asset.
func Load(ctx context.Context, prober Prober, path string) (*VideoAsset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	info, err := filesystem.StatWithRetry(abs, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is not a non-empty regular file", ErrInvalidSource, abs)
	}

	report, err := prober.Probe(ctx, abs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	return FromProbe(abs, info.Size(), info.ModTime(), report)
}

// FromProbe builds an asset from an existing ffprobe report.
func FromProbe(path string, size int64, modTime time.Time, report *probe.Result) (*VideoAsset, error) {
	stream, ok := report.VideoStream()
	if !ok {
		return nil, fmt.Errorf("%w: %s has no video stream", ErrInvalidSource, path)
	}

	duration := report.Duration()
	if duration <= 0 {
		return nil, fmt.Errorf("%w: %s has no duration", ErrInvalidSource, path)
	}

	rate := report.FrameRate()
	fallback := !rate.Valid()
	if fallback {
		logging.Warn("No usable frame rate for %s, assuming %s fps", path, timecode.DefaultRate)
		rate = timecode.DefaultRate
	}

	total := timecode.FrameCount(duration, rate)
	if total < 1 {
		// Shorter than one frame period; the first frame is still displayable.
		total = 1
	}

	a := &VideoAsset{
		id:           ContentID(path, size, modTime),
		path:         path,
		size:         size,
		modTime:      modTime,
		duration:     duration,
		rate:         rate,
		rateFallback: fallback,
		totalFrames:  total,
		width:        stream.Width,
		height:       stream.Height,
		codec:        stream.CodecName,
		report:       report,
	}

	logging.Debug("Loaded asset %s: %dx%d %s, %.3fs @ %s fps, %d frames",
		filepath.Base(path), a.width, a.height, a.codec, duration.Seconds(), rate, total)
	return a, nil
}

// ContentID returns the hex BLAKE2b-256 digest identifying a file version.
func ContentID(path string, size int64, modTime time.Time) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(size, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(modTime.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// ID returns the content identity.
func (a *VideoAsset) ID() string { return a.id }

// Path returns the absolute source path.
func (a *VideoAsset) Path() string { return a.path }

// Size returns the source size in bytes.
func (a *VideoAsset) Size() int64 { return a.size }

// ModTime returns the source modification time at load.
func (a *VideoAsset) ModTime() time.Time { return a.modTime }

// Duration returns the media duration.
func (a *VideoAsset) Duration() timecode.Time { return a.duration }

// Rate returns the nominal frame rate.
func (a *VideoAsset) Rate() timecode.Rate { return a.rate }

// RateFallback reports whether Rate is the default rather than the source's.
func (a *VideoAsset) RateFallback() bool { return a.rateFallback }

// TotalFrames returns the number of addressable frames.
func (a *VideoAsset) TotalFrames() int { return a.totalFrames }

// Width returns the coded video width in pixels.
func (a *VideoAsset) Width() int { return a.width }

// Height returns the coded video height in pixels.
func (a *VideoAsset) Height() int { return a.height }

// Codec returns the video codec name.
func (a *VideoAsset) Codec() string { return a.codec }

// Report returns the ffprobe report captured at load.
func (a *VideoAsset) Report() *probe.Result { return a.report }

// ValidIndex reports whether index addresses a frame of a.
func (a *VideoAsset) ValidIndex(index int) bool {
	return index >= 0 && index < a.totalFrames
}

// FrameTime returns the start time of frame index.
func (a *VideoAsset) FrameTime(index int) timecode.Time {
	return timecode.FrameToTime(index, a.rate)
}

// FrameAt returns the frame displayed at t.
func (a *VideoAsset) FrameAt(t timecode.Time) int {
	return timecode.TimeToFrame(t, a.rate, a.totalFrames)
}

// Tiers returns the decode tiers for a with no proxy.
func (a *VideoAsset) Tiers() Tiers {
	return Tiers{Original: a.path, Rate: a.rate}
}

// Tiers names the files a frame can be decoded from.
type Tiers struct {
	Original string
	Proxy    string
	Rate     timecode.Rate
}

// FrameRate returns the rate used to align seeks to frame starts.
func (t Tiers) FrameRate() timecode.Rate { return t.Rate }

// OriginalPath returns the full-quality source path.
func (t Tiers) OriginalPath() string { return t.Original }

// PreviewPath returns the proxy when one is ready, else the original.
func (t Tiers) PreviewPath() string {
	if t.Proxy != "" {
		return t.Proxy
	}
	return t.Original
}

// WithProxy returns t with the proxy path set.
func (t Tiers) WithProxy(path string) Tiers {
	t.Proxy = path
	return t
}
