package media

import (
	"context"
	"image"
	"time"

	"golang.org/x/sync/errgroup"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/timecode"
	"frame-scrubber/internal/workers"
)

// DefaultStripSize is the long edge of preview strip thumbnails.
const DefaultStripSize = 96

// StripCount returns how many thumbnails a preview strip holds for an asset
// of the given duration.
func StripCount(duration timecode.Time) int {
	s := duration.Seconds()
	switch {
	case s <= 30:
		return 10
	case s <= 5*60:
		return 20
	case s <= 15*60:
		return 40
	case s <= 60*60:
		return 60
	default:
		return 100
	}
}

// StripTimes returns n sample times spread evenly across duration, each at
// the centre of its slot.
func StripTimes(duration timecode.Time, n int) []timecode.Time {
	if n <= 0 || duration <= 0 {
		return nil
	}
	times := make([]timecode.Time, n)
	for i := range n {
		times[i] = timecode.Time(int64(duration) * int64(2*i+1) / int64(2*n))
	}
	return times
}

// PreviewStrip decodes StripCount(duration) evenly spaced thumbnails from
// the preview tier. The result always has one slot per sample; slots that
// failed to decode are nil. An error is returned only if ctx ends.
func (d *Decoder) PreviewStrip(ctx context.Context, src Source, duration timecode.Time, size int) ([]image.Image, error) {
	if size <= 0 {
		size = DefaultStripSize
	}
	times := StripTimes(duration, StripCount(duration))
	frames := make([]image.Image, len(times))
	path := src.PreviewPath()
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers.ForDecode(4))

	for i, at := range times {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			img, err := d.DecodeFrame(gctx, path, at, Options{MaxSize: size, Rate: src.FrameRate()})
			metrics.FrameDecodeDuration.WithLabelValues("strip").Observe(time.Since(t0).Seconds())
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				metrics.FrameDecodesTotal.WithLabelValues("strip", "error").Inc()
				logging.Debug("Preview strip slot %d at %.3fs failed: %v", i, at.Seconds(), err)
				return nil
			}
			metrics.FrameDecodesTotal.WithLabelValues("strip", "success").Inc()
			frames[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.Debug("Preview strip: %d slots in %v", len(frames), time.Since(start))
	return frames, nil
}
