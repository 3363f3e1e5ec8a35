package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/timecode"
	"frame-scrubber/internal/workers"
)

var (
	// ErrNoFrame is returned when no frame could be decoded for a request.
	ErrNoFrame = errors.New("no frame decoded")
	// ErrNoFFmpeg is returned when the ffmpeg binary cannot be found.
	ErrNoFFmpeg = errors.New("ffmpeg not found")
)

// Source names the files a frame can be decoded from.
type Source interface {
	OriginalPath() string
	PreviewPath() string
	FrameRate() timecode.Rate
}

// Options controls a single decode.
type Options struct {
	// MaxSize bounds the long edge of the result. Zero keeps full resolution.
	MaxSize int
	// Exact seeks to the frame start rather than the nearest keyframe.
	Exact bool
	// Rate aligns exact seeks to frame boundaries.
	Rate timecode.Rate
}

// Decoder extracts frames with ffmpeg.
type Decoder struct {
	ffmpegPath string
	slots      *semaphore.Weighted
	timeout    time.Duration
}

// NewDecoder creates a Decoder. At most concurrency ffmpeg processes run at
// once; zero sizes the pool from the available CPUs.
func NewDecoder(ffmpegPath string, concurrency int) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if concurrency <= 0 {
		concurrency = workers.ForDecode(8)
	}
	return &Decoder{
		ffmpegPath: ffmpegPath,
		slots:      semaphore.NewWeighted(int64(concurrency)),
		timeout:    30 * time.Second,
	}
}

// Available reports whether ffmpeg can be executed.
func (d *Decoder) Available() bool {
	_, err := exec.LookPath(d.ffmpegPath)
	return err == nil
}

// Preview decodes the frame displayed at at from the preview tier, bounded
// to maxSize pixels on the long edge.
func (d *Decoder) Preview(ctx context.Context, src Source, at timecode.Time, maxSize int) (image.Image, error) {
	return d.decodeTier(ctx, "preview", src.PreviewPath(), at, Options{MaxSize: maxSize, Exact: true, Rate: src.FrameRate()})
}

// Still decodes the frame displayed at at from the original at full resolution.
func (d *Decoder) Still(ctx context.Context, src Source, at timecode.Time) (image.Image, error) {
	return d.decodeTier(ctx, "still", src.OriginalPath(), at, Options{Exact: true, Rate: src.FrameRate()})
}

func (d *Decoder) decodeTier(ctx context.Context, tier, path string, at timecode.Time, opts Options) (image.Image, error) {
	start := time.Now()
	img, err := d.DecodeFrame(ctx, path, at, opts)
	metrics.FrameDecodeDuration.WithLabelValues(tier).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FrameDecodesTotal.WithLabelValues(tier, "error").Inc()
		return nil, err
	}
	metrics.FrameDecodesTotal.WithLabelValues(tier, "success").Inc()
	return img, nil
}

// SeekSeconds returns the input seek position for at. Exact seeks land a
// quarter frame before the start of the frame displayed at at, so that
// accurate seeking keeps that frame and discards the one before it.
func SeekSeconds(at timecode.Time, rate timecode.Rate, exact bool) float64 {
	if at <= 0 {
		return 0
	}
	if !exact || !rate.Valid() {
		return at.Seconds()
	}
	index := timecode.TimeToFrame(at, rate, int(^uint(0)>>1))
	s := (float64(index) - 0.25) * float64(rate.Den) / float64(rate.Num)
	return max(s, 0)
}

func decodeArgs(path string, at timecode.Time, opts Options) []string {
	args := []string{"-hide_banner", "-nostdin", "-v", "error"}
	if !opts.Exact {
		args = append(args, "-noaccurate_seek")
	}
	args = append(args,
		"-ss", strconv.FormatFloat(SeekSeconds(at, opts.Rate, opts.Exact), 'f', 6, 64),
		"-i", path,
		"-an",
		"-frames:v", "1",
	)
	if opts.MaxSize > 0 {
		// Prescale in ffmpeg; the final resample happens in Go.
		bound := opts.MaxSize * 2
		args = append(args, "-vf", fmt.Sprintf(
			"scale='min(iw,%d)':'min(ih,%d)':force_original_aspect_ratio=decrease", bound, bound))
	}
	return append(args, "-f", "image2pipe", "-vcodec", "png", "-")
}

// DecodeFrame decodes one frame of path at at.
func (d *Decoder) DecodeFrame(ctx context.Context, path string, at timecode.Time, opts Options) (image.Image, error) {
	bin, err := exec.LookPath(d.ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFFmpeg, err)
	}

	if err := d.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.slots.Release(1)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, decodeArgs(path, at, opts)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg failed at %.3fs: %v, stderr: %s",
			ErrNoFrame, at.Seconds(), err, strings.TrimSpace(stderr.String()))
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output for %s at %.3fs", ErrNoFrame, path, at.Seconds())
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode ffmpeg output: %v", ErrNoFrame, err)
	}

	if opts.MaxSize > 0 {
		if opts.Exact {
			img = Fit(img, opts.MaxSize)
		} else {
			img = FitFast(img, opts.MaxSize)
		}
	}

	logging.Debug("Decoded frame at %.3fs from %s: %dx%d", at.Seconds(), path, img.Bounds().Dx(), img.Bounds().Dy())
	return img, nil
}
