package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/timecode"
)

// ErrNoFFprobe is returned when the ffprobe binary cannot be found.
var ErrNoFFprobe = errors.New("ffprobe not found")

// Result is the decoded ffprobe report for one file.
type Result struct {
	Format  Format   `json:"format"`
	Streams []Stream `json:"streams"`
}

// Format holds container-level properties.
type Format struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// Stream holds per-stream properties.
type Stream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	RFrameRate   string            `json:"r_frame_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
}

// Parse decodes raw ffprobe JSON output.
func Parse(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &r, nil
}

// VideoStream returns the first video stream, if any. Attached pictures
// (cover art) are reported as video streams with a single frame and are
// skipped when a real stream exists.
func (r *Result) VideoStream() (Stream, bool) {
	var fallback *Stream
	for i := range r.Streams {
		s := r.Streams[i]
		if s.CodecType != "video" {
			continue
		}
		if s.CodecName == "mjpeg" || s.CodecName == "png" {
			if fallback == nil {
				fallback = &r.Streams[i]
			}
			continue
		}
		return s, true
	}
	if fallback != nil {
		return *fallback, true
	}
	return Stream{}, false
}

// Duration returns the container duration, falling back to the video
// stream duration.
func (r *Result) Duration() timecode.Time {
	if d, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil && d > 0 {
		return timecode.FromSeconds(d)
	}
	if s, ok := r.VideoStream(); ok {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > 0 {
			return timecode.FromSeconds(d)
		}
	}
	return 0
}

// FrameRate returns the nominal video frame rate, or an invalid Rate if the
// source exposes none.
func (r *Result) FrameRate() timecode.Rate {
	s, ok := r.VideoStream()
	if !ok {
		return timecode.Rate{}
	}
	if rate := timecode.ParseRate(s.AvgFrameRate); rate.Valid() {
		return rate
	}
	return timecode.ParseRate(s.RFrameRate)
}

// Prober runs ffprobe.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// New creates a Prober. An empty path resolves "ffprobe" from PATH at call time.
func New(ffprobePath string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{ffprobePath: ffprobePath, timeout: timeout}
}

func (p *Prober) binary() (string, error) {
	name := p.ffprobePath
	if name == "" {
		name = "ffprobe"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoFFprobe, err)
	}
	return path, nil
}

// Available reports whether ffprobe can be executed.
func (p *Prober) Available() bool {
	_, err := p.binary()
	return err == nil
}

// Probe reports format and stream information for filePath.
func (p *Prober) Probe(ctx context.Context, filePath string) (*Result, error) {
	bin, err := p.binary()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}

	result, err := Parse(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	logging.Debug("Probed %s in %v: %d streams, duration %s", filePath, time.Since(start), len(result.Streams), result.Format.Duration)
	return result, nil
}
