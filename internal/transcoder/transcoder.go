package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"

	"frame-scrubber/internal/filesystem"
	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/mediatypes"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/timecode"
)

var (
	// ErrInvalidSource is returned for sources without video dimensions or
	// duration. It wraps mediatypes.ErrInvalidSource.
	ErrInvalidSource = fmt.Errorf("%w: cannot be proxied", mediatypes.ErrInvalidSource)
	// ErrDisabled is returned when the proxy directory is unavailable.
	ErrDisabled = errors.New("proxy generation disabled")
	// ErrEncodeFailed wraps ffmpeg failures.
	ErrEncodeFailed = errors.New("proxy encode failed")
)

// DefaultMaxEdge is the long-edge ceiling of generated proxies.
const DefaultMaxEdge = 1080

// Source is the subset of a loaded asset the transcoder needs.
type Source interface {
	ID() string
	Path() string
	Duration() timecode.Time
	Width() int
	Height() int
}

// Registry records proxy lifecycle changes.
type Registry interface {
	PutProxy(ctx context.Context, assetID, sourcePath, proxyPath string, size int64) error
	DeleteProxy(ctx context.Context, proxyPath string) error
}

// Options configures a Transcoder.
type Options struct {
	FFmpegPath       string
	MaxEdge          int
	ProgressInterval time.Duration
	Registry         Registry
}

// Transcoder generates and manages scrub proxies.
type Transcoder struct {
	cacheDir         string
	enabled          bool
	ffmpegPath       string
	maxEdge          int
	progressInterval time.Duration
	registry         Registry

	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// New creates a new Transcoder writing proxies into cacheDir.
func New(cacheDir string, enabled bool, opts Options) *Transcoder {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.MaxEdge <= 0 {
		opts.MaxEdge = DefaultMaxEdge
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 100 * time.Millisecond
	}

	return &Transcoder{
		cacheDir:         cacheDir,
		enabled:          enabled,
		ffmpegPath:       opts.FFmpegPath,
		maxEdge:          opts.MaxEdge,
		progressInterval: opts.ProgressInterval,
		registry:         opts.Registry,
		processes:        make(map[string]*exec.Cmd),
	}
}

// IsEnabled returns whether proxy generation is enabled.
func (t *Transcoder) IsEnabled() bool {
	return t.enabled
}

// CacheDir returns the proxy directory.
func (t *Transcoder) CacheDir() string {
	return t.cacheDir
}

// ProxyPath returns the deterministic proxy location for src.
func (t *Transcoder) ProxyPath(src Source) string {
	id := src.ID()
	if len(id) > 16 {
		id = id[:16]
	}
	base := strings.TrimSuffix(filepath.Base(src.Path()), filepath.Ext(src.Path()))
	return filepath.Join(t.cacheDir, id+"_"+sanitize(base)+".mp4")
}

// Exists reports whether a completed proxy for src is on disk.
func (t *Transcoder) Exists(src Source) bool {
	return filesystem.Exists(t.ProxyPath(src))
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() > 64 {
		return b.String()[:64]
	}
	return b.String()
}

// ScaledSize returns the proxy dimensions for a width x height source: the
// long edge is capped at maxEdge, aspect ratio is kept, and both sides are
// even. Sources already within the ceiling are returned unchanged.
func ScaledSize(width, height, maxEdge int) (int, int, bool) {
	long := max(width, height)
	if long <= maxEdge || width <= 0 || height <= 0 {
		return width, height, false
	}
	scale := float64(maxEdge) / float64(long)
	w := even(int(math.Round(float64(width) * scale)))
	h := even(int(math.Round(float64(height) * scale)))
	return w, h, true
}

func even(n int) int {
	if n%2 != 0 {
		n--
	}
	if n < 2 {
		return 2
	}
	return n
}

// Generate produces the proxy for src and returns its path. progress may be
// nil; when set it receives monotone values in [0,1] and a final exact 1.0.
func (t *Transcoder) Generate(ctx context.Context, src Source, progress func(float64)) (string, error) {
	log := logging.With("transcoder")
	if progress == nil {
		progress = func(float64) {}
	}

	if !t.enabled {
		return "", ErrDisabled
	}
	if src.Duration() <= 0 || src.Width() <= 0 || src.Height() <= 0 {
		metrics.TranscoderJobsTotal.WithLabelValues("invalid").Inc()
		return "", fmt.Errorf("%w: %s", ErrInvalidSource, src.Path())
	}

	outputPath := t.ProxyPath(src)
	if filesystem.Exists(outputPath) {
		log.Debug().Str("proxy", outputPath).Msg("proxy already exists")
		metrics.TranscoderJobsTotal.WithLabelValues("cached").Inc()
		progress(1.0)
		return outputPath, nil
	}

	if err := os.MkdirAll(t.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create proxy directory: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(outputPath, renameio.WithTempDir(t.cacheDir), renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("create pending proxy file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			log.Debug().Err(err).Msg("cleanup pending proxy file")
		}
	}()

	metrics.TranscoderJobsInProgress.Inc()
	defer metrics.TranscoderJobsInProgress.Dec()
	start := time.Now()

	log.Info().
		Str("source", src.Path()).
		Str("proxy", outputPath).
		Int("width", src.Width()).
		Int("height", src.Height()).
		Msg("generating proxy")

	if err := t.encode(ctx, src, pendingFile.Name(), outputPath, progress); err != nil {
		if ctx.Err() != nil {
			metrics.TranscoderJobsTotal.WithLabelValues("cancelled").Inc()
			log.Debug().Str("source", src.Path()).Msg("proxy generation cancelled")
			return "", ctx.Err()
		}
		metrics.TranscoderJobsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("source", src.Path()).Msg("proxy generation failed")
		return "", err
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		metrics.TranscoderJobsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("atomically replace proxy file: %w", err)
	}

	elapsed := time.Since(start)
	metrics.TranscoderJobsTotal.WithLabelValues("success").Inc()
	metrics.TranscoderJobDuration.Observe(elapsed.Seconds())

	if t.registry != nil {
		size, _ := filesystem.FileSize(outputPath)
		if err := t.registry.PutProxy(ctx, src.ID(), src.Path(), outputPath, size); err != nil {
			log.Warn().Err(err).Str("proxy", outputPath).Msg("failed to register proxy")
		}
	}

	log.Info().Str("proxy", outputPath).Dur("elapsed", elapsed).Msg("proxy ready")
	progress(1.0)
	return outputPath, nil
}

func (t *Transcoder) args(src Source, output string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-nostats",
		"-y",
		"-progress", "pipe:1",
		"-i", src.Path(),
		"-map", "0:v:0",
		"-map", "0:a:0?",
	}

	if w, h, ok := ScaledSize(src.Width(), src.Height(), t.maxEdge); ok {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", w, h))
	}

	return append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-force_key_frames", "expr:gte(t,n_forced*1)",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	)
}

func (t *Transcoder) encode(ctx context.Context, src Source, tmpPath, key string, progress func(float64)) error {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, t.args(src, tmpPath)...)
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	t.processMu.Lock()
	t.processes[key] = cmd
	t.processMu.Unlock()

	defer func() {
		t.processMu.Lock()
		delete(t.processes, key)
		t.processMu.Unlock()
	}()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start ffmpeg: %v", ErrEncodeFailed, err)
	}

	tracker := &progressTracker{total: src.Duration().Duration()}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.reportLoop(tracker, progress, done)
	}()

	tracker.consume(stdout)
	err = cmd.Wait()

	close(done)
	wg.Wait()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v: %s", ErrEncodeFailed, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// reportLoop publishes tracker changes until done is closed.
func (t *Transcoder) reportLoop(tracker *progressTracker, progress func(float64), done <-chan struct{}) {
	ticker := time.NewTicker(t.progressInterval)
	defer ticker.Stop()

	last := -1.0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if v := tracker.value(); v > last {
				last = v
				progress(v)
			}
		}
	}
}

// progressTracker folds ffmpeg -progress output into a monotone fraction.
type progressTracker struct {
	total time.Duration
	bits  atomic.Uint64
}

// ceiling keeps in-flight progress below 1.0, which marks completion.
const ceiling = 0.999

func (p *progressTracker) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		// Both keys carry microseconds.
		case "out_time_us", "out_time_ms":
			us, err := strconv.ParseInt(val, 10, 64)
			if err != nil || p.total <= 0 {
				continue
			}
			p.advance(float64(us) / float64(p.total.Microseconds()))
		case "progress":
			if val == "end" {
				p.advance(ceiling)
			}
		}
	}
	// Drain anything left so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

func (p *progressTracker) advance(v float64) {
	v = min(max(v, 0), ceiling)
	for {
		old := p.bits.Load()
		if v <= math.Float64frombits(old) {
			return
		}
		if p.bits.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

func (p *progressTracker) value() float64 {
	return math.Float64frombits(p.bits.Load())
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Remove deletes the proxy for src, if any.
func (t *Transcoder) Remove(ctx context.Context, src Source) error {
	path := t.ProxyPath(src)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to remove proxy %s: %w", path, err)
	}
	metrics.ProxyFilesRemoved.WithLabelValues("invalidated").Inc()
	t.forget(ctx, path)
	logging.Info("Removed proxy for %s", src.Path())
	return nil
}

func (t *Transcoder) forget(ctx context.Context, path string) {
	if t.registry == nil {
		return
	}
	if err := t.registry.DeleteProxy(ctx, path); err != nil {
		logging.Warn("failed to unregister proxy %s: %v", path, err)
	}
}

// Cleanup stops all active encodes.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for path, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing proxy encode for: %s", path)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill proxy encode for %s: %v", path, err)
			}
		}
	}
}

// ClearCache removes all proxies and returns the number of bytes freed.
// Pending files of encodes still running are left in place.
func (t *Transcoder) ClearCache(ctx context.Context) (int64, error) {
	tempCutoff := time.Now().Add(-staleTempAge)
	removed, freed, err := t.removeWhere(ctx, "cleared", func(info os.FileInfo) bool {
		return !isPending(info.Name()) || info.ModTime().Before(tempCutoff)
	})
	if err != nil {
		return 0, err
	}
	logging.Info("Cleared proxy cache: %d files, freed %d bytes", removed, freed)
	return freed, nil
}

// CacheSize returns the total size of the proxy directory in bytes.
func (t *Transcoder) CacheSize() (int64, error) {
	if t.cacheDir == "" {
		return 0, nil
	}
	var size int64
	err := filepath.Walk(t.cacheDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
