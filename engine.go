package framescrub

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"frame-scrubber/internal/asset"
	"frame-scrubber/internal/catalog"
	"frame-scrubber/internal/config"
	"frame-scrubber/internal/events"
	"frame-scrubber/internal/export"
	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/media"
	"frame-scrubber/internal/mediatypes"
	"frame-scrubber/internal/memory"
	"frame-scrubber/internal/metadata"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/playback"
	"frame-scrubber/internal/probe"
	"frame-scrubber/internal/timecode"
	"frame-scrubber/internal/transcoder"
)

var (
	// ErrNoAsset is returned by operations that need a loaded asset.
	ErrNoAsset = errors.New("no asset loaded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")

	// ErrInvalidSource matches every error about a source that cannot be
	// loaded or proxied, including the failure recorded in ProxyStatus.
	ErrInvalidSource = mediatypes.ErrInvalidSource
	// ErrNoFrame is returned when a frame index or time has no decodable
	// frame.
	ErrNoFrame = media.ErrNoFrame
	// ErrUnsupportedFormat is returned for an unknown export format.
	ErrUnsupportedFormat = mediatypes.ErrUnsupportedFormat
)

type (
	// Config holds the engine settings.
	Config = config.Config
	// Asset is a probed video file.
	Asset = asset.VideoAsset
	// Event is a notification published to subscribers.
	Event = events.Event
	// EventKind identifies what an Event reports.
	EventKind = events.Kind
	// State is a snapshot of the playhead.
	State = playback.State
	// MetadataRecord is the camera, capture and location data of an asset.
	MetadataRecord = metadata.Record
	// ExportPreferences control how a still is encoded.
	ExportPreferences = export.Preferences
	// ExportResult is one encoded still.
	ExportResult = export.Result
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) { return config.Load() }

// Engine coordinates frame access for one loaded asset at a time.
type Engine struct {
	cfg        *config.Config
	prober     *probe.Prober
	decoder    *media.Decoder
	transcoder *transcoder.Transcoder
	catalog    *catalog.Catalog
	bus        *events.Bus
	monitor    *memory.Monitor
	collector  *metrics.Collector

	// lifecycle serializes Load, Unload and Close.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	session *session
	epoch   uint64
	closed  bool

	wg sync.WaitGroup
}

// New creates an engine. A nil cfg uses DefaultConfig. The cache directory
// is created if needed; when it is not writable the engine runs without
// proxies and catalog.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg = cfg.WithCacheDir(cfg.CacheDir)
	wantProxies := cfg.ProxyEnabled
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	cfg.ProxyEnabled = cfg.ProxyEnabled && wantProxies

	e := &Engine{
		cfg:     cfg,
		prober:  probe.New(cfg.FFprobePath, 0),
		decoder: media.NewDecoder(cfg.FFmpegPath, 0),
		bus:     events.NewBus(events.DefaultBuffer),
		monitor: memory.NewMonitor(memory.DefaultConfig()),
	}

	opts := transcoder.Options{FFmpegPath: cfg.FFmpegPath, MaxEdge: cfg.ProxyMaxEdge}
	if cfg.CatalogEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		cat, err := catalog.New(ctx, cfg.CatalogPath)
		cancel()
		if err != nil {
			logging.Warn("Catalog unavailable, continuing without it: %v", err)
		} else {
			e.catalog = cat
			opts.Registry = cat
		}
	}
	e.transcoder = transcoder.New(cfg.ProxyDir, cfg.ProxyEnabled, opts)

	if err := media.InitVips(); err != nil {
		logging.Warn("libvips unavailable, HEIF export disabled: %v", err)
	}

	e.monitor.Start()
	if cfg.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(config.Version, config.GoVersion)
		e.collector = metrics.NewCollector(e, 0)
		e.collector.Start()
	}

	logging.Info("Frame engine ready (proxies: %v, catalog: %v)", cfg.ProxyEnabled, e.catalog != nil)
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return *e.cfg
}

func (e *Engine) current() (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.session == nil {
		return nil, ErrNoAsset
	}
	return e.session, nil
}

func (e *Engine) isCurrent(s *session) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed && e.session == s
}

// publish delivers ev for s unless s has been replaced.
func (e *Engine) publish(s *session, ev events.Event) {
	if !e.isCurrent(s) {
		return
	}
	ev.AssetID = s.asset.ID()
	ev.Epoch = s.epoch
	e.bus.Publish(ev)
}

// Load opens path and makes it the current asset, replacing any previous
// one. It returns once the asset is probed; proxy generation and metadata
// extraction continue in the background.
func (e *Engine) Load(ctx context.Context, path string) (*Asset, error) {
	if _, err := e.current(); errors.Is(err, ErrClosed) {
		return nil, err
	}

	a, err := asset.Load(ctx, e.prober, path)
	if err != nil {
		return nil, err
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	old := e.session
	e.epoch++
	s := e.newSession(a, e.epoch)
	e.session = s
	e.mu.Unlock()

	if old != nil {
		e.teardown(old)
	}
	e.start(s)

	tier := "direct"
	if s.proxyStatus().State != ProxyNone {
		tier = "proxied"
	}
	metrics.AssetsLoadedTotal.WithLabelValues(tier).Inc()

	logging.Info("Loaded %s: %s, %d frames at %s, %dx%d",
		a.Path(), timecode.Format(a.Duration(), a.Rate()), a.TotalFrames(), a.Rate(), a.Width(), a.Height())
	e.publish(s, events.Event{Kind: events.AssetLoaded, Path: a.Path()})
	return a, nil
}

// Unload closes the current asset, if any.
func (e *Engine) Unload() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()

	if s != nil {
		e.teardown(s)
	}
}

// Asset returns the current asset.
func (e *Engine) Asset() (*Asset, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	return s.asset, nil
}

// Thumbnail returns the thumbnail for frame index, decoding it if needed.
// It returns false for out-of-range indices, failed decodes and when no
// asset is loaded.
func (e *Engine) Thumbnail(ctx context.Context, index int) (image.Image, bool) {
	s, err := e.current()
	if err != nil {
		return nil, false
	}
	return s.cache.Get(ctx, index)
}

// IsCached reports whether the thumbnail for index is cached.
func (e *Engine) IsCached(index int) bool {
	s, err := e.current()
	if err != nil {
		return false
	}
	return s.cache.Contains(index)
}

// Preload starts warming the thumbnails around frame index.
func (e *Engine) Preload(around int) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	s.cache.Preload(around, e.cfg.PreloadRadius)
	return nil
}

// PreviewStrip returns evenly spaced small thumbnails across the asset.
// Slots that failed to decode are nil.
func (e *Engine) PreviewStrip(ctx context.Context) ([]image.Image, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.bind(ctx)
	defer cancel()
	return e.decoder.PreviewStrip(ctx, s.currentTiers(), s.asset.Duration(), e.cfg.StripThumbSize)
}

// PreviewPath returns the file scrubbing currently decodes from.
func (e *Engine) PreviewPath() (string, error) {
	s, err := e.current()
	if err != nil {
		return "", err
	}
	return s.currentTiers().PreviewPath(), nil
}

// ProxyStatus returns the state of the current asset's proxy.
func (e *Engine) ProxyStatus() (ProxyStatus, error) {
	s, err := e.current()
	if err != nil {
		return ProxyStatus{}, err
	}
	return s.proxyStatus(), nil
}

// State returns the playhead of the current asset.
func (e *Engine) State() (State, error) {
	s, err := e.current()
	if err != nil {
		return State{}, err
	}
	return s.nav.State(), nil
}

// Play starts playback.
func (e *Engine) Play() error {
	s, err := e.current()
	if err != nil {
		return err
	}
	s.nav.Play()
	return nil
}

// Pause stops playback.
func (e *Engine) Pause() error {
	s, err := e.current()
	if err != nil {
		return err
	}
	s.nav.Pause()
	return nil
}

// Toggle switches between playing and paused.
func (e *Engine) Toggle() error {
	s, err := e.current()
	if err != nil {
		return err
	}
	s.nav.Toggle()
	return nil
}

// Seek moves the playhead to t, clamped to the asset.
func (e *Engine) Seek(t timecode.Time) (State, error) {
	return e.navigate(func(n *playback.Navigator) { n.Seek(t) })
}

// SeekToPercentage moves the playhead to fraction p of the duration.
func (e *Engine) SeekToPercentage(p float64) (State, error) {
	return e.navigate(func(n *playback.Navigator) { n.SeekToPercentage(p) })
}

// SeekToFrame moves the playhead to the start of frame index.
func (e *Engine) SeekToFrame(index int) (State, error) {
	return e.navigate(func(n *playback.Navigator) { n.SeekToFrame(index) })
}

// NextFrame steps one frame forward. It is a no-op on the last frame.
func (e *Engine) NextFrame() (State, error) {
	return e.navigate((*playback.Navigator).NextFrame)
}

// PreviousFrame steps one frame back. It is a no-op on the first frame.
func (e *Engine) PreviousFrame() (State, error) {
	return e.navigate((*playback.Navigator).PreviousFrame)
}

// navigate applies move and warms the thumbnails around the new frame.
func (e *Engine) navigate(move func(*playback.Navigator)) (State, error) {
	s, err := e.current()
	if err != nil {
		return State{}, err
	}
	move(s.nav)
	st := s.nav.State()
	if s.asset.TotalFrames() > 0 {
		s.cache.Preload(st.Frame, e.cfg.PreloadRadius)
	}
	return st, nil
}

// Metadata returns the current asset's metadata record, waiting for the
// background extraction to finish.
func (e *Engine) Metadata(ctx context.Context) (MetadataRecord, error) {
	s, err := e.current()
	if err != nil {
		return MetadataRecord{}, err
	}
	return s.waitMetadata(ctx)
}

// Subscribe registers for engine events. The returned function
// unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.bus.Subscribe()
}

// SweepProxies removes proxies older than the configured retention and
// returns the number of files and bytes removed.
func (e *Engine) SweepProxies(ctx context.Context) (int, int64, error) {
	if _, err := e.current(); errors.Is(err, ErrClosed) {
		return 0, 0, err
	}
	removed, freed, err := e.transcoder.Sweep(ctx, e.cfg.ProxyRetention)
	e.revalidateProxy()
	return removed, freed, err
}

// ClearProxies removes every proxy and returns the bytes freed.
func (e *Engine) ClearProxies(ctx context.Context) (int64, error) {
	if _, err := e.current(); errors.Is(err, ErrClosed) {
		return 0, err
	}
	freed, err := e.transcoder.ClearCache(ctx)
	e.revalidateProxy()
	return freed, err
}

// revalidateProxy falls back to the original when the current proxy was
// removed from disk.
func (e *Engine) revalidateProxy() {
	s, err := e.current()
	if err != nil {
		return
	}
	if s.dropMissingProxy() {
		logging.Info("Proxy for %s was removed, scrubbing from the source", s.asset.Path())
	}
}

// GetStats implements metrics.StatsProvider.
func (e *Engine) GetStats() metrics.Stats {
	stats := metrics.Stats{Subscribers: e.bus.Len()}
	if s, err := e.current(); err == nil {
		stats.CachedThumbnails = s.cache.Len()
		stats.InFlightDecodes = s.cache.InFlight()
	}
	size, err := e.transcoder.CacheSize()
	if err != nil {
		logging.Debug("Failed to measure proxy cache: %v", err)
	}
	stats.ProxyCacheBytes = size
	return stats
}

// Close tears down the current asset, stops background work and releases
// the catalog. libvips stays initialized for the process.
func (e *Engine) Close() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	s := e.session
	e.session = nil
	e.closed = true
	e.mu.Unlock()

	if s != nil {
		e.teardown(s)
	}
	e.wg.Wait()
	e.transcoder.Cleanup()

	if e.collector != nil {
		e.collector.Stop()
	}
	e.monitor.Stop()
	e.bus.Close()

	if e.catalog != nil {
		if err := e.catalog.Close(); err != nil {
			return fmt.Errorf("failed to close catalog: %w", err)
		}
	}
	logging.Info("Frame engine closed")
	return nil
}
