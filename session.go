package framescrub

import (
	"context"
	"errors"
	"image"
	"os"
	"sync"
	"time"

	"frame-scrubber/internal/asset"
	"frame-scrubber/internal/catalog"
	"frame-scrubber/internal/events"
	"frame-scrubber/internal/filesystem"
	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metadata"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/playback"
	"frame-scrubber/internal/thumbcache"
	"frame-scrubber/internal/watch"
)

// ProxyState describes the scrub proxy of the loaded asset.
type ProxyState string

const (
	ProxyNone       ProxyState = "none"
	ProxyGenerating ProxyState = "generating"
	ProxyReady      ProxyState = "ready"
	ProxyFailed     ProxyState = "failed"
)

// ProxyStatus is a snapshot of proxy generation for the loaded asset.
type ProxyStatus struct {
	State    ProxyState
	Progress float64
	Path     string
	Err      error
}

// session is everything tied to one loaded asset.
type session struct {
	epoch  uint64
	asset  *asset.VideoAsset
	ctx    context.Context
	cancel context.CancelFunc

	cache   *thumbcache.Cache
	nav     *playback.Navigator
	watcher *watch.Watcher

	proxyWG sync.WaitGroup

	mu          sync.RWMutex
	tiers       asset.Tiers
	proxy       ProxyStatus
	proxyCancel context.CancelFunc
	meta        metadata.Record

	metaDone chan struct{}
}

func (e *Engine) newSession(a *asset.VideoAsset, epoch uint64) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		epoch:    epoch,
		asset:    a,
		ctx:      ctx,
		cancel:   cancel,
		tiers:    a.Tiers(),
		proxy:    ProxyStatus{State: ProxyNone},
		metaDone: make(chan struct{}),
	}

	decode := func(ctx context.Context, index int) (image.Image, error) {
		return e.decoder.Preview(ctx, s.currentTiers(), a.FrameTime(index), e.cfg.ThumbSize)
	}
	s.cache = thumbcache.New(a.TotalFrames(), decode, thumbcache.Config{
		Capacity:     e.cfg.ThumbCapacity,
		LowWatermark: e.cfg.LowWatermark(),
		PreloadRate:  e.cfg.PreloadRate,
		Pressure:     e.monitor,
		OnInsert: func(index int) {
			e.publish(s, events.Event{Kind: events.ThumbnailCached, Index: index})
		},
	})

	s.nav = playback.New(a.Duration(), a.Rate(), a.TotalFrames(), playback.Config{
		TickHz: e.cfg.PlaybackTickHz,
		Observer: func(st playback.State) {
			e.publish(s, events.Event{
				Kind:     events.PlaybackChanged,
				Time:     st.Time,
				Frame:    st.Frame,
				Playing:  st.Playing,
				Timecode: st.Timecode,
			})
		},
	})
	return s
}

// start launches the background work for a freshly installed session.
func (e *Engine) start(s *session) {
	e.resolveProxy(s)

	e.wg.Add(1)
	go e.loadMetadata(s)

	if e.cfg.WatchSource {
		w, err := watch.New(s.asset.Path(), watch.DefaultDebounce, func(c watch.Change) {
			e.sourceChanged(s, c)
		})
		if err != nil {
			logging.Warn("Not watching %s for changes: %v", s.asset.Path(), err)
		} else {
			s.watcher = w
			w.Start(s.ctx)
		}
	}
}

// teardown stops all work of s and waits for its goroutines, except the
// metadata extraction which the engine wait group tracks.
func (e *Engine) teardown(s *session) {
	s.cancel()
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logging.Warn("Failed to close watcher for %s: %v", s.asset.Path(), err)
		}
	}
	s.nav.Close()
	s.cache.Close()
	s.proxyWG.Wait()

	e.bus.Publish(events.Event{Kind: events.AssetClosed, AssetID: s.asset.ID(), Epoch: s.epoch, Path: s.asset.Path()})
	logging.Debug("Closed session %d for %s", s.epoch, s.asset.Path())
}

// bind returns a context that is also cancelled when s is torn down.
func (s *session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *session) currentTiers() asset.Tiers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tiers
}

func (s *session) proxyStatus() ProxyStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy
}

func (s *session) setProgress(p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proxy.State == ProxyGenerating {
		s.proxy.Progress = p
	}
}

func (s *session) useProxy(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers = s.tiers.WithProxy(path)
	s.proxy = ProxyStatus{State: ProxyReady, Progress: 1, Path: path}
}

func (s *session) failProxy(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxy = ProxyStatus{State: ProxyFailed, Progress: s.proxy.Progress, Err: err}
}

func (s *session) dropProxy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers = s.tiers.WithProxy("")
	s.proxy = ProxyStatus{State: ProxyNone}
}

// dropMissingProxy reverts to the original when the ready proxy no longer
// exists and reports whether it did.
func (s *session) dropMissingProxy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proxy.State != ProxyReady || filesystem.Exists(s.proxy.Path) {
		return false
	}
	s.tiers = s.tiers.WithProxy("")
	s.proxy = ProxyStatus{State: ProxyNone}
	return true
}

// stopProxy cancels a running proxy generation and waits for it to exit.
func (s *session) stopProxy() {
	s.mu.Lock()
	cancel := s.proxyCancel
	s.proxyCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.proxyWG.Wait()
}

// resolveProxy reuses a known proxy or starts generating one when the
// source is above the size threshold.
func (e *Engine) resolveProxy(s *session) {
	a := s.asset
	if !e.transcoder.IsEnabled() {
		return
	}

	if e.catalog != nil {
		p, err := e.catalog.GetProxy(s.ctx, a.ID())
		switch {
		case err == nil && filesystem.Exists(p.ProxyPath):
			e.reuseProxy(s, p.ProxyPath)
			return
		case err != nil && !errors.Is(err, catalog.ErrNotFound):
			logging.Warn("Failed to look up proxy for %s: %v", a.Path(), err)
		}
	}

	if e.transcoder.Exists(a) {
		e.reuseProxy(s, e.transcoder.ProxyPath(a))
		return
	}

	if a.Size() <= e.cfg.ProxyThreshold {
		logging.Debug("%s is %d bytes, below the proxy threshold, scrubbing from the source", a.Path(), a.Size())
		return
	}
	e.startProxy(s)
}

// reuseProxy switches s to an existing proxy and marks it as used so the
// retention sweep keeps it.
func (e *Engine) reuseProxy(s *session, path string) {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		logging.Debug("Failed to touch proxy %s: %v", path, err)
	}
	if e.catalog != nil {
		if err := e.catalog.TouchProxy(s.ctx, path); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			logging.Warn("Failed to record proxy use for %s: %v", path, err)
		}
	}
	s.useProxy(path)
	logging.Debug("Reusing proxy %s for %s", path, s.asset.Path())
}

func (e *Engine) startProxy(s *session) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.proxyCancel = cancel
	s.proxy = ProxyStatus{State: ProxyGenerating}
	s.mu.Unlock()

	s.proxyWG.Add(1)
	go func() {
		defer s.proxyWG.Done()
		defer cancel()

		path, err := e.transcoder.Generate(ctx, s.asset, func(p float64) {
			s.setProgress(p)
			e.publish(s, events.Event{Kind: events.ProxyProgress, Progress: p})
		})
		if err != nil {
			if ctx.Err() != nil {
				logging.Debug("Proxy generation for %s cancelled", s.asset.Path())
				return
			}
			logging.Warn("Proxy generation failed for %s, scrubbing from the source: %v", s.asset.Path(), err)
			s.failProxy(err)
			e.publish(s, events.Event{Kind: events.ProxyFailed, Err: err.Error()})
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.useProxy(path)
		e.publish(s, events.Event{Kind: events.ProxyReady, Path: path, Progress: 1})
	}()
}

// loadMetadata fills in the metadata record of s once, from the catalog
// when a previous session stored it, else from the report s was loaded with.
func (e *Engine) loadMetadata(s *session) {
	defer e.wg.Done()
	defer close(s.metaDone)

	record, ok := e.storedMetadata(s)
	if !ok {
		record = metadata.Describe(s.asset.Path(), s.asset.Report())
		e.storeMetadata(s, record)
	}

	s.mu.Lock()
	s.meta = record
	s.mu.Unlock()
	e.publish(s, events.Event{Kind: events.MetadataReady})
}

func (e *Engine) storedMetadata(s *session) (metadata.Record, bool) {
	if e.catalog == nil {
		return metadata.Record{}, false
	}
	record, err := e.catalog.GetMetadata(s.ctx, s.asset.ID())
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			logging.Warn("Failed to read stored metadata for %s: %v", s.asset.Path(), err)
		}
		return metadata.Record{}, false
	}
	metrics.MetadataExtractionsTotal.WithLabelValues("catalog").Inc()
	return record, true
}

func (e *Engine) storeMetadata(s *session, record metadata.Record) {
	if e.catalog == nil {
		return
	}
	if err := e.catalog.PutMetadata(s.ctx, s.asset.ID(), record); err != nil {
		logging.Warn("Failed to store metadata for %s: %v", s.asset.Path(), err)
	}
}

// waitMetadata blocks until the record of s is available.
func (s *session) waitMetadata(ctx context.Context) (metadata.Record, error) {
	select {
	case <-s.metaDone:
	case <-ctx.Done():
		return metadata.Record{}, ctx.Err()
	case <-s.ctx.Done():
		return metadata.Record{}, ErrNoAsset
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, nil
}

// sourceChanged invalidates the proxy of s after its source file was
// rewritten or removed.
func (e *Engine) sourceChanged(s *session, c watch.Change) {
	if !e.isCurrent(s) {
		return
	}
	logging.Info("Source %s was %s, invalidating its proxy", c.Path, c.Op)

	s.stopProxy()
	if e.transcoder.IsEnabled() {
		if err := e.transcoder.Remove(s.ctx, s.asset); err != nil {
			logging.Warn("Failed to remove proxy for %s: %v", s.asset.Path(), err)
		}
	}
	s.dropProxy()
	s.cache.Reset()

	e.publish(s, events.Event{Kind: events.SourceChanged, Path: c.Path})
}
