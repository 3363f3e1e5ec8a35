package thumbcache

import (
	"context"
	"errors"
	"image"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/workers"
)

// errStale marks a decode whose epoch ended before it completed.
var errStale = errors.New("thumbnail request superseded")

// Status is the lifecycle state of one frame index.
type Status int

const (
	// Uncached means no thumbnail exists and none is being decoded.
	Uncached Status = iota
	// Pending means a decode is in flight.
	Pending
	// Cached means a thumbnail is available.
	Cached
	// Failed means the last decode failed. A new request retries it.
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Cached:
		return "cached"
	case Failed:
		return "failed"
	default:
		return "uncached"
	}
}

// DecodeFunc produces the thumbnail for a frame index.
type DecodeFunc func(ctx context.Context, index int) (image.Image, error)

// PressureGauge reports memory pressure.
type PressureGauge interface {
	ShouldThrottle() bool
}

// Config configures a Cache.
type Config struct {
	// Capacity is the maximum number of cached thumbnails.
	Capacity int
	// LowWatermark is the size eviction trims down to.
	LowWatermark int
	// PreloadRate limits background decodes per second.
	PreloadRate float64
	// PreloadWorkers bounds concurrent background decodes.
	PreloadWorkers int
	// Pressure, when set, suppresses preloading under memory pressure.
	Pressure PressureGauge
	// OnInsert is called after a thumbnail is cached, outside the lock.
	OnInsert func(index int)
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:     200,
		LowWatermark: 150,
		PreloadRate:  20,
	}
}

type entry struct {
	img image.Image
	seq uint64
}

// Cache is a bounded, concurrency-safe thumbnail cache for one asset.
type Cache struct {
	decode  DecodeFunc
	total   int
	cfg     Config
	limiter *rate.Limiter
	group   singleflight.Group

	mu      sync.RWMutex
	entries map[int]entry
	pending map[int]struct{}
	failed  map[int]struct{}
	seq     uint64
	epoch   uint64
	closed  bool

	lifetime      context.Context
	cancel        context.CancelFunc
	preloadCancel context.CancelFunc

	// inflight tracks decode and preload goroutines. Add only happens
	// under mu while the cache is open.
	inflight sync.WaitGroup
}

// New creates a cache for an asset with total addressable frames.
func New(total int, decode DecodeFunc, cfg Config) *Cache {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.LowWatermark <= 0 || cfg.LowWatermark >= cfg.Capacity {
		cfg.LowWatermark = cfg.Capacity - (def.Capacity - def.LowWatermark)
		if cfg.LowWatermark <= 0 {
			cfg.LowWatermark = cfg.Capacity * 3 / 4
		}
	}
	if cfg.PreloadRate <= 0 {
		cfg.PreloadRate = def.PreloadRate
	}
	if cfg.PreloadWorkers <= 0 {
		cfg.PreloadWorkers = workers.ForPreload(4)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		decode:   decode,
		total:    total,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.PreloadRate), cfg.PreloadWorkers),
		entries:  make(map[int]entry),
		pending:  make(map[int]struct{}),
		failed:   make(map[int]struct{}),
		lifetime: ctx,
		cancel:   cancel,
	}
}

// Get returns the thumbnail for index, decoding it if necessary. It returns
// false for out-of-range indices, failed decodes, a cancelled ctx, or a
// closed cache.
func (c *Cache) Get(ctx context.Context, index int) (image.Image, bool) {
	if index < 0 || index >= c.total {
		return nil, false
	}

	c.mu.RLock()
	if e, ok := c.entries[index]; ok {
		c.mu.RUnlock()
		metrics.ThumbnailCacheHits.Inc()
		return e.img, true
	}
	if c.closed {
		c.mu.RUnlock()
		return nil, false
	}
	epoch := c.epoch
	lifetime := c.lifetime
	_, joining := c.pending[index]
	c.mu.RUnlock()

	if joining {
		metrics.ThumbnailCoalescedWaits.Inc()
	} else {
		metrics.ThumbnailCacheMisses.Inc()
	}

	key := strconv.FormatUint(epoch, 10) + ":" + strconv.Itoa(index)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.load(lifetime, epoch, index)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false
		}
		return res.Val.(image.Image), true
	case <-ctx.Done():
		return nil, false
	}
}

// load runs one decode for index within epoch. A caller that missed the
// entry before an earlier flight for index finished gets that result.
func (c *Cache) load(ctx context.Context, epoch uint64, index int) (image.Image, error) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return nil, errStale
	}
	if e, ok := c.entries[index]; ok {
		c.mu.Unlock()
		return e.img, nil
	}
	c.pending[index] = struct{}{}
	delete(c.failed, index)
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	img, err := c.decode(ctx, index)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil, errStale
	}
	delete(c.pending, index)
	if err != nil {
		c.failed[index] = struct{}{}
		c.mu.Unlock()
		logging.Debug("Thumbnail decode for frame %d failed: %v", index, err)
		return nil, err
	}
	c.insertLocked(index, img)
	onInsert := c.cfg.OnInsert
	c.mu.Unlock()

	if onInsert != nil {
		onInsert(index)
	}
	return img, nil
}

func (c *Cache) insertLocked(index int, img image.Image) {
	c.seq++
	c.entries[index] = entry{img: img, seq: c.seq}
	if len(c.entries) > c.cfg.Capacity {
		c.evictLocked()
	}
	metrics.ThumbnailCacheCount.Set(float64(len(c.entries)))
}

// evictLocked removes the oldest inserted entries down to the low watermark.
func (c *Cache) evictLocked() {
	type aged struct {
		index int
		seq   uint64
	}
	all := make([]aged, 0, len(c.entries))
	for idx, e := range c.entries {
		all = append(all, aged{idx, e.seq})
	}
	slices.SortFunc(all, func(a, b aged) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	n := len(all) - c.cfg.LowWatermark
	for _, a := range all[:n] {
		delete(c.entries, a.index)
	}
	metrics.ThumbnailCacheEvictions.Add(float64(n))
	logging.Debug("Evicted %d thumbnails, %d remain", n, len(c.entries))
}

// Status returns the lifecycle state of index.
func (c *Cache) Status(index int) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.entries[index]; ok {
		return Cached
	}
	if _, ok := c.pending[index]; ok {
		return Pending
	}
	if _, ok := c.failed[index]; ok {
		return Failed
	}
	return Uncached
}

// Contains reports whether index is cached.
func (c *Cache) Contains(index int) bool {
	return c.Status(index) == Cached
}

// Peek returns the cached thumbnail for index without decoding.
func (c *Cache) Peek(index int) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[index]
	return e.img, ok
}

// Len returns the number of cached thumbnails.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// InFlight returns the number of decodes in progress.
func (c *Cache) InFlight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// Capacity returns the configured capacity.
func (c *Cache) Capacity() int {
	return c.cfg.Capacity
}

// Total returns the number of addressable frames.
func (c *Cache) Total() int {
	return c.total
}

// Reset discards every entry and cancels outstanding decodes. Results of
// decodes already running are dropped when they arrive.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.resetLocked()
	c.lifetime, c.cancel = context.WithCancel(context.Background())
}

func (c *Cache) resetLocked() {
	c.epoch++
	c.cancel()
	if c.preloadCancel != nil {
		c.preloadCancel()
		c.preloadCancel = nil
	}
	c.entries = make(map[int]entry)
	c.pending = make(map[int]struct{})
	c.failed = make(map[int]struct{})
	metrics.ThumbnailCacheCount.Set(0)
}

// Close resets the cache, rejects further requests and waits for
// background work to stop.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	c.closed = true
	c.mu.Unlock()

	c.inflight.Wait()
}
