package metrics

import (
	"time"

	"frame-scrubber/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds point-in-time engine statistics.
type Stats struct {
	CachedThumbnails int
	InFlightDecodes  int
	ProxyCacheBytes  int64
	Subscribers      int
}

// Collector periodically collects and updates gauge metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	ThumbnailCacheCount.Set(float64(stats.CachedThumbnails))
	ThumbnailInFlight.Set(float64(stats.InFlightDecodes))
	ProxyCacheBytes.Set(float64(stats.ProxyCacheBytes))
	SubscribersActive.Set(float64(stats.Subscribers))

	logging.Debug("Metrics collected: thumbnails=%d, in_flight=%d, proxy_bytes=%d, subscribers=%d",
		stats.CachedThumbnails, stats.InFlightDecodes, stats.ProxyCacheBytes, stats.Subscribers)
}
