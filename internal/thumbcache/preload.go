package thumbcache

import (
	"context"

	"golang.org/x/sync/semaphore"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metrics"
)

// PreloadOrder returns the valid indices within radius of around, nearest
// first, alternating the frame after and the frame before.
func PreloadOrder(around, radius, total int) []int {
	if total <= 0 || radius < 0 {
		return nil
	}
	out := make([]int, 0, 2*radius+1)
	if around >= 0 && around < total {
		out = append(out, around)
	}
	for d := 1; d <= radius; d++ {
		if i := around + d; i >= 0 && i < total {
			out = append(out, i)
		}
		if i := around - d; i >= 0 && i < total {
			out = append(out, i)
		}
	}
	return out
}

// Preload starts a background sweep decoding uncached frames within radius
// of around. It returns immediately and cancels any previous sweep.
func (c *Cache) Preload(around, radius int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.preloadCancel != nil {
		c.preloadCancel()
	}
	ctx, cancel := context.WithCancel(c.lifetime)
	c.preloadCancel = cancel
	c.inflight.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.inflight.Done()
		defer cancel()
		c.sweep(ctx, PreloadOrder(around, radius, c.total))
	}()
}

func (c *Cache) sweep(ctx context.Context, order []int) {
	if c.underPressure() {
		metrics.ThumbnailPreloadsTotal.WithLabelValues("throttled").Inc()
		logging.Debug("Skipping thumbnail preload under memory pressure")
		return
	}

	workers := int64(c.cfg.PreloadWorkers)
	slots := semaphore.NewWeighted(workers)
	status := "completed"

	for _, index := range order {
		if c.Status(index) == Cached || c.Status(index) == Pending {
			continue
		}
		if c.underPressure() {
			status = "throttled"
			break
		}
		if err := c.limiter.Wait(ctx); err != nil {
			status = "cancelled"
			break
		}
		if err := slots.Acquire(ctx, 1); err != nil {
			status = "cancelled"
			break
		}
		go func() {
			defer slots.Release(1)
			c.Get(ctx, index)
		}()
	}

	// Wait for the last decodes before reporting the sweep as finished.
	_ = slots.Acquire(context.Background(), workers)
	metrics.ThumbnailPreloadsTotal.WithLabelValues(status).Inc()
}

func (c *Cache) underPressure() bool {
	return c.cfg.Pressure != nil && c.cfg.Pressure.ShouldThrottle()
}
