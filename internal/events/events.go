package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/timecode"
)

// Kind identifies an event.
type Kind string

const (
	AssetLoaded     Kind = "asset_loaded"
	AssetClosed     Kind = "asset_closed"
	PlaybackChanged Kind = "playback_changed"
	ThumbnailCached Kind = "thumbnail_cached"
	ProxyProgress   Kind = "proxy_progress"
	ProxyReady      Kind = "proxy_ready"
	ProxyFailed     Kind = "proxy_failed"
	MetadataReady   Kind = "metadata_ready"
	SourceChanged   Kind = "source_changed"
)

// Event is one state-change notification. Fields not relevant to Kind are
// zero.
type Event struct {
	Kind    Kind
	AssetID string
	// Epoch is the engine session the event belongs to.
	Epoch uint64

	Time     timecode.Time
	Frame    int
	Playing  bool
	Timecode string
	Index    int
	Progress float64
	Path     string
	Err      string
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

const dropLogEvery = 100

// Bus is an in-memory publish/subscribe registry.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]chan Event
	buffer int
	closed bool

	dropped atomic.Uint64
}

// NewBus creates a Bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{subs: make(map[uuid.UUID]chan Event), buffer: buffer}
}

// Subscribe registers a subscriber. The returned function removes it and
// closes the channel; calling it more than once is safe. On a closed bus
// the channel is already closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	id := uuid.New()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch
	metrics.SubscribersActive.Set(float64(len(b.subs)))
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
	metrics.SubscribersActive.Set(float64(len(b.subs)))
}

// Publish delivers e to every subscriber that has room for it.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			metrics.EventsDropped.Inc()
			if n := b.dropped.Add(1); n%dropLogEvery == 1 {
				logging.Warn("Event subscriber is not keeping up, %d events dropped so far (last: %s)", n, e.Kind)
			}
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the number of undelivered events.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close removes every subscriber and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	metrics.SubscribersActive.Set(0)
}
