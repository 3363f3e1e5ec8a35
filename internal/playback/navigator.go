package playback

import (
	"math"
	"sync"
	"time"

	"frame-scrubber/internal/timecode"
)

// DefaultTickHz is the playback tick frequency.
const DefaultTickHz = 30

// State is a snapshot of the playhead.
type State struct {
	Time        timecode.Time
	Frame       int
	Duration    timecode.Time
	TotalFrames int
	Playing     bool
	// Timecode is Time formatted as HH:MM:SS:FF.
	Timecode string
}

// Config configures a Navigator.
type Config struct {
	// TickHz is the playback tick frequency. Zero selects DefaultTickHz.
	TickHz int
	// Now returns the current wall-clock time. Defaults to time.Now.
	Now func() time.Time
	// Observer receives every state change. It is called outside the lock
	// and must not block.
	Observer func(State)
}

// Navigator is the playback state of one asset. It is safe for concurrent
// use; mutations are serialised by one lock.
type Navigator struct {
	duration timecode.Time
	rate     timecode.Rate
	total    int
	tick     time.Duration
	now      func() time.Time
	observer func(State)

	mu       sync.RWMutex
	current  timecode.Time
	frame    int
	playing  bool
	lastTick time.Time
	closed   bool
	stop     chan struct{}

	wg sync.WaitGroup
}

// New creates a paused Navigator at time zero.
func New(duration timecode.Time, rate timecode.Rate, total int, cfg Config) *Navigator {
	if cfg.TickHz <= 0 {
		cfg.TickHz = DefaultTickHz
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if duration < 0 {
		duration = 0
	}
	return &Navigator{
		duration: duration,
		rate:     rate.OrDefault(),
		total:    total,
		tick:     time.Second / time.Duration(cfg.TickHz),
		now:      cfg.Now,
		observer: cfg.Observer,
	}
}

// lastFrameTime is where playback stops at the end of the media.
func (n *Navigator) lastFrameTime() timecode.Time {
	if n.total <= 0 {
		return 0
	}
	return min(timecode.FrameToTime(n.total-1, n.rate), n.duration)
}

func (n *Navigator) snapshotLocked() State {
	return State{
		Time:        n.current,
		Frame:       n.frame,
		Duration:    n.duration,
		TotalFrames: n.total,
		Playing:     n.playing,
		Timecode:    timecode.Format(n.current, n.rate),
	}
}

// State returns the current playhead.
func (n *Navigator) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshotLocked()
}

// IsPlaying reports whether playback is running.
func (n *Navigator) IsPlaying() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.playing
}

func (n *Navigator) notify(s State) {
	if n.observer != nil {
		n.observer(s)
	}
}

// setLocked moves the playhead and recomputes the displayed frame.
func (n *Navigator) setLocked(t timecode.Time) {
	n.current = timecode.Clamp(t, n.duration)
	n.frame = timecode.TimeToFrame(n.current, n.rate, n.total)
}

// Play starts playback. Playing from the last frame restarts at zero.
func (n *Navigator) Play() {
	n.mu.Lock()
	if n.closed || n.playing || n.total <= 0 {
		n.mu.Unlock()
		return
	}
	if n.current >= n.lastFrameTime() {
		n.setLocked(0)
	}
	n.playing = true
	n.lastTick = n.now()
	n.stop = make(chan struct{})
	stop := n.stop
	n.wg.Add(1)
	s := n.snapshotLocked()
	n.mu.Unlock()

	go n.loop(stop)
	n.notify(s)
}

// Pause stops playback at the current position.
func (n *Navigator) Pause() {
	n.mu.Lock()
	if !n.playing {
		n.mu.Unlock()
		return
	}
	n.advanceLocked()
	n.stopLocked()
	s := n.snapshotLocked()
	n.mu.Unlock()
	n.notify(s)
}

// Toggle switches between playing and paused.
func (n *Navigator) Toggle() {
	if n.IsPlaying() {
		n.Pause()
	} else {
		n.Play()
	}
}

func (n *Navigator) stopLocked() {
	n.playing = false
	if n.stop != nil {
		close(n.stop)
		n.stop = nil
	}
}

func (n *Navigator) loop(stop <-chan struct{}) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.Tick()
		}
	}
}

// Tick advances a playing Navigator by the wall-clock time elapsed since
// the previous tick. The tick loop calls it; it is exported for callers
// that drive playback from their own clock.
func (n *Navigator) Tick() {
	n.mu.Lock()
	if !n.playing {
		n.mu.Unlock()
		return
	}
	n.advanceLocked()
	s := n.snapshotLocked()
	n.mu.Unlock()
	n.notify(s)
}

// advanceLocked moves the playhead by the elapsed time and stops on the last
// frame at the end of the media.
func (n *Navigator) advanceLocked() {
	now := n.now()
	elapsed := now.Sub(n.lastTick)
	n.lastTick = now
	if elapsed < 0 {
		elapsed = 0
	}

	next := n.current + timecode.FromDuration(elapsed)
	if next >= n.duration {
		n.setLocked(n.lastFrameTime())
		n.stopLocked()
		return
	}
	n.setLocked(next)
}

// update applies a playhead move and notifies the observer.
func (n *Navigator) update(move func() timecode.Time) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.setLocked(move())
	n.lastTick = n.now()
	s := n.snapshotLocked()
	n.mu.Unlock()
	n.notify(s)
}

// Seek moves the playhead to t, clamped to [0, duration].
func (n *Navigator) Seek(t timecode.Time) {
	n.update(func() timecode.Time { return t })
}

// SeekToPercentage moves the playhead to fraction p of the duration. p is
// clamped to [0, 1].
func (n *Navigator) SeekToPercentage(p float64) {
	if math.IsNaN(p) {
		return
	}
	p = max(0, min(1, p))
	n.update(func() timecode.Time {
		return timecode.Time(math.Round(p * float64(n.duration)))
	})
}

// SeekToFrame moves the playhead to the start of frame index, clamped to the
// valid frame range.
func (n *Navigator) SeekToFrame(index int) {
	n.update(func() timecode.Time {
		if n.total <= 0 {
			return 0
		}
		index = max(0, min(n.total-1, index))
		return timecode.FrameToTime(index, n.rate)
	})
}

// NextFrame steps one frame forward. At the last frame it does nothing.
func (n *Navigator) NextFrame() {
	n.update(func() timecode.Time { return timecode.Next(n.current, n.rate, n.total) })
}

// PreviousFrame steps one frame back. At the first frame it does nothing.
func (n *Navigator) PreviousFrame() {
	n.update(func() timecode.Time { return timecode.Previous(n.current, n.rate, n.total) })
}

// Close stops playback and waits for the tick loop to exit. Later calls
// to Play or Seek are ignored.
func (n *Navigator) Close() {
	n.mu.Lock()
	n.closed = true
	if n.playing {
		n.stopLocked()
	}
	n.mu.Unlock()
	n.wg.Wait()
}
