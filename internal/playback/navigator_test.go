package playback

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"frame-scrubber/internal/timecode"
)

var rate30 = timecode.Rate{Num: 30, Den: 1}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) observe(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) last() (State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return State{}, 0
	}
	return r.states[len(r.states)-1], len(r.states)
}

// tenSeconds is a 10 s, 30 fps asset with 300 frames.
func tenSeconds(clock *fakeClock, rec *recorder) *Navigator {
	cfg := Config{Now: clock.Now}
	if rec != nil {
		cfg.Observer = rec.observe
	}
	return New(timecode.FromSeconds(10), rate30, 300, cfg)
}

func TestInitialState(t *testing.T) {
	n := tenSeconds(newFakeClock(), nil)
	defer n.Close()

	s := n.State()
	want := State{Time: 0, Frame: 0, Duration: 6000, TotalFrames: 300, Timecode: "00:00:00:00"}
	if s != want {
		t.Errorf("State() = %+v, want %+v", s, want)
	}
}

func TestSeekToFrame(t *testing.T) {
	rec := &recorder{}
	n := tenSeconds(newFakeClock(), rec)
	defer n.Close()

	n.SeekToFrame(150)

	s := n.State()
	if s.Frame != 150 || s.Time != timecode.FrameToTime(150, rate30) {
		t.Errorf("after SeekToFrame(150): frame=%d time=%d", s.Frame, s.Time)
	}
	if s.Timecode != "00:00:05:00" {
		t.Errorf("Timecode = %q", s.Timecode)
	}
	if got, count := rec.last(); count != 1 || got != s {
		t.Errorf("observer got %d states, last %+v", count, got)
	}

	n.SeekToFrame(-4)
	if n.State().Frame != 0 {
		t.Errorf("SeekToFrame(-4) frame = %d", n.State().Frame)
	}
	n.SeekToFrame(1000)
	if n.State().Frame != 299 {
		t.Errorf("SeekToFrame(1000) frame = %d", n.State().Frame)
	}
}

func TestSeekClamps(t *testing.T) {
	n := tenSeconds(newFakeClock(), nil)
	defer n.Close()

	tests := []struct {
		seek      timecode.Time
		wantTime  timecode.Time
		wantFrame int
	}{
		{-50, 0, 0},
		{600, 600, 30},
		{6000, 6000, 299},
		{9000, 6000, 299},
	}
	for _, tt := range tests {
		n.Seek(tt.seek)
		s := n.State()
		if s.Time != tt.wantTime || s.Frame != tt.wantFrame {
			t.Errorf("Seek(%d) = time %d frame %d, want %d/%d", tt.seek, s.Time, s.Frame, tt.wantTime, tt.wantFrame)
		}
	}
}

func TestSeekToPercentage(t *testing.T) {
	n := tenSeconds(newFakeClock(), nil)
	defer n.Close()

	tests := []struct {
		p         float64
		wantTime  timecode.Time
		wantFrame int
	}{
		{0.5, 3000, 150},
		{0, 0, 0},
		{-1, 0, 0},
		{1, 6000, 299},
		{2, 6000, 299},
		{0.25, 1500, 75},
	}
	for _, tt := range tests {
		n.SeekToPercentage(tt.p)
		s := n.State()
		if s.Time != tt.wantTime || s.Frame != tt.wantFrame {
			t.Errorf("SeekToPercentage(%v) = time %d frame %d, want %d/%d", tt.p, s.Time, s.Frame, tt.wantTime, tt.wantFrame)
		}
	}
}

func TestStepBounds(t *testing.T) {
	n := tenSeconds(newFakeClock(), nil)
	defer n.Close()

	n.PreviousFrame()
	if s := n.State(); s.Time != 0 || s.Frame != 0 {
		t.Errorf("PreviousFrame at start moved to %+v", s)
	}

	for i := 1; i < 300; i++ {
		n.NextFrame()
		if s := n.State(); s.Frame != i {
			t.Fatalf("after %d steps frame = %d", i, s.Frame)
		}
	}

	last := n.State()
	for range 5 {
		n.NextFrame()
		s := n.State()
		if s != last {
			t.Fatalf("NextFrame at last frame changed state: %+v -> %+v", last, s)
		}
		if s.Time < 0 || s.Time > s.Duration {
			t.Fatalf("time %d outside [0, %d]", s.Time, s.Duration)
		}
	}

	n.PreviousFrame()
	if n.State().Frame != 298 {
		t.Errorf("PreviousFrame from last = %d", n.State().Frame)
	}
}

func TestPlaybackAdvancesWithClock(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := newFakeClock()
	rec := &recorder{}
	n := tenSeconds(clock, rec)
	defer n.Close()

	n.Play()
	if !n.IsPlaying() {
		t.Fatal("Play() did not start playback")
	}

	clock.Advance(time.Second)
	n.Tick()
	s := n.State()
	if s.Time != 600 || s.Frame != 30 || !s.Playing {
		t.Errorf("after 1s: %+v", s)
	}

	clock.Advance(500 * time.Millisecond)
	n.Pause()
	s = n.State()
	if s.Time != 900 || s.Frame != 45 || s.Playing {
		t.Errorf("after pause: %+v", s)
	}

	clock.Advance(5 * time.Second)
	n.Tick()
	if n.State().Time != 900 {
		t.Error("paused navigator should not advance")
	}
}

func TestPlaybackStopsOnLastFrame(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := newFakeClock()
	n := tenSeconds(clock, nil)
	defer n.Close()

	n.SeekToFrame(290)
	n.Play()
	clock.Advance(time.Minute)
	n.Tick()

	s := n.State()
	if s.Playing {
		t.Error("playback should stop at the end of the media")
	}
	if s.Frame != 299 || s.Time != timecode.FrameToTime(299, rate30) {
		t.Errorf("end state = frame %d time %d, want last frame", s.Frame, s.Time)
	}

	// Playing again from the last frame starts over.
	n.Play()
	if s := n.State(); s.Time != 0 || !s.Playing {
		t.Errorf("Play at end = %+v", s)
	}
	n.Pause()
}

func TestToggle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := tenSeconds(newFakeClock(), nil)
	n.Toggle()
	if !n.IsPlaying() {
		t.Error("Toggle() should start playback")
	}
	n.Toggle()
	if n.IsPlaying() {
		t.Error("Toggle() should pause playback")
	}
	n.Close()
}

func TestTickLoopRunsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := New(timecode.FromSeconds(60), rate30, 1800, Config{TickHz: 100})
	n.Play()

	deadline := time.Now().Add(5 * time.Second)
	for n.State().Time == 0 {
		if time.Now().After(deadline) {
			t.Fatal("tick loop never advanced the playhead")
		}
		time.Sleep(5 * time.Millisecond)
	}
	n.Close()

	if n.IsPlaying() {
		t.Error("Close() should stop playback")
	}
	frozen := n.State()
	time.Sleep(30 * time.Millisecond)
	if n.State() != frozen {
		t.Error("playhead moved after Close()")
	}
}

func TestClosedNavigatorIgnoresCommands(t *testing.T) {
	n := tenSeconds(newFakeClock(), nil)
	n.Close()
	n.Close()

	n.Play()
	n.SeekToFrame(100)
	if s := n.State(); s.Playing || s.Frame != 0 {
		t.Errorf("closed navigator changed state: %+v", s)
	}
}

func TestEmptyAsset(t *testing.T) {
	n := New(0, rate30, 0, Config{Now: newFakeClock().Now})
	defer n.Close()

	n.Play()
	n.NextFrame()
	n.SeekToFrame(5)
	if s := n.State(); s.Playing || s.Frame != 0 || s.Time != 0 {
		t.Errorf("empty asset state = %+v", s)
	}
}
