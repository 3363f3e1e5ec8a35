package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"frame-scrubber/internal/mediatypes"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestScaledSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
		wantScaled    bool
	}{
		{"4K landscape", 3840, 2160, 1080, 608, true},
		{"4K portrait", 2160, 3840, 608, 1080, true},
		{"1080p landscape", 1920, 1080, 1080, 608, true},
		{"720p landscape", 1280, 720, 1080, 608, true},
		{"below ceiling unchanged", 960, 540, 960, 540, false},
		{"exactly at ceiling", 1080, 1080, 1080, 1080, false},
		{"odd result rounded to even", 1999, 1001, 1080, 540, true},
		{"no dimensions", 0, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, scaled := ScaledSize(tt.width, tt.height, 1080)
			if w != tt.wantW || h != tt.wantH || scaled != tt.wantScaled {
				t.Errorf("ScaledSize(%d, %d) = %d, %d, %v; want %d, %d, %v",
					tt.width, tt.height, w, h, scaled, tt.wantW, tt.wantH, tt.wantScaled)
			}
		})
	}
}

func TestProxyPath(t *testing.T) {
	tr := New("/cache/proxies", true, Options{})
	src := testSource{id: "0123456789abcdef0123456789abcdef", path: "/videos/IMG 0001.MOV"}

	got := tr.ProxyPath(src)
	want := "/cache/proxies/0123456789abcdef_IMG_0001.mp4"
	if got != want {
		t.Errorf("ProxyPath() = %q, want %q", got, want)
	}
	if tr.ProxyPath(src) != got {
		t.Error("ProxyPath() not deterministic")
	}
}

func TestArgs(t *testing.T) {
	tr := New("/cache", true, Options{})

	args := strings.Join(tr.args(testSource{path: "/v/in.mov", width: 3840, height: 2160}, "/cache/.tmp"), " ")
	for _, want := range []string{
		"-progress pipe:1",
		"-i /v/in.mov",
		"scale=1080:608",
		"-c:v libx264",
		"-preset veryfast",
		"-crf 23",
		"-pix_fmt yuv420p",
		"-c:a aac",
		"-b:a 128k",
		"-movflags +faststart",
		"-f mp4 /cache/.tmp",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}

	small := strings.Join(tr.args(testSource{path: "/v/in.mov", width: 960, height: 540}, "/out"), " ")
	if strings.Contains(small, "scale=") {
		t.Errorf("source below the ceiling should not be scaled: %s", small)
	}
}

func TestGenerate(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ff := writeFakeFFmpeg(t, scriptSuccess)
	dir := t.TempDir()
	reg := newFakeRegistry()
	tr := New(dir, true, Options{FFmpegPath: ff.path, ProgressInterval: 5 * time.Millisecond, Registry: reg})
	src := newSource(t)

	var progress progressLog
	path, err := tr.Generate(context.Background(), src, progress.record)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if path != tr.ProxyPath(src) {
		t.Errorf("Generate() path = %q, want %q", path, tr.ProxyPath(src))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("proxy not written: %v", err)
	}
	if string(data) != "proxy-bytes" {
		t.Errorf("proxy content = %q", data)
	}

	values := progress.snapshot()
	if len(values) < 2 {
		t.Fatalf("expected intermediate progress, got %v", values)
	}
	for i, v := range values {
		if v < 0 || v > 1 {
			t.Errorf("progress[%d] = %v out of range", i, v)
		}
		if i > 0 && v < values[i-1] {
			t.Errorf("progress not monotone: %v", values)
		}
	}
	if last := values[len(values)-1]; last != 1.0 {
		t.Errorf("final progress = %v, want exactly 1.0", last)
	}
	for _, v := range values[:len(values)-1] {
		if v == 1.0 {
			t.Errorf("1.0 reported before completion: %v", values)
		}
	}

	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("proxy directory = %v, want only the proxy", names)
	}
	if reg.puts[path] != src.ID() {
		t.Errorf("registry puts = %v", reg.puts)
	}
	if runs := ff.runs(t); len(runs) != 1 {
		t.Errorf("ffmpeg runs = %d, want 1", len(runs))
	}
}

func TestGenerateIdempotent(t *testing.T) {
	ff := writeFakeFFmpeg(t, scriptSuccess)
	tr := New(t.TempDir(), true, Options{FFmpegPath: ff.path, ProgressInterval: 5 * time.Millisecond})
	src := newSource(t)

	first, err := tr.Generate(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}

	var progress progressLog
	start := time.Now()
	second, err := tr.Generate(context.Background(), src, progress.record)
	if err != nil {
		t.Fatalf("second Generate() error = %v", err)
	}

	if second != first {
		t.Errorf("second path = %q, want %q", second, first)
	}
	if values := progress.snapshot(); len(values) != 1 || values[0] != 1.0 {
		t.Errorf("second progress = %v, want [1]", values)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cached Generate() took %v", elapsed)
	}
	if runs := ff.runs(t); len(runs) != 1 {
		t.Errorf("ffmpeg runs = %d, want 1", len(runs))
	}
	if !tr.Exists(src) {
		t.Error("Exists() = false after generation")
	}
}

func TestGenerateInvalidSource(t *testing.T) {
	ff := writeFakeFFmpeg(t, scriptSuccess)
	dir := t.TempDir()
	tr := New(dir, true, Options{FFmpegPath: ff.path})

	tests := []struct {
		name string
		src  testSource
	}{
		{"zero duration", testSource{id: "a", path: "/v/a.mov", width: 1920, height: 1080}},
		{"no video dimensions", testSource{id: "b", path: "/v/b.mov", duration: 600}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Generate(context.Background(), tt.src, nil)
			if !errors.Is(err, ErrInvalidSource) || !errors.Is(err, mediatypes.ErrInvalidSource) {
				t.Errorf("Generate() error = %v, want ErrInvalidSource", err)
			}
		})
	}

	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("files written for invalid sources: %v", names)
	}
	if runs := ff.runs(t); len(runs) != 0 {
		t.Errorf("ffmpeg ran %d times for invalid sources", len(runs))
	}
}

func TestGenerateDisabled(t *testing.T) {
	tr := New(t.TempDir(), false, Options{})

	if _, err := tr.Generate(context.Background(), newSource(t), nil); !errors.Is(err, ErrDisabled) {
		t.Errorf("Generate() error = %v, want ErrDisabled", err)
	}
}

func TestGenerateEncoderFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ff := writeFakeFFmpeg(t, scriptFailure)
	dir := t.TempDir()
	tr := New(dir, true, Options{FFmpegPath: ff.path, ProgressInterval: 5 * time.Millisecond})

	_, err := tr.Generate(context.Background(), newSource(t), nil)
	if !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("Generate() error = %v, want ErrEncodeFailed", err)
	}
	if !strings.Contains(err.Error(), "Unknown encoder") {
		t.Errorf("error should carry stderr tail: %v", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("files left after failure: %v", names)
	}
}

func TestGenerateCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ff := writeFakeFFmpeg(t, scriptHang)
	dir := t.TempDir()
	tr := New(dir, true, Options{FFmpegPath: ff.path, ProgressInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := tr.Generate(ctx, newSource(t), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("files left after cancellation: %v", names)
	}
}

func TestProgressTracker(t *testing.T) {
	p := &progressTracker{total: 10 * time.Second}

	input := strings.Join([]string{
		"frame=10",
		"out_time_us=N/A",
		"out_time_ms=2000000",
		"out_time_us=5000000",
		"out_time_us=3000000",
		"progress=continue",
	}, "\n")
	p.consume(strings.NewReader(input))

	if got := p.value(); got != 0.5 {
		t.Errorf("value() = %v, want 0.5 (regressions ignored)", got)
	}

	p.consume(strings.NewReader("out_time_us=20000000\n"))
	if got := p.value(); got != ceiling {
		t.Errorf("value() = %v, want ceiling %v", got, ceiling)
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))

	if got := b.String(); got != "456789ab" {
		t.Errorf("String() = %q, want %q", got, "456789ab")
	}
}

func TestCleanupNoProcesses(_ *testing.T) {
	tr := New("", true, Options{})
	tr.Cleanup()
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	reg := newFakeRegistry()
	tr := New(dir, true, Options{Registry: reg})
	src := newSource(t)

	if err := os.WriteFile(tr.ProxyPath(src), []byte("proxy"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := tr.Remove(context.Background(), src); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if tr.Exists(src) {
		t.Error("proxy still exists after Remove()")
	}
	if len(reg.deletes) != 1 {
		t.Errorf("registry deletes = %v", reg.deletes)
	}

	if err := tr.Remove(context.Background(), src); err != nil {
		t.Errorf("Remove() of missing proxy error = %v", err)
	}
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	reg := newFakeRegistry()
	tr := New(dir, true, Options{Registry: reg})

	old := time.Now().Add(-48 * time.Hour)
	files := map[string]time.Time{
		"aaaa_old.mp4":     old,
		"bbbb_fresh.mp4":   time.Now(),
		".cccc_old.mp4123": old,
		".dddd_new.mp4456": time.Now(),
	}
	for name, mod := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("12345"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}

	removed, freed, err := tr.Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 2 || freed != 10 {
		t.Errorf("Sweep() = %d files, %d bytes; want 2, 10", removed, freed)
	}

	remaining := listDir(t, dir)
	if len(remaining) != 2 {
		t.Fatalf("remaining = %v", remaining)
	}
	for _, name := range remaining {
		if strings.Contains(name, "old") {
			t.Errorf("old file %q survived sweep", name)
		}
	}
	if len(reg.deletes) != 1 {
		t.Errorf("registry deletes = %v, want only the finished proxy", reg.deletes)
	}
}

func TestClearCacheAndSize(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, true, Options{})

	for _, name := range []string{"a.mp4", "b.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, 100), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	size, err := tr.CacheSize()
	if err != nil || size != 200 {
		t.Fatalf("CacheSize() = %d, %v; want 200", size, err)
	}

	freed, err := tr.ClearCache(context.Background())
	if err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	if freed != 200 {
		t.Errorf("ClearCache() freed = %d, want 200", freed)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("files left after ClearCache(): %v", names)
	}
}

func TestClearCacheMissingDir(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "missing"), true, Options{})

	freed, err := tr.ClearCache(context.Background())
	if err != nil || freed != 0 {
		t.Errorf("ClearCache() = %d, %v; want 0, nil", freed, err)
	}
}
