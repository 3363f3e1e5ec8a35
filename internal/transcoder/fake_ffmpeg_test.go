package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"frame-scrubber/internal/timecode"
)

type testSource struct {
	id       string
	path     string
	duration timecode.Time
	width    int
	height   int
}

func (s testSource) ID() string              { return s.id }
func (s testSource) Path() string            { return s.path }
func (s testSource) Duration() timecode.Time { return s.duration }
func (s testSource) Width() int              { return s.width }
func (s testSource) Height() int             { return s.height }

func newSource(t *testing.T) testSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "IMG 0001.MOV")
	if err := os.WriteFile(path, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}
	return testSource{
		id:       "0123456789abcdef0123456789abcdef",
		path:     path,
		duration: 10 * timecode.Timescale,
		width:    3840,
		height:   2160,
	}
}

// fakeFFmpeg writes an executable script standing in for ffmpeg. Each run
// appends its arguments to the returned log file.
type fakeFFmpeg struct {
	path string
	log  string
}

func (f fakeFFmpeg) runs(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.log)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

const (
	scriptSuccess = `for us in 2500000 5000000 7500000 10000000; do
  echo "out_time_us=$us"
  echo "progress=continue"
  sleep 0.05
done
echo "progress=end"
printf 'proxy-bytes' > "$out"
exit 0`

	scriptFailure = `echo "Unknown encoder 'libx264'" >&2
exit 1`

	scriptHang = `echo "out_time_us=1000000"
exec sleep 30`
)

func writeFakeFFmpeg(t *testing.T, body string) fakeFFmpeg {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg requires a POSIX shell")
	}

	dir := t.TempDir()
	f := fakeFFmpeg{
		path: filepath.Join(dir, "ffmpeg"),
		log:  filepath.Join(dir, "runs.log"),
	}

	script := fmt.Sprintf("#!/bin/sh\nfor a; do out=\"$a\"; done\necho \"$*\" >> %q\n%s\n", f.log, body)
	if err := os.WriteFile(f.path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return f
}

type fakeRegistry struct {
	mu      sync.Mutex
	puts    map[string]string
	deletes []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{puts: make(map[string]string)}
}

func (r *fakeRegistry) PutProxy(_ context.Context, assetID, _, proxyPath string, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts[proxyPath] = assetID
	return nil
}

func (r *fakeRegistry) DeleteProxy(_ context.Context, proxyPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, proxyPath)
	return nil
}

type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) record(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressLog) snapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.values...)
}
