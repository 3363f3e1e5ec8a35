package framescrub

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"frame-scrubber/internal/asset"
	"frame-scrubber/internal/events"
	"frame-scrubber/internal/export"
	"frame-scrubber/internal/mediatypes"
	"frame-scrubber/internal/transcoder"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func requireFFmpeg(t *testing.T) string {
	t.Helper()
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}
	return ffmpeg
}

// makeClip writes a 10 s, 30 fps, 320x240 QuickTime clip carrying camera
// and location tags.
func makeClip(t *testing.T, dir string) string {
	t.Helper()
	ffmpeg := requireFFmpeg(t)
	out := filepath.Join(dir, "IMG_0001.mov")
	cmd := exec.Command(ffmpeg, "-hide_banner", "-v", "error",
		"-f", "lavfi", "-i", "testsrc=size=320x240:rate=30:duration=10",
		"-c:v", "mpeg4", "-q:v", "5",
		"-movflags", "use_metadata_tags",
		"-metadata", "com.apple.quicktime.make=Apple",
		"-metadata", "com.apple.quicktime.model=iPhone 15 Pro",
		"-metadata", "com.apple.quicktime.location.ISO6709=+34.0522-118.2437+025.000/",
		out)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("could not generate test clip: %v: %s", err, output)
	}
	return out
}

func requireX264(t *testing.T, ffmpeg string) {
	t.Helper()
	out, err := exec.Command(ffmpeg, "-hide_banner", "-encoders").Output()
	if err != nil || !bytes.Contains(out, []byte("libx264")) {
		t.Skip("ffmpeg has no libx264 encoder")
	}
}

func newTestEngine(t *testing.T, configure func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig().WithCacheDir(t.TempDir())
	cfg.WatchSource = false
	cfg.MetricsEnabled = false
	if configure != nil {
		configure(cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func waitEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(60 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event channel closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestScrubTenSecondClip(t *testing.T) {
	clip := makeClip(t, t.TempDir())
	e := newTestEngine(t, nil)

	a, err := e.Load(t.Context(), clip)
	require.NoError(t, err)
	require.Equal(t, 300, a.TotalFrames())

	st, err := e.SeekToFrame(150)
	require.NoError(t, err)
	require.Equal(t, 150, st.Frame)
	require.Equal(t, "00:00:05:00", st.Timecode)

	img, ok := e.Thumbnail(t.Context(), 150)
	require.True(t, ok)
	require.LessOrEqual(t, img.Bounds().Dx(), e.Config().ThumbSize)
	require.True(t, e.IsCached(150))

	_, ok = e.Thumbnail(t.Context(), 300)
	require.False(t, ok, "index past the last frame is absent")
}

func TestStepBoundsThroughEngine(t *testing.T) {
	clip := makeClip(t, t.TempDir())
	e := newTestEngine(t, nil)
	_, err := e.Load(t.Context(), clip)
	require.NoError(t, err)

	st, err := e.PreviousFrame()
	require.NoError(t, err)
	require.Equal(t, 0, st.Frame)

	_, err = e.SeekToPercentage(1)
	require.NoError(t, err)
	st, err = e.NextFrame()
	require.NoError(t, err)
	require.Equal(t, 299, st.Frame)
}

func TestSmallSourceScrubsFromOriginal(t *testing.T) {
	clip := makeClip(t, t.TempDir())
	e := newTestEngine(t, nil)

	a, err := e.Load(t.Context(), clip)
	require.NoError(t, err)

	status, err := e.ProxyStatus()
	require.NoError(t, err)
	require.Equal(t, ProxyNone, status.State)

	preview, err := e.PreviewPath()
	require.NoError(t, err)
	require.Equal(t, a.Path(), preview)

	_, ok := e.Thumbnail(t.Context(), 10)
	require.True(t, ok)

	entries, err := os.ReadDir(e.Config().ProxyDir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.False(t, strings.HasSuffix(entry.Name(), ".mp4"), "unexpected proxy %s", entry.Name())
	}
}

func TestMetadataFromQuickTimeTags(t *testing.T) {
	clip := makeClip(t, t.TempDir())
	e := newTestEngine(t, nil)
	_, err := e.Load(t.Context(), clip)
	require.NoError(t, err)

	record, err := e.Metadata(t.Context())
	require.NoError(t, err)
	require.Equal(t, "Apple", record.Make)
	require.Equal(t, "iPhone 15 Pro", record.Model)
	require.NotNil(t, record.Location)
	require.InDelta(t, 34.0522, record.Location.Latitude, 1e-6)
	require.InDelta(t, -118.2437, record.Location.Longitude, 1e-6)
	require.True(t, record.Location.HasAltitude)
	require.InDelta(t, 25.0, record.Location.Altitude, 1e-6)
}

func TestMetadataReadsLoadReport(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell wrapper")
	}
	clip := makeClip(t, t.TempDir())
	ffprobe, err := exec.LookPath("ffprobe")
	require.NoError(t, err)

	dir := t.TempDir()
	calls := filepath.Join(dir, "calls")
	wrapper := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\necho run >> '" + calls + "'\nexec '" + ffprobe + "' \"$@\"\n"
	require.NoError(t, os.WriteFile(wrapper, []byte(script), 0o755))

	e := newTestEngine(t, func(cfg *Config) {
		cfg.FFprobePath = wrapper
		cfg.CatalogEnabled = false
	})
	_, err = e.Load(t.Context(), clip)
	require.NoError(t, err)
	record, err := e.Metadata(t.Context())
	require.NoError(t, err)
	require.Equal(t, "Apple", record.Make)

	data, err := os.ReadFile(calls)
	require.NoError(t, err)
	require.Equal(t, 1, bytes.Count(data, []byte("run\n")), "ffprobe runs once per load")
}

func TestInvalidSourceErrorsShareRoot(t *testing.T) {
	require.ErrorIs(t, asset.ErrInvalidSource, ErrInvalidSource)
	proxyErr := fmt.Errorf("%w: /videos/broken.mov", transcoder.ErrInvalidSource)
	require.ErrorIs(t, proxyErr, ErrInvalidSource)
}

func TestMetadataReusedFromCatalog(t *testing.T) {
	dir := t.TempDir()
	clip := makeClip(t, dir)
	cacheDir := t.TempDir()

	configure := func(cfg *Config) { *cfg = *cfg.WithCacheDir(cacheDir) }
	first := newTestEngine(t, configure)
	_, err := first.Load(t.Context(), clip)
	require.NoError(t, err)
	want, err := first.Metadata(t.Context())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newTestEngine(t, configure)
	ch, unsubscribe := second.Subscribe()
	defer unsubscribe()
	_, err = second.Load(t.Context(), clip)
	require.NoError(t, err)
	waitEvent(t, ch, events.MetadataReady)

	got, err := second.Metadata(t.Context())
	require.NoError(t, err)
	require.Equal(t, want.Make, got.Make)
	require.Equal(t, want.Location, got.Location)
}

func TestExportWithAndWithoutMetadata(t *testing.T) {
	clip := makeClip(t, t.TempDir())
	e := newTestEngine(t, nil)
	_, err := e.Load(t.Context(), clip)
	require.NoError(t, err)
	_, err = e.SeekToFrame(150)
	require.NoError(t, err)

	record, err := e.Metadata(t.Context())
	require.NoError(t, err)
	require.Equal(t, "Apple", record.Make)
	require.NotNil(t, record.Location)

	prefs := DefaultExportPreferences()
	with, err := e.Export(t.Context(), prefs)
	require.NoError(t, err)
	require.Equal(t, "IMG_0001_00-00-05-00.jpg", with.Filename)
	require.Equal(t, "image/jpeg", with.MIMEType)
	require.Equal(t, export.SaveToLibrary, with.Action)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(with.Data))
	require.NoError(t, err)
	require.Equal(t, 320, cfg.Width, "exports decode the source at full resolution")
	require.Equal(t, 240, cfg.Height)

	require.True(t, with.Embedded)
	embedded, err := export.ReadEmbedded(with.Data)
	require.NoError(t, err)
	require.Equal(t, "Apple", embedded.Make)
	require.Equal(t, "iPhone 15 Pro", embedded.Model)
	require.True(t, embedded.HasGPS)
	require.InDelta(t, 34.0522, embedded.Latitude, 1e-4)
	require.InDelta(t, -118.2437, embedded.Longitude, 1e-4)

	prefs.EmbedMetadata = false
	prefs.Action = export.Share
	without, err := e.Export(t.Context(), prefs)
	require.NoError(t, err)
	require.False(t, without.Embedded)
	require.Equal(t, export.Share, without.Action)
	require.False(t, bytes.Contains(without.Data, []byte("Exif\x00\x00")))
	require.False(t, bytes.Contains(without.Data, []byte("Apple")))
	require.False(t, bytes.Contains(without.Data, []byte("iPhone 15 Pro")))
	if plain, err := export.ReadEmbedded(without.Data); err == nil {
		require.Empty(t, plain.Make)
		require.Empty(t, plain.Model)
		require.False(t, plain.HasGPS)
	}
}

func TestExportFrameAndPNG(t *testing.T) {
	clip := makeClip(t, t.TempDir())
	e := newTestEngine(t, nil)
	_, err := e.Load(t.Context(), clip)
	require.NoError(t, err)

	res, err := e.ExportFrame(t.Context(), 0, ExportPreferences{Format: mediatypes.StillPNG})
	require.NoError(t, err)
	require.Equal(t, "IMG_0001_00-00-00-00.png", res.Filename)
	require.Equal(t, "image/png", res.MIMEType)

	_, err = e.ExportFrame(t.Context(), 300, DefaultExportPreferences())
	require.ErrorIs(t, err, ErrNoFrame)

	_, err = e.ExportFrame(t.Context(), 0, ExportPreferences{Format: "bmp"})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPreviewStrip(t *testing.T) {
	clip := makeClip(t, t.TempDir())
	e := newTestEngine(t, nil)
	_, err := e.Load(t.Context(), clip)
	require.NoError(t, err)

	strip, err := e.PreviewStrip(t.Context())
	require.NoError(t, err)
	require.Len(t, strip, 10)
	for i, img := range strip {
		require.NotNil(t, img, "slot %d", i)
	}
}

func TestOperationsWithoutAsset(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.State()
	require.ErrorIs(t, err, ErrNoAsset)
	_, err = e.SeekToFrame(1)
	require.ErrorIs(t, err, ErrNoAsset)
	require.ErrorIs(t, e.Play(), ErrNoAsset)
	_, err = e.Export(t.Context(), DefaultExportPreferences())
	require.ErrorIs(t, err, ErrNoAsset)
	_, ok := e.Thumbnail(t.Context(), 0)
	require.False(t, ok)

	_, err = e.Load(t.Context(), filepath.Join(t.TempDir(), "missing.mov"))
	require.ErrorIs(t, err, ErrInvalidSource)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	_, err = e.State()
	require.ErrorIs(t, err, ErrClosed)
	_, err = e.Load(t.Context(), "whatever.mov")
	require.ErrorIs(t, err, ErrClosed)
}

func TestLoadReplacesSession(t *testing.T) {
	dir := t.TempDir()
	clip := makeClip(t, dir)
	e := newTestEngine(t, nil)
	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	first, err := e.Load(t.Context(), clip)
	require.NoError(t, err)
	loaded := waitEvent(t, ch, events.AssetLoaded)
	require.Equal(t, first.ID(), loaded.AssetID)
	_, ok := e.Thumbnail(t.Context(), 5)
	require.True(t, ok)

	_, err = e.Load(t.Context(), clip)
	require.NoError(t, err)
	closed := waitEvent(t, ch, events.AssetClosed)
	require.Equal(t, loaded.Epoch, closed.Epoch)
	reloaded := waitEvent(t, ch, events.AssetLoaded)
	require.Greater(t, reloaded.Epoch, loaded.Epoch)

	require.False(t, e.IsCached(5), "a new session starts with an empty cache")
}

func TestCloseStopsBackgroundWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clip := makeClip(t, t.TempDir())
	cfg := DefaultConfig().WithCacheDir(t.TempDir())
	cfg.WatchSource = true
	e, err := New(cfg)
	require.NoError(t, err)

	_, err = e.Load(context.Background(), clip)
	require.NoError(t, err)
	require.NoError(t, e.Play())
	require.NoError(t, e.Preload(100))
	require.NoError(t, e.Close())
}

func TestProxyLifecycle(t *testing.T) {
	dir := t.TempDir()
	clip := makeClip(t, dir)
	requireX264(t, requireFFmpeg(t))

	e := newTestEngine(t, func(cfg *Config) {
		cfg.ProxyThreshold = 1
		cfg.WatchSource = true
	})
	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	a, err := e.Load(t.Context(), clip)
	require.NoError(t, err)
	ready := waitEvent(t, ch, events.ProxyReady)
	require.FileExists(t, ready.Path)

	status, err := e.ProxyStatus()
	require.NoError(t, err)
	require.Equal(t, ProxyReady, status.State)
	require.Equal(t, 1.0, status.Progress)
	preview, err := e.PreviewPath()
	require.NoError(t, err)
	require.Equal(t, ready.Path, preview)

	_, ok := e.Thumbnail(t.Context(), 42)
	require.True(t, ok)

	data, err := os.ReadFile(a.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(a.Path(), data, 0o644))

	changed := waitEvent(t, ch, events.SourceChanged)
	require.Equal(t, a.Path(), changed.Path)
	require.NoFileExists(t, ready.Path)

	preview, err = e.PreviewPath()
	require.NoError(t, err)
	require.Equal(t, a.Path(), preview)
	require.False(t, e.IsCached(42))
}

func TestReloadReusesProxy(t *testing.T) {
	clip := makeClip(t, t.TempDir())
	requireX264(t, requireFFmpeg(t))

	e := newTestEngine(t, func(cfg *Config) { cfg.ProxyThreshold = 1 })
	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	_, err := e.Load(t.Context(), clip)
	require.NoError(t, err)
	ready := waitEvent(t, ch, events.ProxyReady)

	_, err = e.Load(t.Context(), clip)
	require.NoError(t, err)
	status, err := e.ProxyStatus()
	require.NoError(t, err)
	require.Equal(t, ProxyReady, status.State, "an existing proxy is used without encoding")
	require.Equal(t, ready.Path, status.Path)

	freed, err := e.ClearProxies(t.Context())
	require.NoError(t, err)
	require.Positive(t, freed)
	status, err = e.ProxyStatus()
	require.NoError(t, err)
	require.Equal(t, ProxyNone, status.State)
}
