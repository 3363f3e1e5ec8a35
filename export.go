package framescrub

import (
	"context"
	"fmt"
	"time"

	"frame-scrubber/internal/export"
	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metadata"
	"frame-scrubber/internal/metrics"
)

// DefaultExportPreferences returns JPEG with embedded metadata, saved to
// the library.
func DefaultExportPreferences() ExportPreferences {
	return export.DefaultPreferences()
}

// Export encodes the frame under the playhead at full resolution.
func (e *Engine) Export(ctx context.Context, prefs ExportPreferences) (*ExportResult, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	return e.exportFrame(ctx, s, s.nav.State().Frame, prefs)
}

// ExportFrame encodes frame index at full resolution.
func (e *Engine) ExportFrame(ctx context.Context, index int, prefs ExportPreferences) (*ExportResult, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	return e.exportFrame(ctx, s, index, prefs)
}

func (e *Engine) exportFrame(ctx context.Context, s *session, index int, prefs ExportPreferences) (*ExportResult, error) {
	if !prefs.Format.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, prefs.Format)
	}
	a := s.asset
	if !a.ValidIndex(index) {
		return nil, fmt.Errorf("%w: frame %d outside [0, %d)", ErrNoFrame, index, a.TotalFrames())
	}

	ctx, cancel := s.bind(ctx)
	defer cancel()
	start := time.Now()

	var tags metadata.ExportTags
	if prefs.EmbedMetadata {
		record, err := s.waitMetadata(ctx)
		if err != nil {
			return nil, err
		}
		tags = record.Export()
	}

	at := a.FrameTime(index)
	img, err := e.decoder.Still(ctx, s.currentTiers(), at)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", index, err)
	}

	result, err := export.Encode(img, prefs, tags, export.Filename(a.Path(), at, a.Rate(), prefs.Format))
	if err != nil {
		return nil, err
	}
	metrics.ExportDuration.WithLabelValues(string(prefs.Format)).Observe(time.Since(start).Seconds())
	logging.Info("Exported frame %d of %s as %s (%d bytes, %s)", index, a.Path(), result.Filename, len(result.Data), result.Action)
	return result, nil
}
