package metadata

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metrics"
	"frame-scrubber/internal/probe"
)

// commonKeys lists, per common field, the lowercase tag keys that carry it in
// order of preference.
var commonKeys = struct {
	make, model, software, creation, location []string
}{
	make:     []string{"com.apple.quicktime.make", "make", "com.android.manufacturer", "manufacturer"},
	model:    []string{"com.apple.quicktime.model", "model", "com.android.model"},
	software: []string{"com.apple.quicktime.software", "software", "com.android.version"},
	creation: []string{"com.apple.quicktime.creationdate", "creation_time", "date"},
	location: []string{"com.apple.quicktime.location.iso6709", "location", "location-eng", "com.android.capture.location"},
}

var isCommonKey = func() map[string]bool {
	m := make(map[string]bool)
	for _, keys := range [][]string{commonKeys.make, commonKeys.model, commonKeys.software, commonKeys.creation, commonKeys.location} {
		for _, k := range keys {
			m[k] = true
		}
	}
	return m
}()

// rule assigns a tag value to a detail field when the lowercase key contains
// any of its tokens and none of its skip tokens. apply reports whether the
// value was usable.
type rule struct {
	tokens []string
	skip   []string
	apply  func(r *Record, value string) bool
}

// detailRules are evaluated in order; the first rule that matches a key and
// accepts its value wins.
var detailRules = []rule{
	{[]string{"lens"}, nil, func(r *Record, v string) bool {
		if r.LensModel != "" || v == "" {
			return false
		}
		r.LensModel = v
		return true
	}},
	{[]string{"35mm", "equivalent"}, nil, func(r *Record, v string) bool {
		return setPositive(&r.FocalLength35mm, v)
	}},
	{[]string{"focal"}, nil, func(r *Record, v string) bool {
		return setPositive(&r.FocalLength, v)
	}},
	{[]string{"iso"}, nil, func(r *Record, v string) bool {
		if r.ISO > 0 {
			return false
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return false
		}
		r.ISO = n
		return true
	}},
	{[]string{"exposure", "shutter"}, []string{"program", "mode", "bias", "compensation"}, func(r *Record, v string) bool {
		return setPositive(&r.ExposureTime, v)
	}},
	{[]string{"fnumber", "aperture"}, nil, func(r *Record, v string) bool {
		return setPositive(&r.Aperture, strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "f/"))
	}},
}

func setPositive(dst *float64, value string) bool {
	if *dst > 0 {
		return false
	}
	f, ok := parseNumber(value)
	if !ok || f <= 0 {
		return false
	}
	*dst = f
	return true
}

// parseNumber accepts decimals, rationals ("1/120") and values with a unit
// suffix ("26 mm").
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	if field, _, ok := strings.Cut(s, " "); ok {
		s = field
	}
	s = strings.TrimSuffix(s, "mm")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var creationLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05",
}

func parseCreationTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range creationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// lowerKeys returns the tags keyed by lowercase name. On a case collision the
// lexically first original key wins.
func lowerKeys(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		lk := strings.ToLower(k)
		if _, ok := out[lk]; !ok {
			out[lk] = tags[k]
		}
	}
	return out
}

// tagSets returns the format tags followed by the video stream tags and the
// remaining stream tags.
func tagSets(report *probe.Result) []map[string]string {
	sets := []map[string]string{lowerKeys(report.Format.Tags)}
	video, hasVideo := report.VideoStream()
	if hasVideo {
		sets = append(sets, lowerKeys(video.Tags))
	}
	for _, s := range report.Streams {
		if hasVideo && s.Index == video.Index {
			continue
		}
		if len(s.Tags) > 0 {
			sets = append(sets, lowerKeys(s.Tags))
		}
	}
	return sets
}

func first(sets []map[string]string, keys []string, accept func(string) bool) {
	for _, tags := range sets {
		for _, k := range keys {
			if v, ok := tags[k]; ok && accept(v) {
				return
			}
		}
	}
}

// Extract builds a Record from an ffprobe report.
func Extract(report *probe.Result) Record {
	var r Record
	if report == nil {
		return r
	}
	sets := tagSets(report)

	// Pass 1: common keys.
	commonPass := []struct {
		keys   []string
		done   func() bool
		accept func(string) bool
	}{
		{commonKeys.make, func() bool { return r.Make != "" }, func(v string) bool {
			r.Make = strings.TrimSpace(v)
			return r.Make != ""
		}},
		{commonKeys.model, func() bool { return r.Model != "" }, func(v string) bool {
			r.Model = strings.TrimSpace(v)
			return r.Model != ""
		}},
		{commonKeys.software, func() bool { return r.Software != "" }, func(v string) bool {
			r.Software = strings.TrimSpace(v)
			return r.Software != ""
		}},
		{commonKeys.creation, func() bool { return !r.CreationTime.IsZero() }, func(v string) bool {
			t, ok := parseCreationTime(v)
			if ok {
				r.CreationTime = t
			}
			return ok
		}},
		{commonKeys.location, func() bool { return r.Location != nil }, func(v string) bool {
			loc, ok := ParseISO6709(v)
			if ok {
				r.Location = &loc
			}
			return ok
		}},
	}
	for _, field := range commonPass {
		if r.commonComplete() {
			break
		}
		if !field.done() {
			first(sets, field.keys, field.accept)
		}
	}

	if r.detailComplete() {
		return r
	}

	// Pass 2: substring rules over every remaining key.
	for _, tags := range sets {
		for _, key := range slices.Sorted(maps.Keys(tags)) {
			if isCommonKey[key] {
				continue
			}
			for _, rl := range detailRules {
				if containsAny(key, rl.tokens) && !containsAny(key, rl.skip) && rl.apply(&r, tags[key]) {
					break
				}
			}
			if r.detailComplete() {
				return r
			}
		}
	}
	return r
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Describe extracts the metadata of path from the report it was loaded with.
func Describe(path string, report *probe.Result) Record {
	r := Extract(report)
	metrics.MetadataExtractionsTotal.WithLabelValues("probe").Inc()
	logging.Debug("Extracted metadata for %s: make=%q model=%q location=%v", path, r.Make, r.Model, r.Location != nil)
	return r
}
