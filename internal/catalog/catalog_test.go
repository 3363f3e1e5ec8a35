package catalog

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"frame-scrubber/internal/metadata"
	"frame-scrubber/internal/transcoder"
)

var _ transcoder.Registry = (*Catalog)(nil)

func setupTestCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	c, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, dbPath
}

func TestProxyLifecycle(t *testing.T) {
	c, _ := setupTestCatalog(t)
	ctx := context.Background()

	if _, err := c.GetProxy(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetProxy(unknown) error = %v, want ErrNotFound", err)
	}

	if err := c.PutProxy(ctx, "abc", "/videos/a.mov", "/cache/abc_a.mp4", 1234); err != nil {
		t.Fatalf("PutProxy() error = %v", err)
	}
	p, err := c.GetProxy(ctx, "abc")
	if err != nil {
		t.Fatalf("GetProxy() error = %v", err)
	}
	if p.SourcePath != "/videos/a.mov" || p.ProxyPath != "/cache/abc_a.mp4" || p.Size != 1234 {
		t.Errorf("GetProxy() = %+v", p)
	}
	if p.CreatedAt.IsZero() || p.LastUsedAt.Before(p.CreatedAt) {
		t.Errorf("timestamps = %v / %v", p.CreatedAt, p.LastUsedAt)
	}

	// Re-publishing the same path replaces the entry.
	if err := c.PutProxy(ctx, "abc", "/videos/a.mov", "/cache/abc_a.mp4", 5678); err != nil {
		t.Fatal(err)
	}
	list, err := c.ListProxies(ctx)
	if err != nil {
		t.Fatalf("ListProxies() error = %v", err)
	}
	if len(list) != 1 || list[0].Size != 5678 {
		t.Errorf("ListProxies() = %+v", list)
	}

	if err := c.TouchProxy(ctx, "/cache/abc_a.mp4"); err != nil {
		t.Errorf("TouchProxy() error = %v", err)
	}

	if err := c.DeleteProxy(ctx, "/cache/abc_a.mp4"); err != nil {
		t.Fatalf("DeleteProxy() error = %v", err)
	}
	if err := c.DeleteProxy(ctx, "/cache/abc_a.mp4"); err != nil {
		t.Errorf("DeleteProxy(twice) error = %v", err)
	}
	if _, err := c.GetProxy(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProxy() after delete error = %v", err)
	}
}

func TestListProxiesOrder(t *testing.T) {
	c, _ := setupTestCatalog(t)
	ctx := context.Background()

	for _, id := range []string{"one", "two", "three"} {
		if err := c.PutProxy(ctx, id, "/src/"+id, "/cache/"+id+".mp4", 1); err != nil {
			t.Fatal(err)
		}
	}

	list, err := c.ListProxies(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, p := range list {
		ids = append(ids, p.AssetID)
	}
	if diff := cmp.Diff([]string{"one", "two", "three"}, ids); diff != "" {
		t.Errorf("ListProxies() order mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	c, dbPath := setupTestCatalog(t)
	ctx := context.Background()

	if _, err := c.GetMetadata(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetMetadata(unknown) error = %v", err)
	}

	want := metadata.Record{
		Make:         "Apple",
		Model:        "iPhone 15 Pro",
		CreationTime: time.Date(2024, 6, 1, 11, 30, 0, 0, time.FixedZone("", -7*3600)),
		Location:     &metadata.Location{Latitude: 34.0522, Longitude: -118.2437, Altitude: 25, HasAltitude: true},
		ISO:          64,
		ExposureTime: 1.0 / 120,
	}
	if err := c.PutMetadata(ctx, "abc", want); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	// Survives a reopen.
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetMetadata(ctx, "abc")
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetMetadata() mismatch (-want +got):\n%s", diff)
	}

	want.Model = "iPhone 16"
	if err := reopened.PutMetadata(ctx, "abc", want); err != nil {
		t.Fatal(err)
	}
	if got, _ := reopened.GetMetadata(ctx, "abc"); got.Model != "iPhone 16" {
		t.Errorf("updated Model = %q", got.Model)
	}
}

func TestMigratesOldSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	old, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = old.Exec(`
		CREATE TABLE proxies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			asset_id TEXT NOT NULL,
			source_path TEXT NOT NULL,
			proxy_path TEXT NOT NULL UNIQUE,
			size INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		INSERT INTO proxies (asset_id, source_path, proxy_path, size, created_at)
		VALUES ('old', '/src/old.mov', '/cache/old.mp4', 10, 1700000000);
	`)
	if err != nil {
		t.Fatal(err)
	}
	_ = old.Close()

	c, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New() on old schema error = %v", err)
	}
	defer c.Close()

	p, err := c.GetProxy(context.Background(), "old")
	if err != nil {
		t.Fatalf("GetProxy() error = %v", err)
	}
	if !p.LastUsedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("LastUsedAt = %v, want created_at", p.LastUsedAt)
	}

	v, err := c.SchemaVersion(context.Background())
	if err != nil || v != schemaVersion {
		t.Errorf("SchemaVersion() = %q, %v", v, err)
	}
}

func TestNewUnwritableDirectory(t *testing.T) {
	if _, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "catalog.db")); err == nil {
		t.Error("New() in a missing directory should fail")
	}
}
