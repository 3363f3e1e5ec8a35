package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"frame-scrubber/internal/logging"
	"frame-scrubber/internal/metadata"
	"frame-scrubber/internal/metrics"
)

// Default timeout for catalog operations
const defaultTimeout = 5 * time.Second

// schemaVersion is stored in the settings table.
const schemaVersion = "2"

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("catalog entry not found")

// Proxy is one recorded proxy file.
type Proxy struct {
	AssetID    string
	SourcePath string
	ProxyPath  string
	Size       int64
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Catalog is the persistent store.
type Catalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens or creates the catalog at dbPath. The parent directory must
// exist and be writable.
func New(ctx context.Context, dbPath string) (*Catalog, error) {
	logging.Debug("Catalog path: %s", dbPath)

	if err := checkWritable(dbPath); err != nil {
		return nil, err
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to catalog: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	c := &Catalog{db: db, dbPath: dbPath}
	if err := c.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	logging.Info("Catalog initialized at %s", dbPath)
	return c, nil
}

func checkWritable(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("cannot stat catalog directory: %w", err)
	}

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("catalog directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	if info, err := os.Stat(dbPath); err == nil && info.Mode().Perm()&0o200 == 0 {
		logging.Warn("Catalog file is read-only! Mode: %v", info.Mode())
	}
	return nil
}

func (c *Catalog) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS proxies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		proxy_path TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		last_used_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_proxies_asset ON proxies(asset_id);

	CREATE TABLE IF NOT EXISTS metadata_records (
		asset_id TEXT PRIMARY KEY,
		record TEXT NOT NULL,
		extracted_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return c.runMigrations(ctx)
}

// runMigrations applies schema migrations.
func (c *Catalog) runMigrations(ctx context.Context) error {
	// Migration 2: catalogs created before proxies.last_used_at existed
	var columnExists bool
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('proxies')
		WHERE name='last_used_at'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for last_used_at column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating catalog: adding last_used_at column to proxies table")
		if _, err := c.db.ExecContext(ctx, `ALTER TABLE proxies ADD COLUMN last_used_at INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add last_used_at column: %w", err)
		}
		if _, err := c.db.ExecContext(ctx, `UPDATE proxies SET last_used_at = created_at`); err != nil {
			return fmt.Errorf("failed to initialize last_used_at values: %w", err)
		}
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, schemaVersion)
	return err
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.dbPath
}

// recordQuery records catalog query metrics
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.CatalogQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.CatalogQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// SchemaVersion returns the stored schema version.
func (c *Catalog) SchemaVersion(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := c.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = 'schema_version'").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// PutProxy records a published proxy, replacing any entry for the same
// proxy path.
func (c *Catalog) PutProxy(ctx context.Context, assetID, sourcePath, proxyPath string, size int64) (err error) {
	start := time.Now()
	defer func() { recordQuery("put_proxy", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO proxies (asset_id, source_path, proxy_path, size, created_at, last_used_at)
		VALUES (?, ?, ?, ?, strftime('%s', 'now'), strftime('%s', 'now'))
		ON CONFLICT(proxy_path) DO UPDATE SET
			asset_id = excluded.asset_id,
			source_path = excluded.source_path,
			size = excluded.size,
			created_at = excluded.created_at,
			last_used_at = excluded.last_used_at
	`, assetID, sourcePath, proxyPath, size)
	if err != nil {
		return fmt.Errorf("failed to record proxy %s: %w", proxyPath, err)
	}
	return nil
}

const proxyColumns = `asset_id, source_path, proxy_path, size, created_at, last_used_at`

func scanProxy(row interface{ Scan(...any) error }) (Proxy, error) {
	var p Proxy
	var created, used int64
	if err := row.Scan(&p.AssetID, &p.SourcePath, &p.ProxyPath, &p.Size, &created, &used); err != nil {
		return Proxy{}, err
	}
	p.CreatedAt = time.Unix(created, 0)
	p.LastUsedAt = time.Unix(used, 0)
	return p, nil
}

// GetProxy returns the most recent proxy recorded for assetID.
func (c *Catalog) GetProxy(ctx context.Context, assetID string) (p Proxy, err error) {
	start := time.Now()
	defer func() { recordQuery("get_proxy", start, err) }()

	c.mu.RLock()
	defer c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := c.db.QueryRowContext(ctx, `SELECT `+proxyColumns+` FROM proxies WHERE asset_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, assetID)
	p, err = scanProxy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Proxy{}, ErrNotFound
	}
	return p, err
}

// TouchProxy marks a proxy as used now.
func (c *Catalog) TouchProxy(ctx context.Context, proxyPath string) (err error) {
	start := time.Now()
	defer func() { recordQuery("touch_proxy", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = c.db.ExecContext(ctx, `UPDATE proxies SET last_used_at = strftime('%s', 'now') WHERE proxy_path = ?`, proxyPath)
	return err
}

// DeleteProxy removes the entry for proxyPath. Deleting an unknown path is
// not an error.
func (c *Catalog) DeleteProxy(ctx context.Context, proxyPath string) (err error) {
	start := time.Now()
	defer func() { recordQuery("delete_proxy", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err = c.db.ExecContext(ctx, `DELETE FROM proxies WHERE proxy_path = ?`, proxyPath); err != nil {
		return fmt.Errorf("failed to delete proxy %s: %w", proxyPath, err)
	}
	return nil
}

// ListProxies returns every recorded proxy, oldest first.
func (c *Catalog) ListProxies(ctx context.Context) (proxies []Proxy, err error) {
	start := time.Now()
	defer func() { recordQuery("list_proxies", start, err) }()

	c.mu.RLock()
	defer c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, `SELECT `+proxyColumns+` FROM proxies ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Error("error closing rows: %v", closeErr)
		}
	}()

	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, p)
	}
	return proxies, rows.Err()
}

// PutMetadata stores the metadata record for assetID.
func (c *Catalog) PutMetadata(ctx context.Context, assetID string, record metadata.Record) (err error) {
	start := time.Now()
	defer func() { recordQuery("put_metadata", start, err) }()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode metadata record: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO metadata_records (asset_id, record, extracted_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(asset_id) DO UPDATE SET
			record = excluded.record,
			extracted_at = excluded.extracted_at
	`, assetID, string(data))
	return err
}

// GetMetadata returns the stored metadata record for assetID.
func (c *Catalog) GetMetadata(ctx context.Context, assetID string) (record metadata.Record, err error) {
	start := time.Now()
	defer func() { recordQuery("get_metadata", start, err) }()

	c.mu.RLock()
	defer c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var data string
	err = c.db.QueryRowContext(ctx, `SELECT record FROM metadata_records WHERE asset_id = ?`, assetID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.Record{}, ErrNotFound
	}
	if err != nil {
		return metadata.Record{}, err
	}
	if err = json.Unmarshal([]byte(data), &record); err != nil {
		return metadata.Record{}, fmt.Errorf("failed to decode metadata record: %w", err)
	}
	return record, nil
}
