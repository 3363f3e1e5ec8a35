// Package catalog persists proxy files and extracted metadata records in a
// SQLite database so they survive between sessions.
//
// Proxies are recorded when the transcoder publishes one and removed when
// it deletes one, which lets the engine reuse a proxy for the same content
// hash without probing the cache directory. Metadata records are stored as
// JSON keyed by asset ID.
//
// The database runs in WAL mode with a busy timeout. All queries are
// bounded by a default timeout and recorded in Prometheus metrics.
package catalog
