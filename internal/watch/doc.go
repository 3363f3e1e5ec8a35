// Package watch reports when a loaded source file is rewritten, replaced or
// removed.
//
// The parent directory is watched rather than the file itself so that
// editors and copy tools that replace a file by rename are still seen.
// Bursts of events are debounced into one notification.
package watch
