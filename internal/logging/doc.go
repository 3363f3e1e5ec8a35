// Package logging provides the leveled logging interface used across the
// frame engine.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (decode timings, cache churn)
//   - INFO: General operational messages
//   - WARN: Warning conditions (fallbacks, failed single-frame decodes)
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the hosting process
//
// The level is configured via the DEBUG or LOG_LEVEL environment variables.
// Output is written through zerolog; printf-style helpers are kept for the
// common case and With returns a component logger for structured fields.
package logging
