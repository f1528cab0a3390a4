// Package logging assembles structured slog loggers and formatting helpers used
// across Archivist.
//
// It owns the console and JSON handlers, per-component level overrides, and
// context-aware helpers that tag log lines with run, tenant, step, and item
// identifiers. The package also provides a no-op logger for tests and wiring
// code that cannot fail.
package logging
