// Package config holds archivist's TOML configuration.
//
// Load resolves the file (flag, ~/.config/archivist/config.toml, then
// ./archivist.toml), layers it over Default, expands ~ in paths, applies
// environment overrides (ARCHIVIST_CHECKPOINT_DSN, ARCHIVIST_API_TOKEN,
// ARCHIVIST_NTFY_TOPIC, OTEL_EXPORTER_OTLP_ENDPOINT) and validates the result.
// Worker groups and their members live under [[workers.groups]].
package config
