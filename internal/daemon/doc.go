// Package daemon coordinates the long-running archivistd process.
//
// It wires configuration, the worker registry, and the pipeline runner into
// a single lifecycle with flock-based locking to prevent multiple instances.
// Workflow definitions are loaded from the workflows directory at start and
// reloaded on demand when a run names an unknown workflow. The HTTP API
// exposes daemon status, run listing and detail (backed by the progress
// tracker), run submission and purge, and the worker registry.
//
// Keep orchestration logic here: distribution and run sequencing live in
// their own packages while the daemon focuses on startup, shutdown, and
// request routing.
package daemon
