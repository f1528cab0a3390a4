// Package progress tracks the live state of running pipeline instances.
//
// A Tracker is created once per process and injected into the distributor,
// the pipeline runner, and the daemon's status endpoint. Entries live until
// Purge is called.
package progress
