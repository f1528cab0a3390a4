// Package services defines shared utilities consumed by the distribution
// engine, the worker transport, and the worker process.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, tenant IDs, step names, work items,
//     and correlation identifiers for logging and for outbound worker calls.
//   - Structured error markers plus the Wrap helper, and the mapping from a
//     marker to the message identifier carried by a FATAL item outcome.
//
// Use these helpers when wiring new components so failure classification and
// observability stay uniform across the engine.
package services
