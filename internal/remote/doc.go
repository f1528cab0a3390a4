// Package remote turns one work item of one workflow step into a task for a
// worker pool.
//
// A Unit binds the run identity to its context, resolves the pool serving the
// step's worker group, submits the step and item description over the
// selected worker's transport, and classifies every failure into a FATAL item
// outcome. Transport failures trigger a bounded liveness probe; a worker that
// stays silent for the whole probe is deregistered from its group. A Unit
// never returns an error: callers always receive an ItemStatus.
package remote
