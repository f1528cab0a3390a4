// Package pipeline walks a workflow step by step for one container.
//
// The Runner owns the run lifecycle: it assigns the run id, registers the
// workflow with the progress tracker, derives the unique step id for each
// position, and hands every step to the distributor in declaration order.
// A FATAL step outcome ends the run; the remaining steps keep their STARTED
// status in the tracker.
//
// Runs can be executed synchronously (Run) or in the background (Start).
// Finished runs stay visible through Runs and the tracker until the Reaper
// purges them after the configured retention. When a run log directory is
// configured each run also writes a dedicated JSON log under
// <dir>/<run-id>.log.
package pipeline
