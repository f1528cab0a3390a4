// Package workflow holds the immutable workflow definition model: workflows,
// their ordered steps, distribution strategies, and the per-run execution
// context handed to remote work units.
//
// Definitions are authored as YAML documents. Parse validates a document
// against an embedded JSON schema before building the model, so every
// WorkFlow in memory is structurally sound. Accessors return copies and
// empty defaults; nothing in the engine mutates a definition after it is
// built.
package workflow
