// Package distributor runs one workflow step across its work items.
//
// Distribute resolves the item set (a single item, a flat collection, or the
// level-ordered "Units" hierarchy), cuts it into fixed-size batches, and
// dispatches each batch as remote units to the step's worker pool. A batch is
// fully joined before the next one starts. Item outcomes are folded into the
// step aggregate, the Progress Tracker is advanced once per item, and large
// item sets are checkpointed after every batch so an interrupted flat step can
// resume. Distribute never returns an error: every failure becomes a FATAL
// aggregate.
package distributor
