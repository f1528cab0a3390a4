// Package listing enumerates the work items of a step.
//
// The Workspace source reads a directory tree rooted at paths.workspace_dir:
//
//	<workspace>/<container>/<collection>/<item>      flat collections
//	<workspace>/<container>/UnitsLevel/ingestLevelStack.json
//
// The level document maps "level_N" keys to the item identifiers of level N.
package listing
