// Package preflight provides readiness checks for the filesystem paths,
// workflow definitions, checkpoint store, and workers archivist depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failed check as a
//     warning. Startup continues so a worker that comes up later is not fatal.
//   - The CLI "archivist doctor" command prints every result and exits
//     non-zero when any check fails.
package preflight
