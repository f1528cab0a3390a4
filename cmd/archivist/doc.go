// Command archivist is the operator CLI: it runs workflows in-process, queries
// and controls the archivistd daemon over its HTTP API, inspects checkpoints,
// validates workflow and configuration files, and serves a worker process.
package main
