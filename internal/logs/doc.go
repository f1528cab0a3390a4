// Package logs tails run log files for the daemon API and the CLI.
//
// Tail returns complete lines plus a byte offset to resume from, supports a
// negative offset for "last N lines", and can wait briefly for new lines so
// `archivist logs --follow` polls without busy looping.
package logs
