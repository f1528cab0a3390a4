// Package api is the HTTP contract between archivistd and the archivist CLI.
//
// types.go holds the JSON payloads (camelCase keys, status codes by name),
// convert.go maps runner records, tracker steps and registry views onto them,
// and Client wraps the endpoints. Client errors carry the services markers:
// 404 is ErrNotFound, 400/409 ErrValidation, 401/403 ErrConfiguration, and
// anything else ErrTransient. IsUnavailable reports a daemon that could not
// be reached at all.
package api
