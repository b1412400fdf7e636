// Package devserver is an in-process reference server for the roster
// replication protocol.
//
// It keeps the roster in a SQLite store, authenticates sessions with HS256
// bearer tokens, answers Authenticate with a Full snapshot, and fans every
// applied Replicate out to all authenticated sessions. It exists for local
// development and end-to-end tests; production deployments talk to the real
// roster service.
package devserver
