// Package session ties the replication engine to the socket client.
//
// A Session holds the credentials (bearer token and field cipher), sends
// the Authenticate handshake whenever the socket opens or the token
// changes, routes validated Replicate frames into the engine queue, and
// reports progress of the first snapshot through Ready.
//
// Writes are fail-closed: Send while the socket is down is rejected with
// ErrOffline and a visible notice, never queued.
package session
