// Package transport is the reconnecting socket client that carries roster
// replication frames.
//
// A Client moves between two states, disconnected and connected. Every
// inbound frame is a JSON envelope {"type": tag, "data": payload} and is
// validated against the server catalog before it reaches the message hook;
// frames with no tag, an unregistered tag or invalid data are logged and
// dropped.
//
// When the socket closes or a dial fails the client waits attempts × step
// (5s by default) before redialing, ticking a countdown once per second.
// After the attempt budget is spent it stops and waits for a manual
// Reconnect. A manual Reconnect cancels any pending countdown.
//
// Frames sent before the first connection are queued and flushed once the
// socket opens. After that, Send on a disconnected client fails with
// ErrNotConnected.
package transport
