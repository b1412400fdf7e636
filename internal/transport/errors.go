package transport

import "errors"

var (
	// ErrNotConnected is returned by Send while the socket is down.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrManualReconnect is reported once the automatic reconnect budget is
	// spent; only Reconnect will dial again.
	ErrManualReconnect = errors.New("transport: timed out, reconnect manually")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("transport: client closed")
)
