package ir

// Version constants for the wire protocol and client.
const (
	// ProtocolVersion is the replication wire protocol version.
	ProtocolVersion = "1"

	// ClientVersion is the rostersync client version.
	ClientVersion = "0.1.0"
)
