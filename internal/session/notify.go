package session

import "log/slog"

// User-facing notices.
const (
	MsgOffline        = "Edits made while disconnected will NOT apply."
	MsgTimedOut       = "Timed out. Please reconnect manually."
	MsgSessionExpired = "Session expired. Please sign in again."
	MsgApplyFailed    = "Failed to apply replication"
)

// Notifier shows short messages to the user.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// LogNotifier writes notices to a slog.Logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

func (n LogNotifier) Info(msg string)  { n.logger().Info(msg, "notice", true) }
func (n LogNotifier) Warn(msg string)  { n.logger().Warn(msg, "notice", true) }
func (n LogNotifier) Error(msg string) { n.logger().Error(msg, "notice", true) }
