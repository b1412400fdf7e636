package testutil

import (
	"fmt"
	"sync"
)

// ProgressRecorder records Full decrypt progress callbacks.
// Safe for concurrent use.
type ProgressRecorder struct {
	mu      sync.Mutex
	rows    []int
	fields  int
	applied int
}

// FullStarted records the row count of a snapshot.
func (p *ProgressRecorder) FullStarted(rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = append(p.rows, rows)
}

// FieldDecrypted counts one decrypted field.
func (p *ProgressRecorder) FieldDecrypted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields++
}

// FullApplied counts one applied snapshot.
func (p *ProgressRecorder) FullApplied() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied++
}

// Rows returns the row counts passed to FullStarted, in order.
func (p *ProgressRecorder) Rows() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.rows...)
}

// Fields returns the number of FieldDecrypted calls.
func (p *ProgressRecorder) Fields() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fields
}

// Applied returns the number of FullApplied calls.
func (p *ProgressRecorder) Applied() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applied
}

// Notice is one recorded user-facing notification.
type Notice struct {
	Level   string
	Message string
}

func (n Notice) String() string {
	return fmt.Sprintf("%s: %s", n.Level, n.Message)
}

// NotifierRecorder records user-facing notifications.
// Safe for concurrent use.
type NotifierRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *NotifierRecorder) add(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Level: level, Message: msg})
}

// Info records an informational notice.
func (r *NotifierRecorder) Info(msg string) { r.add("info", msg) }

// Warn records a warning.
func (r *NotifierRecorder) Warn(msg string) { r.add("warn", msg) }

// Error records an error.
func (r *NotifierRecorder) Error(msg string) { r.add("error", msg) }

// Notices returns every notice so far, in order.
func (r *NotifierRecorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Messages returns the messages recorded at level, in order.
func (r *NotifierRecorder) Messages(level string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notices {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}
