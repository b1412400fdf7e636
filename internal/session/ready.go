package session

// Ready tasks.
const (
	TaskConnecting = "Connecting"
	TaskDecrypting = "Decrypting student data"
)

// Ready describes how far the session is from showing a usable roster.
type Ready struct {
	OK       bool   `json:"ok"`
	Task     string `json:"task"`
	Progress int    `json:"progress"`
	Max      int    `json:"max"`
}

// progress adapts a Session to engine.Progress.
type progress struct {
	s *Session
}

func (p progress) FullStarted(rows int) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.ready.Task = TaskDecrypting
	p.s.ready.Progress = 0
	p.s.ready.Max = rows * 3
}

func (p progress) FieldDecrypted() {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.ready.Progress++
}

func (p progress) FullApplied() {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.ready.OK = true
}
