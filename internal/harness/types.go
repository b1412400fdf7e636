package harness

import "github.com/roach88/rostersync/internal/ir"

// StepResult records the outcome of one step.
type StepResult struct {
	Index     int       `json:"index"`
	Kind      string    `json:"kind"`
	Op        ir.OpType `json:"op,omitempty"`
	Applied   bool      `json:"applied"`
	Error     string    `json:"error,omitempty"`
	Revision  int64     `json:"revision"`
	UndoDepth int       `json:"undo_depth"`
	RedoDepth int       `json:"redo_depth"`

	// Digest is the roster digest after the step. It is left out of golden
	// snapshots, which carry the roster itself.
	Digest string `json:"-"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as expected and
	// every assertion held.
	Pass bool `json:"pass"`

	// SetupDigest is the roster digest right after setup (step 0).
	SetupDigest string `json:"-"`

	// Steps holds one result per scenario step, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the roster after the last step.
	Final ir.Roster `json:"final"`

	UndoDepth int `json:"undo_depth"`
	RedoDepth int `json:"redo_depth"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
		Final:  ir.Roster{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// DigestAt returns the roster digest after step n; 0 is the setup.
func (r *Result) DigestAt(n int) (string, bool) {
	if n == 0 {
		return r.SetupDigest, true
	}
	if n < 1 || n > len(r.Steps) {
		return "", false
	}
	return r.Steps[n-1].Digest, true
}
