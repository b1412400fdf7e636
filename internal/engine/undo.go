package engine

import (
	"context"
	"fmt"

	"github.com/roach88/rostersync/internal/ir"
)

// Bucket selects the history stack an inverse operation is pushed onto.
type Bucket int

const (
	// BucketUndo is the stack of inverses of applied operations.
	BucketUndo Bucket = iota
	// BucketRedo is the stack of inverses of undone operations.
	BucketRedo
)

func (b Bucket) String() string {
	switch b {
	case BucketUndo:
		return "undo"
	case BucketRedo:
		return "redo"
	}
	return "unknown"
}

// UndoManager holds the undo and redo stacks.
//
// Not safe for concurrent use; the Engine guards it with the apply lock.
type UndoManager struct {
	applied   []ir.Operation
	unapplied []ir.Operation
}

// NewUndoManager creates empty history.
func NewUndoManager() *UndoManager {
	return &UndoManager{}
}

func (u *UndoManager) stack(b Bucket) *[]ir.Operation {
	if b == BucketRedo {
		return &u.unapplied
	}
	return &u.applied
}

// Push records an inverse operation on bucket b.
func (u *UndoManager) Push(b Bucket, op ir.Operation) {
	s := u.stack(b)
	*s = append(*s, op)
}

// Pop removes the most recent operation from bucket b.
func (u *UndoManager) Pop(b Bucket) (ir.Operation, bool) {
	s := u.stack(b)
	n := len(*s)
	if n == 0 {
		return nil, false
	}
	op := (*s)[n-1]
	(*s)[n-1] = nil
	*s = (*s)[:n-1]
	return op, true
}

// Peek returns the most recent operation in bucket b without removing it.
func (u *UndoManager) Peek(b Bucket) (ir.Operation, bool) {
	s := *u.stack(b)
	if len(s) == 0 {
		return nil, false
	}
	return s[len(s)-1], true
}

// Depth returns the number of operations in bucket b.
func (u *UndoManager) Depth(b Bucket) int {
	return len(*u.stack(b))
}

// ClearRedo empties the redo stack.
func (u *UndoManager) ClearRedo() {
	clear(u.unapplied)
	u.unapplied = u.unapplied[:0]
}

// Clear empties both stacks.
func (u *UndoManager) Clear() {
	clear(u.applied)
	u.applied = u.applied[:0]
	u.ClearRedo()
}

// Undo reverts the most recent applied operation.
//
// The inverse is applied with bucket=redo and clearRedo=false, so its own
// inverse lands on the redo stack. Returns false if there is nothing to undo.
// If the inverse fails to apply it is put back and the roster is unchanged.
func (e *Engine) Undo(ctx context.Context) (bool, error) {
	return e.step(ctx, BucketUndo, BucketRedo)
}

// Redo re-applies the most recently undone operation.
func (e *Engine) Redo(ctx context.Context) (bool, error) {
	return e.step(ctx, BucketRedo, BucketUndo)
}

func (e *Engine) step(ctx context.Context, from, to Bucket) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op, ok := e.history.Peek(from)
	if !ok {
		return false, nil
	}
	if e.currentCipher() == nil {
		return false, &ApplyError{
			Code: ErrCodeMissingKey,
			Op:   op.OpType(),
			Err:  fmt.Errorf("cannot %s without a field key", from),
		}
	}

	e.history.Pop(from)
	if err := e.applyLocked(ctx, op, to, false); err != nil {
		e.history.Push(from, op)
		return false, err
	}
	return true, nil
}
