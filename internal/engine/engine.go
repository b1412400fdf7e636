package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/rostersync/internal/cipher"
	"github.com/roach88/rostersync/internal/ir"
)

// DefaultDecryptWorkers bounds the number of rows decrypted concurrently
// while applying a Full snapshot.
const DefaultDecryptWorkers = 8

// Progress receives decrypt progress while a Full snapshot is applied.
//
// FieldDecrypted is called from decrypt workers concurrently, so
// implementations must be safe for concurrent use. All methods are called
// while the apply lock is held and must not call back into the Engine.
type Progress interface {
	// FullStarted is called before decrypting a snapshot of rows students.
	FullStarted(rows int)
	// FieldDecrypted is called once per decrypted student field.
	FieldDecrypted()
	// FullApplied is called after the snapshot replaced the roster.
	FullApplied()
}

// ErrorHandler is told about every operation the Run loop failed to apply.
type ErrorHandler func(op ir.Operation, err error)

// Snapshot is a view of the roster at one revision. Each Snapshot owns its
// Roster; modifying it never affects the engine or other readers.
type Snapshot struct {
	Revision int64
	Roster   ir.Roster
}

// Engine is the single-writer roster replication engine.
//
// Thread-safety model:
//   - Enqueue(), Snapshot(), Loading(), SetCipher(): safe from any goroutine
//   - Apply(), Undo(), Redo(): safe from any goroutine; serialized by the
//     apply lock
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	mu      sync.Mutex // apply lock; held across decrypt suspensions
	roster  ir.Roster
	history *UndoManager

	clock    *Clock
	snapshot atomic.Pointer[Snapshot]
	loading  atomic.Bool
	queue    *opQueue

	cipherMu sync.RWMutex
	cipher   cipher.FieldCipher

	logger   *slog.Logger
	progress Progress
	onError  ErrorHandler
	onApply  func(Snapshot)
	journal  *JournalWriter
	workers  int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithCipher sets the initial field cipher.
func WithCipher(c cipher.FieldCipher) EngineOption {
	return func(e *Engine) {
		e.cipher = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithProgress sets the Full decrypt progress receiver.
func WithProgress(p Progress) EngineOption {
	return func(e *Engine) {
		e.progress = p
	}
}

// WithErrorHandler sets the handler for operations the Run loop failed to apply.
func WithErrorHandler(h ErrorHandler) EngineOption {
	return func(e *Engine) {
		e.onError = h
	}
}

// WithListener registers a function called with every published snapshot.
// It runs while the apply lock is held and must not call back into the Engine.
func WithListener(fn func(Snapshot)) EngineOption {
	return func(e *Engine) {
		e.onApply = fn
	}
}

// WithJournal records every operation taken from the queue before it is applied.
func WithJournal(j *JournalWriter) EngineOption {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithDecryptWorkers sets the Full decrypt fan-out.
//
// Default: DefaultDecryptWorkers. Values below 1 are treated as 1.
func WithDecryptWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.workers = n
	}
}

// WithClock sets the revision clock. Used by replay to continue numbering.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine with an empty roster.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		roster:  ir.Roster{},
		history: NewUndoManager(),
		clock:   NewClock(),
		queue:   newOpQueue(),
		logger:  slog.Default(),
		workers: DefaultDecryptWorkers,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.snapshot.Store(&Snapshot{Revision: e.clock.Current(), Roster: ir.Roster{}})
	return e
}

// SetCipher replaces the field cipher. A nil cipher makes every subsequent
// apply a silent no-op until a key is set again.
func (e *Engine) SetCipher(c cipher.FieldCipher) {
	e.cipherMu.Lock()
	defer e.cipherMu.Unlock()
	e.cipher = c
}

func (e *Engine) currentCipher() cipher.FieldCipher {
	e.cipherMu.RLock()
	defer e.cipherMu.RUnlock()
	return e.cipher
}

// Snapshot returns a private copy of the most recently published snapshot.
func (e *Engine) Snapshot() Snapshot {
	return e.snapshot.Load().copy()
}

func (s *Snapshot) copy() Snapshot {
	return Snapshot{Revision: s.Revision, Roster: s.Roster.Clone()}
}

// Revision returns the current revision.
func (e *Engine) Revision() int64 {
	return e.clock.Current()
}

// Loading reports whether an apply step is in progress.
func (e *Engine) Loading() bool {
	return e.loading.Load()
}

// UndoDepth returns the number of operations that can be undone.
func (e *Engine) UndoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Depth(BucketUndo)
}

// RedoDepth returns the number of operations that can be redone.
func (e *Engine) RedoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Depth(BucketRedo)
}

// Enqueue submits an inbound operation for the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(op ir.Operation) bool {
	return e.queue.Enqueue(op)
}

// QueueLen returns the number of operations waiting to be applied.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the single-writer apply loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// Operations are applied in receipt order with clearRedo=true. An apply
// that has started always runs to completion: cancelling ctx stops the
// loop between operations, never inside one.
//
// On failure the error is logged with the operation's context, passed to
// the error handler, and processing continues with the next operation.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	applyCtx := context.WithoutCancel(ctx)

	for {
		op, ok := e.queue.TryDequeue()
		if ok {
			e.record(op)
			if err := e.Apply(applyCtx, op, BucketUndo, true); err != nil {
				e.logOpError(op, err)
				if e.onError != nil {
					e.onError(op, err)
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue
			if e.queue.Len() == 0 && e.queue.Closed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Operations already queued are applied before Run returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) record(op ir.Operation) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(op); err != nil {
		e.logger.Warn("journal write failed", "op", opType(op), "error", err)
	}
}

// logOpError logs an apply failure with enough context for manual replay.
func (e *Engine) logOpError(op ir.Operation, err error) {
	attrs := []any{"error", err, "op", opType(op), "revision", e.clock.Current()}
	if digest, derr := ir.OperationDigest(op); derr == nil {
		attrs = append(attrs, "op_digest", digest)
	}
	e.logger.Error("operation apply failed", attrs...)
}
