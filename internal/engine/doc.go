// Package engine implements the roster replication engine.
//
// The engine owns the in-memory mirror of the server's roster and is the
// only code that mutates it.
//
// ARCHITECTURE:
//
// Single-Writer Apply Loop:
// Operations arrive from the socket in receipt order and are enqueued to a
// FIFO queue. Engine.Run() dequeues one operation at a time and applies it
// while holding the apply lock, including any decrypt suspensions. The next
// operation is not started until the prior one finishes.
//
// Apply Flow:
//  1. Operation dequeued (or submitted directly through Apply, Undo, Redo)
//  2. Fields decrypted or encrypted through the FieldCipher when needed
//  3. Roster mutated; cross-student date consistency restored
//  4. Inverse operation pushed onto the undo or redo stack
//  5. Revision clock advanced and an immutable Snapshot published
//
// Failures are caught per operation: the error is logged and reported to
// the error handler, and the loop moves on to the next operation.
//
// Readers never touch the live roster. They call Snapshot(), which returns
// a deep copy stamped with the revision that produced it.
package engine
