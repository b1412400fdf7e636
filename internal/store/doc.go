// Package store is the SQLite roster store behind the development server.
//
// It keeps the server-authoritative roster in three tables:
//   - students: sealed id, first and last, keyed by hashed
//   - dates: every date the roster has ever spanned
//   - entries: time entries keyed by (hashed, date, id)
//
// Student fields arrive sealed and are stored sealed; the store never sees
// plaintext. Every operation that changed the roster is appended to the
// operations log with a monotonically increasing seq.
//
// # Ordering
//
// Ordering never relies on wall time:
//   - students and entries carry an insertion seq; a re-added student is
//     appended after every existing one
//   - dates sort lexically, which for YYYY-MM-DD is calendar order
//
// A Full snapshot built from the store gives every student a cell for every
// known date, matching the client's cross-student date consistency.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting a student deletes its entries
package store
