package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/roach88/rostersync/internal/ir"
)

// ErrDraftEntry is returned when a NewEntry reaches the store without an id.
var ErrDraftEntry = errors.New("store: entry has no id")

// Result reports the outcome of Apply.
type Result struct {
	// Changed is false when the operation referenced a missing student,
	// cell or entry, or added something that already exists.
	Changed bool
	// Seq is the operations log position of a changing operation.
	Seq int64
}

// Apply applies one operation in a single transaction.
//
// Operations that change nothing are not logged. A Full replaces the whole
// roster and is logged like any other operation.
func (s *Store) Apply(ctx context.Context, op ir.Operation) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: begin tx: %w", op.OpType(), err)
	}
	defer tx.Rollback() // No-op if committed

	var changed bool
	switch op := op.(type) {
	case ir.Full:
		changed, err = replaceAll(ctx, tx, op)
	case ir.AddStudent:
		changed, err = addStudent(ctx, tx, op.Student, op.Cells)
	case ir.UpdateStudent:
		changed, err = updateStudent(ctx, tx, op)
	case ir.DeleteStudent:
		changed, err = execChanged(ctx, tx, `DELETE FROM students WHERE hashed = ?`, op.Hashed)
	case ir.AddEntry:
		changed, err = addEntry(ctx, tx, op.Hashed, op.Date, op.Entry)
	case ir.UpdateEntry:
		changed, err = updateEntry(ctx, tx, op)
	case ir.DeleteEntry:
		changed, err = execChanged(ctx, tx,
			`DELETE FROM entries WHERE hashed = ? AND date = ? AND id = ?`,
			op.Hashed, op.Date.String(), op.ID)
	case ir.NewEntry:
		return Result{}, ErrDraftEntry
	default:
		return Result{}, fmt.Errorf("apply: unsupported operation %T", op)
	}
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: %w", op.OpType(), err)
	}
	if !changed {
		return Result{}, nil
	}

	body, err := marshalOperation(op)
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: %w", op.OpType(), err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO operations (type, body) VALUES (?, ?)`, string(op.OpType()), body)
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: log: %w", op.OpType(), err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: log seq: %w", op.OpType(), err)
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("apply %s: commit: %w", op.OpType(), err)
	}
	return Result{Changed: true, Seq: seq}, nil
}

// HasStudent reports whether a student exists.
func (s *Store) HasStudent(ctx context.Context, hashed string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students WHERE hashed = ?`, hashed).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has student: %w", err)
	}
	return n > 0, nil
}

func execChanged(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func replaceAll(ctx context.Context, tx *sql.Tx, op ir.Full) (bool, error) {
	for _, q := range []string{`DELETE FROM entries`, `DELETE FROM students`, `DELETE FROM dates`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return false, err
		}
	}
	for _, row := range op.Rows {
		if _, err := addStudent(ctx, tx, row.Student, row.Cells); err != nil {
			return false, err
		}
	}
	return true, nil
}

func addStudent(ctx context.Context, tx *sql.Tx, st ir.StudentData, cells []ir.Cell) (bool, error) {
	inserted, err := execChanged(ctx, tx, `
		INSERT INTO students (hashed, id, first, last, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM students))
		ON CONFLICT(hashed) DO NOTHING
	`, st.Hashed, st.ID, st.First, st.Last)
	if err != nil || !inserted {
		return false, err
	}

	for _, cell := range cells {
		if err := ensureDate(ctx, tx, cell.Date); err != nil {
			return false, err
		}
		for _, entry := range cell.Entries {
			if _, err := insertEntry(ctx, tx, st.Hashed, cell.Date, entry); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func updateStudent(ctx context.Context, tx *sql.Tx, op ir.UpdateStudent) (bool, error) {
	changed := false
	for _, u := range op.Updates {
		var query string
		switch u.Key {
		case ir.FieldFirst:
			query = `UPDATE students SET first = ? WHERE hashed = ?`
		case ir.FieldLast:
			query = `UPDATE students SET last = ? WHERE hashed = ?`
		default:
			continue
		}
		ok, err := execChanged(ctx, tx, query, u.Value, op.Hashed)
		if err != nil {
			return false, err
		}
		changed = changed || ok
	}
	return changed, nil
}

func ensureDate(ctx context.Context, tx *sql.Tx, date civil.Date) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO dates (date) VALUES (?) ON CONFLICT(date) DO NOTHING`, date.String())
	return err
}

func addEntry(ctx context.Context, tx *sql.Tx, hashed string, date civil.Date, entry ir.Entry) (bool, error) {
	if entry.ID == "" {
		return false, ErrDraftEntry
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM students WHERE hashed = ?`, hashed).Scan(&n); err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := ensureDate(ctx, tx, date); err != nil {
		return false, err
	}
	return insertEntry(ctx, tx, hashed, date, entry)
}

func insertEntry(ctx context.Context, tx *sql.Tx, hashed string, date civil.Date, entry ir.Entry) (bool, error) {
	return execChanged(ctx, tx, `
		INSERT INTO entries (hashed, date, id, kind, start_at, end_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM entries))
		ON CONFLICT(hashed, date, id) DO NOTHING
	`, hashed, date.String(), entry.ID, string(entry.Kind), formatTime(entry.Start), formatEnd(entry.End))
}

func updateEntry(ctx context.Context, tx *sql.Tx, op ir.UpdateEntry) (bool, error) {
	changed := false
	for _, u := range op.Updates {
		var query string
		var value any
		switch u.Key {
		case ir.FieldKind:
			query = `UPDATE entries SET kind = ? WHERE hashed = ? AND date = ? AND id = ?`
			value = string(u.Kind)
		case ir.FieldStart:
			query = `UPDATE entries SET start_at = ? WHERE hashed = ? AND date = ? AND id = ?`
			value = formatTime(u.Start)
		case ir.FieldEnd:
			query = `UPDATE entries SET end_at = ? WHERE hashed = ? AND date = ? AND id = ?`
			value = formatEnd(u.End)
		default:
			continue
		}
		ok, err := execChanged(ctx, tx, query, value, op.Hashed, op.Date.String(), op.ID)
		if err != nil {
			return false, err
		}
		changed = changed || ok
	}
	return changed, nil
}
