package store

import (
	"context"
	"fmt"

	"github.com/roach88/rostersync/internal/ir"
)

// LoggedOperation is one entry of the operations log.
type LoggedOperation struct {
	Seq int64
	Op  ir.Operation
}

// Operations returns logged operations with seq greater than after, in log
// order. Returns an empty slice (not nil) when there are none.
func (s *Store) Operations(ctx context.Context, after int64) ([]LoggedOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, body
		FROM operations
		WHERE seq > ?
		ORDER BY seq ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	ops := []LoggedOperation{}
	for rows.Next() {
		var (
			seq  int64
			body string
		)
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op, err := unmarshalOperation(body)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", seq, err)
		}
		ops = append(ops, LoggedOperation{Seq: seq, Op: op})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// LastSeq returns the highest logged seq, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM operations`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
