package store

import (
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/roach88/rostersync/internal/ir"
)

// formatTime keeps the zone offset; entries are read back with the offset
// they were written with.
func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatEnd(end *time.Time) sql.NullString {
	if end == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*end), Valid: true}
}

func parseEnd(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// marshalOperation converts an operation to canonical JSON TEXT for the
// operations log.
func marshalOperation(op ir.Operation) (string, error) {
	raw, err := ir.MarshalOperation(op)
	if err != nil {
		return "", fmt.Errorf("marshal operation: %w", err)
	}
	canonical, err := ir.Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("marshal operation: %w", err)
	}
	return string(canonical), nil
}

func unmarshalOperation(body string) (ir.Operation, error) {
	op, err := ir.UnmarshalOperation([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("unmarshal operation: %w", err)
	}
	return op, nil
}
