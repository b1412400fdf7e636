package store

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/roach88/rostersync/internal/ir"
)

// Full builds a snapshot of the whole roster.
//
// Students are ordered by insertion, every student carries a cell for every
// known date (ascending), and entries within a cell are in insertion order.
// Returns empty slices (not nil) for an empty roster.
func (s *Store) Full(ctx context.Context) (ir.Full, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Full{}, fmt.Errorf("full: begin tx: %w", err)
	}
	defer tx.Rollback()

	dates, err := readDates(ctx, tx)
	if err != nil {
		return ir.Full{}, err
	}
	rows, err := readStudents(ctx, tx, dates)
	if err != nil {
		return ir.Full{}, err
	}
	if err := readEntries(ctx, tx, rows, dates); err != nil {
		return ir.Full{}, err
	}

	out := ir.Full{Rows: make([]ir.Row, 0, len(rows))}
	for _, r := range rows {
		out.Rows = append(out.Rows, *r)
	}
	return out, nil
}

// Dates returns every date the roster spans, ascending.
func (s *Store) Dates(ctx context.Context) ([]civil.Date, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dates: begin tx: %w", err)
	}
	defer tx.Rollback()
	return readDates(ctx, tx)
}

func readDates(ctx context.Context, tx *sql.Tx) ([]civil.Date, error) {
	rows, err := tx.QueryContext(ctx, `SELECT date FROM dates ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer rows.Close()

	dates := []civil.Date{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		d, err := parseDate(raw)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates: %w", err)
	}
	return dates, nil
}

func readStudents(ctx context.Context, tx *sql.Tx, dates []civil.Date) ([]*ir.Row, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT hashed, id, first, last
		FROM students
		ORDER BY seq ASC, hashed COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var out []*ir.Row
	for rows.Next() {
		var st ir.StudentData
		if err := rows.Scan(&st.Hashed, &st.ID, &st.First, &st.Last); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		cells := make([]ir.Cell, len(dates))
		for i, d := range dates {
			cells[i] = ir.NewCell(d)
		}
		out = append(out, &ir.Row{Student: st, Cells: cells})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return out, nil
}

func readEntries(ctx context.Context, tx *sql.Tx, students []*ir.Row, dates []civil.Date) error {
	byHashed := make(map[string]*ir.Row, len(students))
	for _, r := range students {
		byHashed[r.Student.Hashed] = r
	}
	dateIndex := make(map[civil.Date]int, len(dates))
	for i, d := range dates {
		dateIndex[d] = i
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT hashed, date, id, kind, start_at, end_at
		FROM entries
		ORDER BY hashed COLLATE BINARY ASC, date ASC, seq ASC
	`)
	if err != nil {
		return fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			hashed, rawDate, id, kind, start string
			end                              sql.NullString
		)
		if err := rows.Scan(&hashed, &rawDate, &id, &kind, &start, &end); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		row, ok := byHashed[hashed]
		if !ok {
			continue
		}
		d, err := parseDate(rawDate)
		if err != nil {
			return err
		}
		entry, err := buildEntry(id, kind, start, end)
		if err != nil {
			return err
		}
		i := dateIndex[d]
		row.Cells[i].Entries = append(row.Cells[i].Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate entries: %w", err)
	}
	return nil
}

func buildEntry(id, kind, start string, end sql.NullString) (ir.Entry, error) {
	k, err := ir.ParseHourKind(kind)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("entry %s: %w", id, err)
	}
	st, err := parseTime(start)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("entry %s: %w", id, err)
	}
	en, err := parseEnd(end)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("entry %s: %w", id, err)
	}
	return ir.Entry{ID: id, Kind: k, Start: st, End: en}, nil
}
