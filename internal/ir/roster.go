package ir

import (
	"fmt"
	"slices"

	"cloud.google.com/go/civil"
)

// Roster is an ordered list of students.
// Order is insertion order; it carries no meaning beyond display.
type Roster []Student

// Index returns the position of the student with the given hashed key, or -1.
func (r Roster) Index(hashed string) int {
	for i := range r {
		if r[i].Hashed == hashed {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of r.
func (r Roster) Clone() Roster {
	out := make(Roster, len(r))
	for i, s := range r {
		out[i] = s.Clone()
	}
	return out
}

// Dates returns every date present in any student, ascending and deduplicated.
func (r Roster) Dates() []civil.Date {
	seen := make(map[civil.Date]bool)
	var dates []civil.Date
	for _, s := range r {
		for _, c := range s.Cells {
			if !seen[c.Date] {
				seen[c.Date] = true
				dates = append(dates, c.Date)
			}
		}
	}
	slices.SortFunc(dates, CompareDates)
	return dates
}

// InsertCell adds an empty cell for date to every student that lacks one,
// keeping each student's cells ascending. It returns the number of students
// that received a new cell.
func (r Roster) InsertCell(date civil.Date) int {
	inserted := 0
	for i := range r {
		s := &r[i]
		if s.CellIndex(date) != -1 {
			continue
		}
		pos := len(s.Cells)
		for j := range s.Cells {
			if s.Cells[j].Date.After(date) {
				pos = j
				break
			}
		}
		s.Cells = append(s.Cells, Cell{})
		copy(s.Cells[pos+1:], s.Cells[pos:])
		s.Cells[pos] = NewCell(date)
		inserted++
	}
	return inserted
}

// Align restores the cell invariants after students arrive from outside:
// each student's cells are sorted by date with same-date cells merged in
// order, and every student gains an empty cell for any date it lacks.
func (r Roster) Align() {
	for i := range r {
		s := &r[i]
		slices.SortStableFunc(s.Cells, func(a, b Cell) int {
			return CompareDates(a.Date, b.Date)
		})
		merged := s.Cells[:0]
		for _, c := range s.Cells {
			if c.Entries == nil {
				c.Entries = []Entry{}
			}
			if n := len(merged); n > 0 && merged[n-1].Date == c.Date {
				merged[n-1].Entries = append(merged[n-1].Entries, c.Entries...)
				continue
			}
			merged = append(merged, c)
		}
		s.Cells = merged
	}
	for _, d := range r.Dates() {
		r.InsertCell(d)
	}
}

// Validate checks the roster invariants: unique hashed keys, strictly
// ascending cells per student, unique entry ids per cell, and every student
// holding a cell for every date known to the roster.
func (r Roster) Validate() error {
	hashes := make(map[string]bool, len(r))
	for _, s := range r {
		if hashes[s.Hashed] {
			return fmt.Errorf("duplicate student %q", s.Hashed)
		}
		hashes[s.Hashed] = true

		for j := range s.Cells {
			if j > 0 && !s.Cells[j-1].Date.Before(s.Cells[j].Date) {
				return fmt.Errorf("student %q: cells not strictly ascending at %s", s.Hashed, s.Cells[j].Date)
			}
			ids := make(map[string]bool, len(s.Cells[j].Entries))
			for _, e := range s.Cells[j].Entries {
				if ids[e.ID] {
					return fmt.Errorf("student %q: duplicate entry %q on %s", s.Hashed, e.ID, s.Cells[j].Date)
				}
				ids[e.ID] = true
			}
		}
	}

	dates := r.Dates()
	for _, s := range r {
		if len(s.Cells) != len(dates) {
			return fmt.Errorf("student %q has %d cells, roster spans %d dates", s.Hashed, len(s.Cells), len(dates))
		}
		for j, d := range dates {
			if s.Cells[j].Date != d {
				return fmt.Errorf("student %q missing cell for %s", s.Hashed, d)
			}
		}
	}
	return nil
}

// CompareDates orders calendar dates for slices.SortFunc.
func CompareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	}
	return 0
}
