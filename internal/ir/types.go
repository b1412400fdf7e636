package ir

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// HourKind categorizes a time entry.
type HourKind string

const (
	KindOffseason HourKind = "offseason"
	KindBuild     HourKind = "build"
	KindLearning  HourKind = "learning"
	KindDemo      HourKind = "demo"
)

// HourKinds lists every valid HourKind.
var HourKinds = []HourKind{KindOffseason, KindBuild, KindLearning, KindDemo}

// Valid reports whether k is one of the known kinds.
func (k HourKind) Valid() bool {
	switch k {
	case KindOffseason, KindBuild, KindLearning, KindDemo:
		return true
	}
	return false
}

// ParseHourKind parses a lowercase kind name.
func ParseHourKind(s string) (HourKind, error) {
	k := HourKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown hour kind %q", s)
	}
	return k, nil
}

// Entry is one time-tracked session.
// End is nil while the session is still open.
type Entry struct {
	ID    string     `json:"id"`
	Kind  HourKind   `json:"kind"`
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end"`
}

// Clone returns a copy of e that shares no memory with it.
func (e Entry) Clone() Entry {
	if e.End != nil {
		end := *e.End
		e.End = &end
	}
	return e
}

// EntryDraft is an entry that has not been assigned an id by the server.
type EntryDraft struct {
	Kind  HourKind   `json:"kind"`
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end"`
}

// Cell is one calendar date's record for one student.
type Cell struct {
	Date    civil.Date `json:"date"`
	Entries []Entry    `json:"entries"`
}

// NewCell returns an empty cell for date.
// Entries is non-nil so the cell encodes as [] rather than null.
func NewCell(date civil.Date) Cell {
	return Cell{Date: date, Entries: []Entry{}}
}

// EntryIndex returns the index of the entry with the given id, or -1.
func (c *Cell) EntryIndex(id string) int {
	for i := range c.Entries {
		if c.Entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of c.
func (c Cell) Clone() Cell {
	entries := make([]Entry, len(c.Entries))
	for i, e := range c.Entries {
		entries[i] = e.Clone()
	}
	return Cell{Date: c.Date, Entries: entries}
}

// CloneCells deep-copies a cell slice. A nil input yields an empty slice.
func CloneCells(cells []Cell) []Cell {
	out := make([]Cell, len(cells))
	for i, c := range cells {
		out[i] = c.Clone()
	}
	return out
}

// Student is one tracked person with decrypted display fields.
type Student struct {
	Hashed string `json:"hashed"`
	ID     string `json:"id"`
	First  string `json:"first"`
	Last   string `json:"last"`
	Cells  []Cell `json:"cells"`
}

// CellIndex returns the index of the cell for date, or -1.
func (s *Student) CellIndex(date civil.Date) int {
	for i := range s.Cells {
		if s.Cells[i].Date == date {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of s.
func (s Student) Clone() Student {
	s.Cells = CloneCells(s.Cells)
	return s
}

// StudentData is a student's record as it travels on the wire.
// ID, First and Last are ciphertext; Hashed is the opaque correlation key.
type StudentData struct {
	ID     string `json:"id"`
	Hashed string `json:"hashed"`
	First  string `json:"first"`
	Last   string `json:"last"`
}

// Row is one student of a full snapshot.
type Row struct {
	Student StudentData `json:"student"`
	Cells   []Cell      `json:"cells"`
}
