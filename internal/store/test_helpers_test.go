package store

import (
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/roach88/rostersync/internal/ir"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(d int) civil.Date {
	return civil.Date{Year: 2024, Month: time.January, Day: d}
}

func at(d, hour int) time.Time {
	return time.Date(2024, time.January, d, hour, 0, 0, 0, time.FixedZone("EST", -5*3600))
}

// createTestStudent returns sealed-looking student data.
func createTestStudent(hashed string) ir.StudentData {
	return ir.StudentData{ID: "sealed-id-" + hashed, Hashed: hashed, First: "sealed-first-" + hashed, Last: "sealed-last-" + hashed}
}

func createTestEntry(id string, d, startHour int) ir.Entry {
	return ir.Entry{ID: id, Kind: ir.KindBuild, Start: at(d, startHour)}
}
