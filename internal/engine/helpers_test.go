package engine

import (
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rostersync/internal/ir"
	"github.com/roach88/rostersync/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestEngine creates an engine with an identity cipher and a silent logger.
func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{WithCipher(testutil.IdentityCipher{}), WithLogger(quietLogger())}
	return New(append(base, opts...)...)
}

// seed installs a roster directly, bypassing Full alignment.
func seed(e *Engine, r ir.Roster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roster = r
}

// live returns a copy of the live roster.
func live(e *Engine) ir.Roster {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roster.Clone()
}

func date(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	require.NoError(t, err)
	return d
}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}

func tsPtr(t *testing.T, s string) *time.Time {
	v := ts(t, s)
	return &v
}

func digest(t *testing.T, r ir.Roster) string {
	t.Helper()
	d, err := ir.RosterDigest(r)
	require.NoError(t, err)
	return d
}

// twoStudents is a consistent roster: two students sharing one date, with
// one open and one closed entry.
func twoStudents(t *testing.T) ir.Roster {
	return ir.Roster{
		{
			Hashed: "h1", ID: "1001", First: "Ada", Last: "Lovelace",
			Cells: []ir.Cell{{
				Date: date(t, "2024-01-01"),
				Entries: []ir.Entry{
					{ID: "e1", Kind: ir.KindBuild, Start: ts(t, "2024-01-01T09:00:00-05:00"), End: tsPtr(t, "2024-01-01T12:00:00-05:00")},
				},
			}},
		},
		{
			Hashed: "h2", ID: "1002", First: "Grace", Last: "Hopper",
			Cells: []ir.Cell{{
				Date: date(t, "2024-01-01"),
				Entries: []ir.Entry{
					{ID: "e2", Kind: ir.KindLearning, Start: ts(t, "2024-01-01T13:00:00-05:00")},
				},
			}},
		},
	}
}

// asFull converts a plaintext roster into a Full for an identity cipher.
func asFull(r ir.Roster) ir.Full {
	rows := make([]ir.Row, len(r))
	for i, s := range r {
		rows[i] = ir.Row{
			Student: ir.StudentData{ID: s.ID, Hashed: s.Hashed, First: s.First, Last: s.Last},
			Cells:   ir.CloneCells(s.Cells),
		}
	}
	return ir.Full{Rows: rows}
}
