package ir

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) civil.Date {
	return civil.Date{Year: 2024, Month: time.January, Day: d}
}

func TestRoster_InsertCell_KeepsEveryStudentSorted(t *testing.T) {
	r := Roster{
		{Hashed: "h1", Cells: []Cell{NewCell(day(1)), NewCell(day(5))}},
		{Hashed: "h2", Cells: []Cell{NewCell(day(1)), NewCell(day(5))}},
		{Hashed: "h3"},
	}
	// h3 has no cells at all: bring it in line first
	r.InsertCell(day(1))
	r.InsertCell(day(5))

	n := r.InsertCell(day(3))
	assert.Equal(t, 3, n)

	for _, s := range r {
		require.Len(t, s.Cells, 3, "student %s", s.Hashed)
		assert.Equal(t, []civil.Date{day(1), day(3), day(5)}, []civil.Date{s.Cells[0].Date, s.Cells[1].Date, s.Cells[2].Date})
		assert.NotNil(t, s.Cells[1].Entries)
	}
	require.NoError(t, r.Validate())
}

func TestRoster_InsertCell_AppendsAfterLast(t *testing.T) {
	r := Roster{{Hashed: "h1", Cells: []Cell{NewCell(day(1))}}}

	r.InsertCell(day(9))

	assert.Equal(t, day(9), r[0].Cells[1].Date)
}

func TestRoster_InsertCell_ExistingDateIsNoop(t *testing.T) {
	r := Roster{{Hashed: "h1", Cells: []Cell{{Date: day(1), Entries: []Entry{{ID: "e1"}}}}}}

	n := r.InsertCell(day(1))

	assert.Equal(t, 0, n)
	assert.Len(t, r[0].Cells[0].Entries, 1)
}

func TestRoster_Validate(t *testing.T) {
	tests := []struct {
		name    string
		roster  Roster
		wantErr string
	}{
		{
			name:   "empty",
			roster: Roster{},
		},
		{
			name:    "duplicate student",
			roster:  Roster{{Hashed: "h1"}, {Hashed: "h1"}},
			wantErr: "duplicate student",
		},
		{
			name:    "unsorted cells",
			roster:  Roster{{Hashed: "h1", Cells: []Cell{NewCell(day(2)), NewCell(day(1))}}},
			wantErr: "not strictly ascending",
		},
		{
			name:    "duplicate date",
			roster:  Roster{{Hashed: "h1", Cells: []Cell{NewCell(day(1)), NewCell(day(1))}}},
			wantErr: "not strictly ascending",
		},
		{
			name: "duplicate entry",
			roster: Roster{{Hashed: "h1", Cells: []Cell{{Date: day(1), Entries: []Entry{{ID: "e"}, {ID: "e"}}}}}},
			wantErr: "duplicate entry",
		},
		{
			name: "missing cross-student date",
			roster: Roster{
				{Hashed: "h1", Cells: []Cell{NewCell(day(1))}},
				{Hashed: "h2"},
			},
			wantErr: "has 0 cells",
		},
		{
			name: "mismatched dates",
			roster: Roster{
				{Hashed: "h1", Cells: []Cell{NewCell(day(1)), NewCell(day(2))}},
				{Hashed: "h2", Cells: []Cell{NewCell(day(1)), NewCell(day(3))}},
			},
			wantErr: "has 2 cells, roster spans 3 dates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.roster.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRoster_CloneIsDeep(t *testing.T) {
	end := time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC)
	r := Roster{{Hashed: "h1", Cells: []Cell{{Date: day(1), Entries: []Entry{{ID: "e1", End: &end}}}}}}

	c := r.Clone()
	c[0].Cells[0].Entries[0].ID = "changed"
	*c[0].Cells[0].Entries[0].End = end.Add(time.Hour)

	assert.Equal(t, "e1", r[0].Cells[0].Entries[0].ID)
	assert.Equal(t, 17, r[0].Cells[0].Entries[0].End.Hour())
}

func TestRoster_Dates(t *testing.T) {
	r := Roster{
		{Hashed: "h1", Cells: []Cell{NewCell(day(4)), NewCell(day(7))}},
		{Hashed: "h2", Cells: []Cell{NewCell(day(2)), NewCell(day(4))}},
	}
	assert.Equal(t, []civil.Date{day(2), day(4), day(7)}, r.Dates())
}

func TestRoster_Align(t *testing.T) {
	r := Roster{
		{Hashed: "h1", Cells: []Cell{
			{Date: day(3), Entries: []Entry{{ID: "b"}}},
			{Date: day(1)},
			{Date: day(3), Entries: []Entry{{ID: "c"}}},
		}},
		{Hashed: "h2", Cells: []Cell{NewCell(day(2))}},
		{Hashed: "h3"},
	}

	r.Align()

	require.NoError(t, r.Validate())
	for _, s := range r {
		require.Len(t, s.Cells, 3)
		assert.Equal(t, day(1), s.Cells[0].Date)
		assert.Equal(t, day(2), s.Cells[1].Date)
		assert.Equal(t, day(3), s.Cells[2].Date)
	}
	assert.Equal(t, []Entry{{ID: "b"}, {ID: "c"}}, r[0].Cells[2].Entries)
	assert.NotNil(t, r[0].Cells[0].Entries, "nil entries become empty")
}
