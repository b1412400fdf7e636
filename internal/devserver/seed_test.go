package devserver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rostersync/internal/ir"
	"github.com/roach88/rostersync/internal/store"
	"github.com/roach88/rostersync/internal/testutil"
)

const seedYAML = `
students:
  - id: "1001"
    first: Ada
    last: Lovelace
    entries:
      - id: e2
        date: 2024-01-05
        kind: demo
        start: 2024-01-05T13:00:00-05:00
      - id: e1
        date: 2024-01-02
        kind: build
        start: 2024-01-02T09:00:00-05:00
        end: 2024-01-02T12:00:00-05:00
  - id: "1002"
    hashed: custom
    first: Grace
    last: Hopper
`

func TestParseSeed_RejectsUnknownFields(t *testing.T) {
	_, err := ParseSeed([]byte("students:\n  - id: x\n    nickname: y\n"))
	assert.Error(t, err)
}

func TestSeedFile_Build(t *testing.T) {
	f, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	sealer := testutil.PrefixCipher{Prefix: "enc:"}
	full, err := f.Build(context.Background(), sealer)
	require.NoError(t, err)

	require.Len(t, full.Rows, 2)
	ada := full.Rows[0]
	assert.Equal(t, HashStudentID("1001"), ada.Student.Hashed)
	assert.Equal(t, "enc:1001", ada.Student.ID)
	assert.Equal(t, "enc:Ada", ada.Student.First)
	require.Len(t, ada.Cells, 2)
	assert.Equal(t, day(2), ada.Cells[0].Date, "cells are date ordered")
	require.NotNil(t, ada.Cells[0].Entries[0].End)
	assert.Equal(t, ir.KindDemo, ada.Cells[1].Entries[0].Kind)

	assert.Equal(t, "custom", full.Rows[1].Student.Hashed)
	assert.Empty(t, full.Rows[1].Cells)
}

func TestSeedFile_BuildErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "students:\n  - first: a\n"},
		{"duplicate", "students:\n  - id: a\n  - id: a\n"},
		{"bad kind", "students:\n  - id: a\n    entries:\n      - {date: 2024-01-01, kind: nap, start: \"2024-01-01T09:00:00Z\"}\n"},
		{"bad date", "students:\n  - id: a\n    entries:\n      - {date: soon, kind: build, start: \"2024-01-01T09:00:00Z\"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseSeed([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = f.Build(context.Background(), testutil.IdentityCipher{})
			assert.Error(t, err)
		})
	}
}

func TestSeed_PopulatesStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer st.Close()

	f, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	n, err := Seed(context.Background(), st, testutil.IdentityCipher{}, f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	full, err := st.Full(context.Background())
	require.NoError(t, err)
	require.Len(t, full.Rows, 2)
	assert.Len(t, full.Rows[1].Cells, 2, "students without entries still get every date")
}
