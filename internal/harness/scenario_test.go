package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rostersync/internal/ir"
)

func TestParseScenario_Operation(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: parse
description: "Operations keep dates and timestamps as written"
steps:
  - apply:
      type: UpdateEntry
      hashed: h1
      date: 2024-01-02
      id: e1
      updates:
        - {key: start, value: 2024-01-02T08:30:00-05:00}
        - {key: end, value: null}
assertions:
  - type: cells_consistent
`))
	require.NoError(t, err)

	op, err := s.Steps[0].Operation()
	require.NoError(t, err)
	upd, ok := op.(ir.UpdateEntry)
	require.True(t, ok, "got %T", op)
	assert.Equal(t, "2024-01-02", upd.Date.String())
	require.Len(t, upd.Updates, 2)
	_, offset := upd.Updates[0].Start.Zone()
	assert.Equal(t, -5*3600, offset)
	assert.Nil(t, upd.Updates[1].End)
}

func TestLoadScenario_BundledScenariosParse(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			applies := 0
			for i, step := range s.Steps {
				if step.Kind() != StepApply {
					continue
				}
				applies++
				_, err := step.Operation()
				require.NoError(t, err, "steps[%d]", i)
			}
			assert.Positive(t, applies, "scenario applies at least one operation")
		})
	}
}

func TestParseScenario_StepFlags(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: flags
description: "Step flags decode beside an apply payload"
steps:
  - apply: {type: DeleteStudent, hashed: h1}
    expect_error: true
  - undo: true
    expect_applied: false
assertions:
  - type: cells_consistent
`))
	require.NoError(t, err)
	require.Len(t, s.Steps, 2)

	assert.Equal(t, StepApply, s.Steps[0].Kind())
	assert.True(t, s.Steps[0].ExpectError)
	assert.Equal(t, StepUndo, s.Steps[1].Kind())
	require.NotNil(t, s.Steps[1].ExpectApplied)
	assert.False(t, *s.Steps[1].ExpectApplied)
}

func TestParseScenario_SetupFull(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: setup
description: "Setup becomes a Full"
setup:
  - hashed: h1
    id: "1"
    first: A
    last: B
    cells:
      - date: 2024-01-02
        entries:
          - {id: e1, kind: offseason, start: "2024-01-02T09:00:00Z", end: "2024-01-02T10:00:00Z"}
steps:
  - undo: true
assertions:
  - type: cells_consistent
`))
	require.NoError(t, err)

	full, err := s.SetupFull()
	require.NoError(t, err)
	require.Len(t, full.Rows, 1)
	assert.Equal(t, "A", full.Rows[0].Student.First)
	require.Len(t, full.Rows[0].Cells[0].Entries, 1)
	assert.Equal(t, ir.KindOffseason, full.Rows[0].Cells[0].Entries[0].Kind)
	assert.NotNil(t, full.Rows[0].Cells[0].Entries[0].End)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: y\nstepz: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "description: y\nsteps: [{undo: true}]\nassertions: [{type: cells_consistent}]\n",
			wantErr: "name is required",
		},
		{
			name:    "no steps",
			yaml:    "name: x\ndescription: y\nassertions: [{type: cells_consistent}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown step field",
			yaml:    "name: x\ndescription: y\nsteps: [{undo: true, expect_aplied: true}]\nassertions: [{type: cells_consistent}]\n",
			wantErr: "field expect_aplied not found",
		},
		{
			name:    "step field of wrong type",
			yaml:    "name: x\ndescription: y\nsteps: [{undo: maybe}]\nassertions: [{type: cells_consistent}]\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "two kinds in one step",
			yaml:    "name: x\ndescription: y\nsteps: [{undo: true, redo: true}]\nassertions: [{type: cells_consistent}]\n",
			wantErr: "exactly one of apply, undo, redo",
		},
		{
			name:    "unknown operation",
			yaml:    "name: x\ndescription: y\nsteps: [{apply: {type: Explode}}]\nassertions: [{type: cells_consistent}]\n",
			wantErr: "unknown type",
		},
		{
			name:    "float in operation",
			yaml:    "name: x\ndescription: y\nsteps: [{apply: {type: DeleteStudent, hashed: 1.5}}]\nassertions: [{type: cells_consistent}]\n",
			wantErr: "floats are not allowed",
		},
		{
			name:    "expect_applied on apply",
			yaml:    "name: x\ndescription: y\nsteps: [{apply: {type: DeleteStudent, hashed: h}, expect_applied: true}]\nassertions: [{type: cells_consistent}]\n",
			wantErr: "expect_applied is only valid",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: y\nsteps: [{undo: true}]\nassertions: [{type: vibes}]\n",
			wantErr: "unknown assertion type",
		},
		{
			name:    "count missing",
			yaml:    "name: x\ndescription: y\nsteps: [{undo: true}]\nassertions: [{type: undo_depth}]\n",
			wantErr: "non-negative count is required",
		},
		{
			name:    "digest step out of range",
			yaml:    "name: x\ndescription: y\nsteps: [{undo: true}]\nassertions: [{type: digest_equals_step, step: 2, equals: 0}]\n",
			wantErr: "out of range",
		},
		{
			name:    "bad setup date",
			yaml:    "name: x\ndescription: y\nsetup: [{hashed: h, cells: [{date: soon}]}]\nsteps: [{undo: true}]\nassertions: [{type: cells_consistent}]\n",
			wantErr: "setup[0].cells[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	assert.Error(t, err)
}
