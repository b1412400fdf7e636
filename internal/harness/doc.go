// Package harness runs replication scenarios against the roster engine.
//
// A scenario seeds the engine with a plaintext Full snapshot, applies a
// sequence of steps (server operations, undo, redo) and checks assertions
// about the resulting roster and history. Runs use an identity field cipher,
// so they are deterministic and need no key material.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  - hashed: h1
//	    id: "1001"
//	    first: Ada
//	    last: Lovelace
//	    cells:
//	      - date: 2024-01-02
//	        entries:
//	          - {id: e1, kind: build, start: "2024-01-02T09:00:00-05:00"}
//	steps:
//	  - apply:
//	      type: DeleteEntry
//	      hashed: h1
//	      date: 2024-01-02
//	      id: e1
//	  - undo: true
//	  - redo: true
//	assertions:
//	  - type: entry_count
//	    hashed: h1
//	    date: 2024-01-02
//	    count: 0
//
// Operations under apply use the wire shape of a server Replicate payload.
//
// # Assertion Types
//
//   - cells_consistent: every student has a cell for every roster date, in order
//   - student_cells: a student has exactly count cells
//   - student_field: a student's first or last name equals value
//   - student_absent: no student has the given hashed key
//   - entry_count: the cell for (hashed, date) has exactly count entries
//   - undo_depth / redo_depth: the history stack holds exactly count operations
//   - digest_equals_step: the roster after step equals the roster after
//     another step (0 is the setup)
//
// # Golden Files
//
// Snapshot renders a result as canonical JSON: the outcome of every step
// and the final roster. RunWithGolden compares it against
// testdata/golden/{scenario.Name}.golden.
package harness
