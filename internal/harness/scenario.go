package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rostersync/internal/ir"
)

// Scenario defines a replication scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup is the plaintext roster loaded as a Full before the first step.
	Setup []SetupStudent `yaml:"setup,omitempty"`

	// Steps run in order after setup.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final roster and history.
	Assertions []Assertion `yaml:"assertions"`
}

// SetupStudent is one plaintext student of the setup snapshot.
type SetupStudent struct {
	Hashed string      `yaml:"hashed"`
	ID     string      `yaml:"id"`
	First  string      `yaml:"first"`
	Last   string      `yaml:"last"`
	Cells  []SetupCell `yaml:"cells,omitempty"`
}

// SetupCell is one date of a setup student.
type SetupCell struct {
	Date    string       `yaml:"date"`
	Entries []SetupEntry `yaml:"entries,omitempty"`
}

// SetupEntry is one entry of a setup cell. Times are RFC 3339.
type SetupEntry struct {
	ID    string `yaml:"id"`
	Kind  string `yaml:"kind"`
	Start string `yaml:"start"`
	End   string `yaml:"end,omitempty"`
}

// Step is one scenario step. Exactly one of Apply, Undo and Redo is set.
type Step struct {
	// Apply is a server operation in its wire shape.
	Apply *yaml.Node `yaml:"apply,omitempty"`

	// Undo reverts the most recent applied operation.
	Undo bool `yaml:"undo,omitempty"`

	// Redo re-applies the most recently undone operation.
	Redo bool `yaml:"redo,omitempty"`

	// ExpectApplied checks whether an undo or redo found something to apply.
	ExpectApplied *bool `yaml:"expect_applied,omitempty"`

	// ExpectError marks a step whose apply is expected to fail.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// stepFields are the strictly decoded step keys besides apply.
type stepFields struct {
	Undo          bool  `yaml:"undo"`
	Redo          bool  `yaml:"redo"`
	ExpectApplied *bool `yaml:"expect_applied"`
	ExpectError   bool  `yaml:"expect_error"`
}

// UnmarshalYAML keeps the apply payload as a raw node and rejects unknown
// step keys. Decoding into a yaml.Node under KnownFields would otherwise
// reject every key of the payload itself.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: step must be a mapping", node.Line)
	}

	var apply *yaml.Node
	rest := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Line: node.Line, Column: node.Column}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case StepApply:
			apply = value
		case "undo", "redo", "expect_applied", "expect_error":
			rest.Content = append(rest.Content, key, value)
		default:
			return fmt.Errorf("line %d: field %s not found in type harness.Step", key.Line, key.Value)
		}
	}

	var fields stepFields
	if err := rest.Decode(&fields); err != nil {
		return err
	}
	*s = Step{
		Apply:         apply,
		Undo:          fields.Undo,
		Redo:          fields.Redo,
		ExpectApplied: fields.ExpectApplied,
		ExpectError:   fields.ExpectError,
	}
	return nil
}

// Step kinds.
const (
	StepApply = "apply"
	StepUndo  = "undo"
	StepRedo  = "redo"
)

// Kind returns the step kind, or "" if the step is malformed.
func (s Step) Kind() string {
	n := 0
	kind := ""
	if s.Apply != nil {
		n++
		kind = StepApply
	}
	if s.Undo {
		n++
		kind = StepUndo
	}
	if s.Redo {
		n++
		kind = StepRedo
	}
	if n != 1 {
		return ""
	}
	return kind
}

// Operation decodes the step's apply payload.
func (s Step) Operation() (ir.Operation, error) {
	if s.Apply == nil {
		return nil, fmt.Errorf("step has no apply payload")
	}
	v, err := nodeValue(s.Apply)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode apply payload: %w", err)
	}
	return ir.UnmarshalOperation(raw)
}

// Assertion validates the final roster or history.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Hashed selects a student (student_cells, student_field,
	// student_absent, entry_count).
	Hashed string `yaml:"hashed,omitempty"`

	// Date selects a cell (entry_count).
	Date string `yaml:"date,omitempty"`

	// Field and Value are the expected student field (student_field).
	Field string `yaml:"field,omitempty"`
	Value string `yaml:"value,omitempty"`

	// Count is the expected number (student_cells, entry_count,
	// undo_depth, redo_depth).
	Count *int `yaml:"count,omitempty"`

	// Step and Equals name two steps whose rosters must be identical
	// (digest_equals_step). Step 0 is the roster right after setup.
	Step   *int `yaml:"step,omitempty"`
	Equals *int `yaml:"equals,omitempty"`
}

// Assertion type constants.
const (
	AssertCellsConsistent  = "cells_consistent"
	AssertStudentCells     = "student_cells"
	AssertStudentField     = "student_field"
	AssertStudentAbsent    = "student_absent"
	AssertEntryCount       = "entry_count"
	AssertUndoDepth        = "undo_depth"
	AssertRedoDepth        = "redo_depth"
	AssertDigestEqualsStep = "digest_equals_step"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := s.SetupFull(); err != nil {
		return err
	}

	for i, step := range s.Steps {
		switch step.Kind() {
		case "":
			return fmt.Errorf("steps[%d]: exactly one of apply, undo, redo is required", i)
		case StepApply:
			if _, err := step.Operation(); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			if step.ExpectApplied != nil {
				return fmt.Errorf("steps[%d]: expect_applied is only valid for undo and redo", i)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needHashed := func() error {
		if a.Hashed == "" {
			return fmt.Errorf("assertions[%d]: hashed is required for %s", index, a.Type)
		}
		return nil
	}
	needCount := func() error {
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertCellsConsistent:
	case AssertStudentCells:
		if err := needHashed(); err != nil {
			return err
		}
		return needCount()
	case AssertStudentField:
		if err := needHashed(); err != nil {
			return err
		}
		if a.Field != string(ir.FieldFirst) && a.Field != string(ir.FieldLast) {
			return fmt.Errorf("assertions[%d]: field must be first or last, got %q", index, a.Field)
		}
	case AssertStudentAbsent:
		return needHashed()
	case AssertEntryCount:
		if err := needHashed(); err != nil {
			return err
		}
		if _, err := civil.ParseDate(a.Date); err != nil {
			return fmt.Errorf("assertions[%d]: date: %w", index, err)
		}
		return needCount()
	case AssertUndoDepth, AssertRedoDepth:
		return needCount()
	case AssertDigestEqualsStep:
		if a.Step == nil || a.Equals == nil {
			return fmt.Errorf("assertions[%d]: step and equals are required for %s", index, a.Type)
		}
		for _, n := range []int{*a.Step, *a.Equals} {
			if n < 0 || n > steps {
				return fmt.Errorf("assertions[%d]: step %d out of range 0..%d", index, n, steps)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// SetupFull builds the Full snapshot the scenario starts from. Student
// fields are plaintext; the harness runs with an identity cipher.
func (s *Scenario) SetupFull() (ir.Full, error) {
	full := ir.Full{Rows: make([]ir.Row, 0, len(s.Setup))}
	for i, st := range s.Setup {
		if st.Hashed == "" {
			return ir.Full{}, fmt.Errorf("setup[%d]: hashed is required", i)
		}
		row := ir.Row{
			Student: ir.StudentData{ID: st.ID, Hashed: st.Hashed, First: st.First, Last: st.Last},
			Cells:   make([]ir.Cell, 0, len(st.Cells)),
		}
		for j, c := range st.Cells {
			date, err := civil.ParseDate(c.Date)
			if err != nil {
				return ir.Full{}, fmt.Errorf("setup[%d].cells[%d]: %w", i, j, err)
			}
			cell := ir.NewCell(date)
			for k, e := range c.Entries {
				entry, err := e.entry()
				if err != nil {
					return ir.Full{}, fmt.Errorf("setup[%d].cells[%d].entries[%d]: %w", i, j, k, err)
				}
				cell.Entries = append(cell.Entries, entry)
			}
			row.Cells = append(row.Cells, cell)
		}
		full.Rows = append(full.Rows, row)
	}
	return full, nil
}

func (e SetupEntry) entry() (ir.Entry, error) {
	if e.ID == "" {
		return ir.Entry{}, fmt.Errorf("id is required")
	}
	kind, err := ir.ParseHourKind(e.Kind)
	if err != nil {
		return ir.Entry{}, err
	}
	start, err := time.Parse(time.RFC3339, e.Start)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("start: %w", err)
	}
	entry := ir.Entry{ID: e.ID, Kind: kind, Start: start}
	if e.End != "" {
		end, err := time.Parse(time.RFC3339, e.End)
		if err != nil {
			return ir.Entry{}, fmt.Errorf("end: %w", err)
		}
		entry.End = &end
	}
	return entry, nil
}

// nodeValue converts a YAML node to a JSON-ready value. Scalars keep their
// source text unless they are null, booleans or integers, so dates and
// timestamps reach the operation decoder exactly as written.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		s := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			s = append(s, v)
		}
		return s, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			return strconv.ParseBool(n.Value)
		case "!!int":
			return json.Number(n.Value), nil
		case "!!float":
			return nil, fmt.Errorf("line %d: floats are not allowed in operations", n.Line)
		default:
			return n.Value, nil
		}
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}
