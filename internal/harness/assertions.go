package harness

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/roach88/rostersync/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the final roster's shape to help debug the failure.
type AssertionError struct {
	Type     string    // Assertion type for categorization
	Expected string    // Human-readable expected outcome
	Actual   string    // Human-readable actual outcome
	Roster   ir.Roster // Final roster for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFinal roster:\n")
	for i, s := range e.Roster {
		fmt.Fprintf(&buf, "  [%d] %s (%s %s):", i+1, s.Hashed, s.First, s.Last)
		for _, c := range s.Cells {
			fmt.Fprintf(&buf, " %s=%d", c.Date, len(c.Entries))
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

func assertCellsConsistent(r *Result) error {
	if err := r.Final.Validate(); err != nil {
		return &AssertionError{
			Type:     AssertCellsConsistent,
			Expected: "every student has one cell per roster date, ascending",
			Actual:   err.Error(),
			Roster:   r.Final,
		}
	}
	return nil
}

func findStudent(roster ir.Roster, hashed string) *ir.Student {
	if i := roster.Index(hashed); i >= 0 {
		return &roster[i]
	}
	return nil
}

func missingStudent(r *Result, a Assertion) error {
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("student %s present", a.Hashed),
		Actual:   "not found",
		Roster:   r.Final,
	}
}

func assertStudentCells(r *Result, a Assertion) error {
	s := findStudent(r.Final, a.Hashed)
	if s == nil {
		return missingStudent(r, a)
	}
	if len(s.Cells) != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("student %s has %d cells", a.Hashed, *a.Count),
			Actual:   fmt.Sprintf("%d cells", len(s.Cells)),
			Roster:   r.Final,
		}
	}
	return nil
}

func assertStudentField(r *Result, a Assertion) error {
	s := findStudent(r.Final, a.Hashed)
	if s == nil {
		return missingStudent(r, a)
	}
	actual := s.First
	if a.Field == string(ir.FieldLast) {
		actual = s.Last
	}
	if actual != a.Value {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("student %s %s = %q", a.Hashed, a.Field, a.Value),
			Actual:   fmt.Sprintf("%q", actual),
			Roster:   r.Final,
		}
	}
	return nil
}

func assertStudentAbsent(r *Result, a Assertion) error {
	if findStudent(r.Final, a.Hashed) != nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("student %s absent", a.Hashed),
			Actual:   "present",
			Roster:   r.Final,
		}
	}
	return nil
}

func assertEntryCount(r *Result, a Assertion) error {
	s := findStudent(r.Final, a.Hashed)
	if s == nil {
		return missingStudent(r, a)
	}
	date, err := civil.ParseDate(a.Date)
	if err != nil {
		return err
	}
	i := s.CellIndex(date)
	if i < 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("student %s has a cell for %s", a.Hashed, a.Date),
			Actual:   "no such cell",
			Roster:   r.Final,
		}
	}
	if n := len(s.Cells[i].Entries); n != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d entries for %s on %s", *a.Count, a.Hashed, a.Date),
			Actual:   fmt.Sprintf("%d entries", n),
			Roster:   r.Final,
		}
	}
	return nil
}

func assertDepth(r *Result, a Assertion) error {
	actual := r.UndoDepth
	if a.Type == AssertRedoDepth {
		actual = r.RedoDepth
	}
	if actual != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("depth %d", *a.Count),
			Actual:   fmt.Sprintf("depth %d", actual),
			Roster:   r.Final,
		}
	}
	return nil
}

func assertDigestEqualsStep(r *Result, a Assertion) error {
	left, ok := r.DigestAt(*a.Step)
	if !ok {
		return fmt.Errorf("%s: step %d was not executed", a.Type, *a.Step)
	}
	right, ok := r.DigestAt(*a.Equals)
	if !ok {
		return fmt.Errorf("%s: step %d was not executed", a.Type, *a.Equals)
	}
	if left != right {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("roster after step %d equals roster after step %d", *a.Step, *a.Equals),
			Actual:   fmt.Sprintf("%.12s != %.12s", left, right),
			Roster:   r.Final,
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions and returns error messages.
// Returns an empty slice if all assertions pass.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCellsConsistent:
			err = assertCellsConsistent(result)
		case AssertStudentCells:
			err = assertStudentCells(result, a)
		case AssertStudentField:
			err = assertStudentField(result, a)
		case AssertStudentAbsent:
			err = assertStudentAbsent(result, a)
		case AssertEntryCount:
			err = assertEntryCount(result, a)
		case AssertUndoDepth, AssertRedoDepth:
			err = assertDepth(result, a)
		case AssertDigestEqualsStep:
			err = assertDigestEqualsStep(result, a)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errors
}
