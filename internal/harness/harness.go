package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/rostersync/internal/engine"
	"github.com/roach88/rostersync/internal/ir"
	"github.com/roach88/rostersync/internal/testutil"
)

// Harness is the scenario execution engine.
// Each run gets a fresh engine with an identity cipher and a single decrypt
// worker, so results are reproducible.
type Harness struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh engine
//  2. Apply the setup roster as a Full
//  3. Execute steps, recording revision, history depths and digest after each
//  4. Evaluate assertions against the final roster
//
// An error is returned only when the scenario cannot be executed at all;
// unexpected step outcomes and failed assertions are recorded on the result.
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.DiscardHandler) // Suppress logs in scenarios
	h := &Harness{
		engine: engine.New(
			engine.WithCipher(testutil.IdentityCipher{}),
			engine.WithLogger(logger),
			engine.WithDecryptWorkers(1),
		),
		logger: logger,
	}
	ctx := context.Background()

	full, err := scenario.SetupFull()
	if err != nil {
		return nil, fmt.Errorf("failed to build setup: %w", err)
	}
	if err := h.engine.Apply(ctx, full, engine.BucketUndo, true); err != nil {
		return nil, fmt.Errorf("failed to apply setup: %w", err)
	}

	result := NewResult()
	result.SetupDigest, err = ir.RosterDigest(h.engine.Snapshot().Roster)
	if err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		sr, err := h.executeStep(ctx, i+1, step, result)
		if err != nil {
			return nil, fmt.Errorf("failed to execute step %d: %w", i+1, err)
		}
		result.Steps = append(result.Steps, sr)
	}

	snap := h.engine.Snapshot()
	result.Final = snap.Roster
	result.UndoDepth = h.engine.UndoDepth()
	result.RedoDepth = h.engine.RedoDepth()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) (StepResult, error) {
	sr := StepResult{Index: index, Kind: step.Kind()}

	var applyErr error
	switch sr.Kind {
	case StepApply:
		op, err := step.Operation()
		if err != nil {
			return sr, err
		}
		sr.Op = op.OpType()
		applyErr = h.engine.Apply(ctx, op, engine.BucketUndo, true)
		sr.Applied = applyErr == nil
	case StepUndo:
		sr.Applied, applyErr = h.engine.Undo(ctx)
	case StepRedo:
		sr.Applied, applyErr = h.engine.Redo(ctx)
	default:
		return sr, fmt.Errorf("malformed step")
	}

	if applyErr != nil {
		sr.Error = applyErr.Error()
	}
	switch {
	case step.ExpectError && applyErr == nil:
		result.AddError(fmt.Sprintf("step %d (%s): expected an error, got none", index, sr.Kind))
	case !step.ExpectError && applyErr != nil:
		result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", index, sr.Kind, applyErr))
	}
	if step.ExpectApplied != nil && *step.ExpectApplied != sr.Applied {
		result.AddError(fmt.Sprintf("step %d (%s): expected applied=%t, got %t", index, sr.Kind, *step.ExpectApplied, sr.Applied))
	}

	snap := h.engine.Snapshot()
	sr.Revision = snap.Revision
	sr.UndoDepth = h.engine.UndoDepth()
	sr.RedoDepth = h.engine.RedoDepth()
	digest, err := ir.RosterDigest(snap.Roster)
	if err != nil {
		return sr, err
	}
	sr.Digest = digest

	h.logger.Debug("step executed", "index", index, "kind", sr.Kind, "op", sr.Op, "revision", sr.Revision)
	return sr, nil
}
