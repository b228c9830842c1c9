package engine

import (
	"context"
	"fmt"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/scopeddata"
)

// executeHierarchy runs one child at a time, in the
// task of the enclosing container, advancing along transitions until one
// leads back out to the container itself.
func (e *Engine) executeHierarchy(ctx context.Context, state *model.State, inputs map[string]scopeddata.Value, rc runCtx) (map[string]scopeddata.Value, string, error) {
	e.recordCall(state, rc, history.CallContainer, inputs, nil)
	plane := seedContainerEntry(state, inputs)

	if state.StartStateID == "" {
		if len(state.Children()) > 0 {
			return nil, "", errs.InvalidStructure("engine.executeHierarchy", fmt.Errorf("state %q has children but no start_state_id", state.ID))
		}
		outputs := fillContainerOutputs(state, plane)
		e.recordReturn(state, rc, history.CallContainer, outputs, ids.OutcomeSuccessID, false)
		return outputs, ids.OutcomeSuccessID, nil
	}

	currentID := state.StartStateID
	for {
		child, ok := state.Child(currentID)
		if !ok {
			return nil, "", errs.InvalidStructure("engine.executeHierarchy", fmt.Errorf("state %q: current child %q not found", state.ID, currentID))
		}
		childInputs := resolveChildInputs(state, child, plane)
		childOutputs, childOutcome, err := e.execute(ctx, child, childInputs, rc.child(child))
		if err != nil {
			return nil, "", err
		}
		recordChildOutputs(state, child, plane, childOutputs)

		// Child-exit boundary. Cancellation that fired while the child ran
		// (the last child included) preempts the container before any exit
		// transition is committed.
		if err := e.suspend(ctx, rc.depth); err != nil {
			outputs := fillContainerOutputs(state, plane)
			e.recordReturn(state, rc, history.CallContainer, outputs, ids.OutcomePreemptID, true)
			return outputs, ids.OutcomePreemptID, err
		}

		t := findTransition(state, currentID, childOutcome)
		if t == nil {
			outputs := fillContainerOutputs(state, plane)
			e.recordReturn(state, rc, history.CallContainer, outputs, ids.OutcomeAbortedID, false)
			return nil, "", errs.UnhandledOutcome("engine.executeHierarchy", fmt.Errorf("no transition for (%s, %s)", currentID, childOutcome))
		}
		if t.ToState == state.ID {
			outputs := fillContainerOutputs(state, plane)
			e.recordReturn(state, rc, history.CallContainer, outputs, t.ToOutcome, false)
			return outputs, t.ToOutcome, nil
		}
		currentID = t.ToState
	}
}

func findTransition(container *model.State, fromState, fromOutcome string) *model.Transition {
	for _, t := range container.Transitions {
		if t.FromState == fromState && t.FromOutcome == fromOutcome {
			return t
		}
	}
	return nil
}
