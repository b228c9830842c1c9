package engine

import (
	"context"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/scopeddata"
)

// executeLeaf runs an Execution state's script body to completion. Script
// bodies are atomic from the engine's point of view: cancellation is only
// observed at the suspend call already made before entry, and at the next
// boundary after this call returns.
func (e *Engine) executeLeaf(ctx context.Context, state *model.State, inputs map[string]scopeddata.Value, rc runCtx) (map[string]scopeddata.Value, string, error) {
	e.recordCall(state, rc, history.CallExecute, inputs, nil)
	if state.Script == nil {
		e.recordReturn(state, rc, history.CallExecute, nil, ids.OutcomeAbortedID, false)
		return nil, ids.OutcomeAbortedID, errs.ExecutionFault("engine.executeLeaf", errMissingScript(state.ID))
	}
	outputs, outcomeID, runErr := state.Script.Run(inputs)
	if runErr != nil {
		e.recordReturn(state, rc, history.CallExecute, nil, ids.OutcomeAbortedID, false)
		return nil, ids.OutcomeAbortedID, errs.ExecutionFault("engine.executeLeaf", runErr)
	}
	if _, ok := state.Outcome(outcomeID); !ok {
		e.recordReturn(state, rc, history.CallExecute, nil, ids.OutcomeAbortedID, false)
		return nil, ids.OutcomeAbortedID, errs.UnhandledOutcome("engine.executeLeaf", errUnknownOutcome(outcomeID, state.ID))
	}
	// Exit boundary. Cancellation that fired while the atomic script body
	// ran is observed here and overrides the script's natural outcome.
	if err := e.suspend(ctx, rc.depth); err != nil {
		e.recordReturn(state, rc, history.CallExecute, outputs, ids.OutcomePreemptID, true)
		return outputs, ids.OutcomePreemptID, err
	}
	e.recordReturn(state, rc, history.CallExecute, outputs, outcomeID, false)
	return outputs, outcomeID, nil
}

type errMissingScript string

func (e errMissingScript) Error() string { return "state " + string(e) + " has no script" }

type errUnknownOutcomeT struct{ outcome, state string }

func errUnknownOutcome(outcome, state string) error { return errUnknownOutcomeT{outcome, state} }
func (e errUnknownOutcomeT) Error() string {
	return "outcome " + e.outcome + " is not declared on state " + e.state
}

// recordCall appends a Call history item, when a log is attached. A
// concurrency container preassigns the item id through rc.callID so its
// Concurrency item can name every branch's entry before the branches have
// run, and so it can later mark a losing branch's Call cancelled; when no
// id was preassigned a fresh one is generated and handed back the same way.
func (e *Engine) recordCall(state *model.State, rc runCtx, ct history.CallType, inputs map[string]scopeddata.Value, scoped map[string]scopeddata.Entry) {
	if e.log == nil {
		return
	}
	var id string
	if rc.callID != nil && *rc.callID != "" {
		id = *rc.callID
	} else {
		id = ids.NewHistoryItemID()
		if rc.callID != nil {
			*rc.callID = id
		}
	}
	_ = e.log.Append(&history.Item{
		HistoryItemID:   id,
		Kind:            history.KindCall,
		CallType:        ct,
		StatePath:       rc.statePath,
		StatePathByName: rc.namePath,
		StateType:       string(state.Variant),
		Timestamp:       timeNow(),
		RunID:           rc.runID,
		Inputs:          inputs,
		ScopedData:      scoped,
	})
}

// recordReturn appends the matching Return history item.
func (e *Engine) recordReturn(state *model.State, rc runCtx, ct history.CallType, outputs map[string]scopeddata.Value, outcomeID string, cancelled bool) {
	if e.log == nil {
		return
	}
	_ = e.log.Append(&history.Item{
		HistoryItemID:   ids.NewHistoryItemID(),
		Kind:            history.KindReturn,
		CallType:        ct,
		StatePath:       rc.statePath,
		StatePathByName: rc.namePath,
		StateType:       string(state.Variant),
		Timestamp:       timeNow(),
		RunID:           rc.runID,
		Outputs:         outputs,
		Outcome:         outcomeID,
		Cancelled:       cancelled,
	})
}
