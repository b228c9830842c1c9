package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/scopeddata"
)

type preemptiveResult struct {
	child   *model.State
	outputs map[string]scopeddata.Value
	outcome string
	err     error
	callID  string
}

// executePreemptive launches every child
// concurrently; the first to finish (any outcome) wins and every other
// branch is cancelled cooperatively, observing the cancellation at its next
// suspension point and exiting via preempted.
func (e *Engine) executePreemptive(ctx context.Context, state *model.State, inputs map[string]scopeddata.Value, rc runCtx) (map[string]scopeddata.Value, string, error) {
	e.recordCall(state, rc, history.CallContainer, inputs, nil)
	plane := seedContainerEntry(state, inputs)

	children := state.Children()
	if len(children) == 0 {
		outputs := fillContainerOutputs(state, plane)
		e.recordReturn(state, rc, history.CallContainer, outputs, ids.OutcomeSuccessID, false)
		return outputs, ids.OutcomeSuccessID, nil
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Preassign every branch's Call item id so the Concurrency item can be
	// written first, naming each branch's entry, without racing the
	// branches' own appends.
	callIDs := make(map[string]string, len(children))
	branchEntryIDs := make([]string, 0, len(children))
	for _, child := range children {
		id := ids.NewHistoryItemID()
		callIDs[child.ID] = id
		branchEntryIDs = append(branchEntryIDs, id)
	}
	if e.log != nil {
		_ = e.log.Append(&history.Item{
			HistoryItemID:  ids.NewHistoryItemID(),
			Kind:           history.KindConcurrency,
			StatePath:      rc.statePath,
			Timestamp:      timeNow(),
			RunID:          rc.runID,
			BranchEntryIDs: branchEntryIDs,
		})
	}

	resultCh := make(chan preemptiveResult, len(children))
	var wg sync.WaitGroup
	for _, child := range children {
		child := child
		childInputs := resolveChildInputs(state, child, plane)
		branchRC := rc.child(child)
		callID := callIDs[child.ID]
		branchRC.callID = &callID
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs, outcome, err := e.execute(cctx, child, childInputs, branchRC)
			resultCh <- preemptiveResult{child: child, outputs: outs, outcome: outcome, err: err, callID: callID}
		}()
	}
	go func() { wg.Wait(); close(resultCh) }()

	var winner *preemptiveResult
	var surfaced error
	var losers []preemptiveResult
	for r := range resultCh {
		r := r
		if r.err != nil {
			if se, ok := r.err.(*errs.Error); ok && se.Surfaces() && surfaced == nil {
				surfaced = r.err
			}
			continue
		}
		if winner == nil {
			winner = &r
			cancel()
		} else {
			losers = append(losers, r)
		}
	}
	if e.log != nil {
		for _, l := range losers {
			if l.outcome == ids.OutcomePreemptID {
				e.log.MarkCancelled(l.callID)
			}
		}
	}
	if surfaced != nil {
		return nil, "", surfaced
	}
	if winner == nil {
		e.recordReturn(state, rc, history.CallContainer, nil, ids.OutcomeAbortedID, false)
		return nil, "", errs.ExecutionFault("engine.executePreemptive", fmt.Errorf("state %q: every branch failed", state.ID))
	}

	// Join boundary. An engine stop (or an enclosing preemption) that fired
	// while the branches raced preempts the container regardless of which
	// branch finished first; suspend reads the engine flag and the outer
	// context, not the race's own cancelled cctx.
	if err := e.suspend(ctx, rc.depth); err != nil {
		outputs := fillContainerOutputs(state, plane)
		e.recordReturn(state, rc, history.CallContainer, outputs, ids.OutcomePreemptID, true)
		return outputs, ids.OutcomePreemptID, err
	}

	recordChildOutputs(state, winner.child, plane, winner.outputs)
	t := findTransition(state, winner.child.ID, winner.outcome)
	if t == nil || t.ToState != state.ID {
		e.recordReturn(state, rc, history.CallContainer, nil, ids.OutcomeAbortedID, false)
		return nil, "", errs.UnhandledOutcome("engine.executePreemptive", fmt.Errorf("no exit transition for (%s, %s)", winner.child.ID, winner.outcome))
	}
	outputs := fillContainerOutputs(state, plane)
	e.recordReturn(state, rc, history.CallContainer, outputs, t.ToOutcome, false)
	return outputs, t.ToOutcome, nil
}
