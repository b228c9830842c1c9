package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/scopeddata"
)

// executeBarrier runs every child concurrently on
// its own worker task; the container blocks until all finish, then the
// collected outcomes feed the implicit decider whose own outcome becomes
// the container's outcome.
func (e *Engine) executeBarrier(ctx context.Context, state *model.State, inputs map[string]scopeddata.Value, rc runCtx) (map[string]scopeddata.Value, string, error) {
	e.recordCall(state, rc, history.CallContainer, inputs, nil)
	plane := seedContainerEntry(state, inputs)

	branches := nonDeciderChildren(state)

	// Preassign every branch's Call item id so the Concurrency item can be
	// written first, naming each branch's entry, without racing the
	// branches' own appends.
	callIDs := make(map[string]*string, len(branches))
	branchEntryIDs := make([]string, 0, len(branches))
	for _, child := range branches {
		id := ids.NewHistoryItemID()
		callIDs[child.ID] = &id
		branchEntryIDs = append(branchEntryIDs, id)
	}
	if e.log != nil && len(branches) > 0 {
		_ = e.log.Append(&history.Item{
			HistoryItemID:  ids.NewHistoryItemID(),
			Kind:           history.KindConcurrency,
			StatePath:      rc.statePath,
			Timestamp:      timeNow(),
			RunID:          rc.runID,
			BranchEntryIDs: branchEntryIDs,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	outcomes := map[string]string{}
	outputsByChild := map[string]map[string]scopeddata.Value{}

	for _, child := range branches {
		child := child
		branchRC := rc.child(child)
		branchRC.callID = callIDs[child.ID]
		childInputs := resolveChildInputs(state, child, plane)
		g.Go(func() error {
			outs, outcome, err := e.execute(gctx, child, childInputs, branchRC)
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes[child.ID] = outcome
			outputsByChild[child.ID] = outs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	// Join boundary. An engine stop (or an enclosing preemption) that fired
	// while the branches ran preempts the container before the decider runs.
	if err := e.suspend(ctx, rc.depth); err != nil {
		outputs := fillContainerOutputs(state, plane)
		e.recordReturn(state, rc, history.CallContainer, outputs, ids.OutcomePreemptID, true)
		return outputs, ids.OutcomePreemptID, err
	}

	if e.log != nil {
		for childID, outcome := range outcomes {
			if outcome == ids.OutcomePreemptID {
				e.log.MarkCancelled(*callIDs[childID])
			}
		}
	}

	for _, child := range branches {
		recordChildOutputs(state, child, plane, outputsByChild[child.ID])
	}

	decider, ok := state.Decider()
	if !ok {
		return nil, "", errs.InvalidStructure("engine.executeBarrier", fmt.Errorf("barrier state %q has no decider", state.ID))
	}
	deciderInputs := make(map[string]scopeddata.Value, len(outcomes))
	for childID, outcome := range outcomes {
		deciderInputs[childID] = scopeddata.Str(outcome)
	}
	_, deciderOutcome, err := e.execute(ctx, decider, deciderInputs, rc.child(decider))
	if err != nil {
		return nil, "", err
	}
	t := findTransition(state, decider.ID, deciderOutcome)
	if t == nil || t.ToState != state.ID {
		e.recordReturn(state, rc, history.CallContainer, nil, ids.OutcomeAbortedID, false)
		return nil, "", errs.UnhandledOutcome("engine.executeBarrier", fmt.Errorf("decider outcome %q has no exit transition", deciderOutcome))
	}
	outputs := fillContainerOutputs(state, plane)
	e.recordReturn(state, rc, history.CallContainer, outputs, t.ToOutcome, false)
	return outputs, t.ToOutcome, nil
}

func nonDeciderChildren(state *model.State) []*model.State {
	var out []*model.State
	for _, c := range state.Children() {
		if c.ID == ids.UniqueDeciderStateID {
			continue
		}
		out = append(out, c)
	}
	return out
}
