package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/scopeddata"
)

func scriptReturning(outcome string) model.ScriptFunc {
	return func(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error) {
		return map[string]scopeddata.Value{}, outcome, nil
	}
}

func TestExecuteHierarchySequentialSuccess(t *testing.T) {
	root := model.NewState("root", "root", model.VariantHierarchy)
	a := model.NewState("a", "a", model.VariantExecution)
	b := model.NewState("b", "b", model.VariantExecution)
	a.Script = scriptReturning(ids.OutcomeSuccessID)
	b.Script = scriptReturning(ids.OutcomeSuccessID)
	require.NoError(t, model.AddState(root, a))
	require.NoError(t, model.AddState(root, b))
	root.StartStateID = a.ID
	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "t1", FromState: a.ID, FromOutcome: ids.OutcomeSuccessID, ToState: b.ID,
	}))
	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "t2", FromState: b.ID, FromOutcome: ids.OutcomeSuccessID,
		ToState: root.ID, ToOutcome: ids.OutcomeSuccessID,
	}))

	e := New(Config{}, nil, nil)
	outcome, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, ids.OutcomeSuccessID, outcome)
	require.Equal(t, StatusStopped, e.Status())
}

func TestExecuteHierarchyUnhandledOutcomeAborts(t *testing.T) {
	root := model.NewState("root", "root", model.VariantHierarchy)
	a := model.NewState("a", "a", model.VariantExecution)
	a.Script = scriptReturning(ids.OutcomeSuccessID)
	require.NoError(t, model.AddState(root, a))
	root.StartStateID = a.ID
	// No transition out of a's success outcome: hierarchy has nowhere to go.

	e := New(Config{}, nil, nil)
	outcome, err := e.Run(context.Background(), root)
	require.NoError(t, err, "unhandled outcome is reified, not surfaced as a Go error")
	require.Equal(t, ids.OutcomeAbortedID, outcome)
}

func TestExecuteMissingScriptAborts(t *testing.T) {
	root := model.NewState("leaf", "leaf", model.VariantExecution)

	e := New(Config{}, nil, nil)
	outcome, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, ids.OutcomeAbortedID, outcome)
}

func TestDataFlowRoutesOutputToSiblingInput(t *testing.T) {
	root := model.NewState("root", "root", model.VariantHierarchy)
	a := model.NewState("a", "a", model.VariantExecution)
	b := model.NewState("b", "b", model.VariantExecution)
	require.NoError(t, model.AddState(root, a))
	require.NoError(t, model.AddState(root, b))
	require.NoError(t, model.AddPort(a, &model.Port{ID: "out", Name: "out", DataType: "int", Default: scopeddata.Int(0)}, model.Output))
	require.NoError(t, model.AddPort(b, &model.Port{ID: "in", Name: "in", DataType: "int", Default: scopeddata.Int(0)}, model.Input))
	require.NoError(t, model.AddDataFlow(root, &model.DataFlow{
		ID: "df1", FromState: a.ID, FromKey: "out", ToState: b.ID, ToKey: "in",
	}))

	a.Script = model.ScriptFunc(func(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error) {
		return map[string]scopeddata.Value{"out": scopeddata.Int(42)}, ids.OutcomeSuccessID, nil
	})
	var got scopeddata.Value
	b.Script = model.ScriptFunc(func(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error) {
		got = inputs["in"]
		return map[string]scopeddata.Value{}, ids.OutcomeSuccessID, nil
	})

	root.StartStateID = a.ID
	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "t1", FromState: a.ID, FromOutcome: ids.OutcomeSuccessID, ToState: b.ID,
	}))
	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "t2", FromState: b.ID, FromOutcome: ids.OutcomeSuccessID,
		ToState: root.ID, ToOutcome: ids.OutcomeSuccessID,
	}))

	e := New(Config{}, nil, nil)
	outcome, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, ids.OutcomeSuccessID, outcome)
	require.Equal(t, scopeddata.Int(42), got, "a's output must arrive at b's input through the data flow")
}

func TestExecuteBarrierRunsAllBranchesAndDecides(t *testing.T) {
	root := model.NewState("root", "root", model.VariantBarrier)
	a := model.NewState("a", "a", model.VariantExecution)
	b := model.NewState("b", "b", model.VariantExecution)
	a.Script = scriptReturning(ids.OutcomeSuccessID)
	b.Script = scriptReturning(ids.OutcomeSuccessID)
	require.NoError(t, model.AddState(root, a))
	require.NoError(t, model.AddState(root, b))

	decider, ok := root.Decider()
	require.True(t, ok)
	decider.Script = scriptReturning(ids.OutcomeSuccessID)
	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "td", FromState: decider.ID, FromOutcome: ids.OutcomeSuccessID,
		ToState: root.ID, ToOutcome: ids.OutcomeSuccessID,
	}))

	e := New(Config{}, nil, nil)
	outcome, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, ids.OutcomeSuccessID, outcome)
}

func TestStopCausesPreempt(t *testing.T) {
	root := model.NewState("root", "root", model.VariantHierarchy)
	a := model.NewState("a", "a", model.VariantExecution)
	b := model.NewState("b", "b", model.VariantExecution)

	e := New(Config{}, nil, nil)
	// a stops the engine from inside its own atomic script body; the
	// cancellation is observed at a's exit boundary, so a exits preempted
	// and b never runs.
	a.Script = model.ScriptFunc(func(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error) {
		e.Stop()
		return map[string]scopeddata.Value{}, ids.OutcomeSuccessID, nil
	})
	b.Script = scriptReturning(ids.OutcomeSuccessID)
	require.NoError(t, model.AddState(root, a))
	require.NoError(t, model.AddState(root, b))
	root.StartStateID = a.ID
	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "t1", FromState: a.ID, FromOutcome: ids.OutcomeSuccessID, ToState: b.ID,
	}))
	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "t2", FromState: b.ID, FromOutcome: ids.OutcomeSuccessID,
		ToState: root.ID, ToOutcome: ids.OutcomeSuccessID,
	}))

	outcome, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, ids.OutcomePreemptID, outcome)
	require.True(t, e.FinishedOrStopped())
}

// TestExecutePreemptiveBareLeafLoserExitsPreempted races two bare leaves:
// Fast returns success in 10ms, Slow sleeps 100ms. Slow has no further
// entry boundary to hit after its atomic script body, so only the exit
// boundary can observe the cancellation; its outcome must still be
// preempted, and the winner's Return must precede the loser's in the log.
func TestExecutePreemptiveBareLeafLoserExitsPreempted(t *testing.T) {
	root := model.NewState("root", "root", model.VariantPreemptive)

	fast := model.NewState("fast", "fast", model.VariantExecution)
	fast.Script = model.ScriptFunc(func(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error) {
		time.Sleep(10 * time.Millisecond)
		return map[string]scopeddata.Value{}, ids.OutcomeSuccessID, nil
	})
	slow := model.NewState("slow", "slow", model.VariantExecution)
	slow.Script = model.ScriptFunc(func(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error) {
		time.Sleep(100 * time.Millisecond)
		return map[string]scopeddata.Value{}, ids.OutcomeSuccessID, nil
	})
	require.NoError(t, model.AddState(root, fast))
	require.NoError(t, model.AddState(root, slow))
	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "r1", FromState: fast.ID, FromOutcome: ids.OutcomeSuccessID,
		ToState: root.ID, ToOutcome: ids.OutcomeSuccessID,
	}))

	log := history.NewLog(nil)
	e := New(Config{}, log, nil)
	outcome, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, ids.OutcomeSuccessID, outcome, "parent outcome follows the transition from fast/success")

	fastRetIdx, slowRetIdx := -1, -1
	var slowRet *history.Item
	for i, it := range log.Items() {
		if it.Kind != history.KindReturn || len(it.StatePath) == 0 {
			continue
		}
		switch it.StatePath[len(it.StatePath)-1] {
		case fast.ID:
			fastRetIdx = i
		case slow.ID:
			slowRetIdx = i
			slowRet = it
		}
	}
	require.NotNil(t, slowRet, "the losing leaf must still record a Return")
	require.Equal(t, ids.OutcomePreemptID, slowRet.Outcome, "the losing leaf's script success is overridden by preemption at its exit boundary")
	require.True(t, slowRet.Cancelled)
	require.Greater(t, slowRetIdx, fastRetIdx, "the winner's Return precedes the loser's")
}

// TestExecutePreemptiveFirstFinisherWinsAndCancelsSiblings exercises
// preemption of a nested container end to end: Fast finishes quickly and its
// outcome propagates through the container's exit transition, while Slow
// is still mid-flight, observes cancellation at its next child boundary,
// and exits via preempted. It also checks the two history-side effects a
// preemptive run must produce: a Concurrency item recording both branch
// entries, and the losing branch's own Call
// item retroactively marked cancelled so StepBackward skips it.
func TestExecutePreemptiveFirstFinisherWinsAndCancelsSiblings(t *testing.T) {
	root := model.NewState("root", "root", model.VariantPreemptive)

	fast := model.NewState("fast", "fast", model.VariantExecution)
	fast.Script = model.ScriptFunc(func(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error) {
		time.Sleep(10 * time.Millisecond)
		return map[string]scopeddata.Value{}, ids.OutcomeSuccessID, nil
	})
	require.NoError(t, model.AddState(root, fast))

	slow := model.NewState("slow", "slow", model.VariantHierarchy)
	require.NoError(t, model.AddState(root, slow))

	step1 := model.NewState("step1", "step1", model.VariantExecution)
	step1.Script = model.ScriptFunc(func(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error) {
		time.Sleep(100 * time.Millisecond)
		return map[string]scopeddata.Value{}, ids.OutcomeSuccessID, nil
	})
	step2 := model.NewState("step2", "step2", model.VariantExecution)
	step2.Script = scriptReturning(ids.OutcomeSuccessID)
	require.NoError(t, model.AddState(slow, step1))
	require.NoError(t, model.AddState(slow, step2))
	slow.StartStateID = step1.ID
	require.NoError(t, model.AddTransition(slow, &model.Transition{
		ID: "s1", FromState: step1.ID, FromOutcome: ids.OutcomeSuccessID, ToState: step2.ID,
	}))
	require.NoError(t, model.AddTransition(slow, &model.Transition{
		ID: "s2", FromState: step2.ID, FromOutcome: ids.OutcomeSuccessID,
		ToState: slow.ID, ToOutcome: ids.OutcomeSuccessID,
	}))

	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "r1", FromState: fast.ID, FromOutcome: ids.OutcomeSuccessID,
		ToState: root.ID, ToOutcome: ids.OutcomeSuccessID,
	}))
	require.NoError(t, model.AddTransition(root, &model.Transition{
		ID: "r2", FromState: slow.ID, FromOutcome: ids.OutcomePreemptID,
		ToState: root.ID, ToOutcome: ids.OutcomePreemptID,
	}))

	log := history.NewLog(nil)
	e := New(Config{}, log, nil)
	outcome, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, ids.OutcomeSuccessID, outcome, "fast's transition wins the race")

	var sawConcurrency bool
	var slowCall *history.Item
	for _, it := range log.Items() {
		if it.Kind == history.KindConcurrency {
			sawConcurrency = true
			require.Len(t, it.BranchEntryIDs, 2)
		}
		if it.Kind == history.KindCall && it.CallType == history.CallContainer &&
			len(it.StatePath) > 0 && it.StatePath[len(it.StatePath)-1] == slow.ID {
			slowCall = it
		}
	}
	require.True(t, sawConcurrency, "preemptive execution must record a Concurrency item")
	require.NotNil(t, slowCall, "slow branch's own Call item must be recorded")
	require.True(t, slowCall.Cancelled, "the losing branch's Call item must be marked cancelled")
}
