package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corestate/statecraft/internal/scopeddata"
)

func appendCallReturn(t *testing.T, l *Log, runID, stateID, outcome string) (call, ret *Item) {
	t.Helper()
	call = &Item{
		HistoryItemID: "call-" + stateID + "-" + runID,
		Kind:          KindCall,
		CallType:      CallExecute,
		StatePath:     []string{"root", stateID},
		StateType:     "execution",
		RunID:         runID,
		Timestamp:     time.Now(),
		ScopedData:    map[string]scopeddata.Entry{"x": {Name: "x", Type: "int", Value: scopeddata.Int(1)}},
	}
	require.NoError(t, l.Append(call))

	ret = &Item{
		HistoryItemID: "ret-" + stateID + "-" + runID,
		Kind:          KindReturn,
		CallType:      CallExecute,
		StatePath:     []string{"root", stateID},
		StateType:     "execution",
		RunID:         runID,
		Timestamp:     time.Now(),
		Outcome:       outcome,
	}
	require.NoError(t, l.Append(ret))
	return call, ret
}

func TestBuildCollapsesOneRunIntoOneRecord(t *testing.T) {
	l := NewLog(nil)
	appendCallReturn(t, l, "run-1", "a", "success")

	c := Build(l.Items())
	require.Len(t, c.Records, 1)
	require.Equal(t, "run-1", c.Records[0].RunID)
	require.Equal(t, "success", c.Records[0].OutcomeName)
}

func TestBuildLinksConsecutiveRunsAsNext(t *testing.T) {
	l := NewLog(nil)
	appendCallReturn(t, l, "run-1", "a", "success")
	appendCallReturn(t, l, "run-2", "b", "success")

	c := Build(l.Items())
	require.Len(t, c.Records, 2)
	next, ok := c.CollapsedNext[c.Records[0].ID]
	require.True(t, ok)
	require.Equal(t, c.Records[1].ID, next)
}

func TestStepBackwardTruncatesToLastCall(t *testing.T) {
	l := NewLog(nil)
	appendCallReturn(t, l, "run-1", "a", "success")
	call2, _ := appendCallReturn(t, l, "run-2", "b", "success")

	target, err := StepBackward(l)
	require.NoError(t, err)
	require.Equal(t, call2.HistoryItemID, target.HistoryItemID)
	require.Equal(t, []string{"root", "b"}, target.StatePath)

	// truncated: the call survives, its return does not.
	_, ok := l.Get(call2.HistoryItemID)
	require.True(t, ok)
	require.Len(t, l.Items(), 3)
}

func TestStepBackwardSkipsCancelledCalls(t *testing.T) {
	l := NewLog(nil)
	call, _ := appendCallReturn(t, l, "run-1", "a", "success")
	cancelled := &Item{
		HistoryItemID: "call-b-run-2",
		Kind:          KindCall,
		CallType:      CallExecute,
		StatePath:     []string{"root", "b"},
		RunID:         "run-2",
		Timestamp:     time.Now(),
		Cancelled:     true,
	}
	require.NoError(t, l.Append(cancelled))

	target, err := StepBackward(l)
	require.NoError(t, err)
	require.Equal(t, call.HistoryItemID, target.HistoryItemID)
}

func TestStepBackwardErrorsWithNoCalls(t *testing.T) {
	l := NewLog(nil)
	_, err := StepBackward(l)
	require.Error(t, err)
}
