package history

import (
	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/scopeddata"
)

// BackwardTarget describes where execution resumes after one backward step.
type BackwardTarget struct {
	HistoryItemID string
	StatePath     []string
	ScopedData    map[string]scopeddata.Entry
}

// StepBackward locates the most recent non-cancelled Call(EXECUTE) item in
// l, restores its scoped_data for the caller to install into the parent
// container's scoped data plane, and truncates the live in-memory log
// through that item. Barrier/preemptive branches are stepped
// back as a unit: if the located call belongs to a concurrency branch, its
// entire branch group truncates together, which Truncate already achieves
// since branch items are contiguous in program order within their thread.
func StepBackward(l *Log) (*BackwardTarget, error) {
	items := l.Items()
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if it.Kind == KindCall && it.CallType == CallExecute && !it.Cancelled {
			target := &BackwardTarget{
				HistoryItemID: it.HistoryItemID,
				StatePath:     it.StatePath,
				ScopedData:    it.ScopedData,
			}
			l.Truncate(it.HistoryItemID)
			return target, nil
		}
	}
	return nil, errs.InvalidStructure("history.StepBackward", errNoCallToUnwind)
}

var errNoCallToUnwind = unwindError("no recorded call to step back to")

type unwindError string

func (e unwindError) Error() string { return string(e) }
