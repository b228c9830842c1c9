package history

import "time"

// Record is one collapsed per-state entry.
type Record struct {
	ID              string // history_item_id of the paired Call(EXECUTE)
	Path            []string
	StateName       string
	StateType       string
	RunID           string
	OutcomeName     string
	OutcomeID       string
	TimestampCall   time.Time
	TimestampReturn time.Time
	DataIns         map[string]any
	DataOuts        map[string]any
	ScopedIn        map[string]any
	ScopedOut       map[string]any
}

// Collapse builds the previous/next/concurrent link maps and groups
// call/return pairs by run_id into Records, plus the collapsed_next,
// collapsed_hierarchy and collapsed_concurrent relationships between them.
type Collapse struct {
	Records             []*Record
	recordByRunID       map[string]*Record
	CollapsedNext       map[string]string // record id -> record id
	CollapsedHierarchy  map[string]string
	CollapsedConcurrent map[string][]string
}

// Build runs the collapse algorithm over a raw (ordered) item list.
func Build(items []*Item) *Collapse {
	previous := map[string]string{}
	next := map[string]string{}
	concurrent := map[string][]string{}
	for _, it := range items {
		if it.PrevID != "" {
			previous[it.HistoryItemID] = it.PrevID
		}
		if it.NextID != "" {
			next[it.HistoryItemID] = it.NextID
		}
		if it.Kind == KindConcurrency {
			concurrent[it.HistoryItemID] = append([]string{}, it.BranchEntryIDs...)
		}
	}

	byRun := map[string][]*Item{}
	order := []string{}
	for _, it := range items {
		if _, ok := byRun[it.RunID]; !ok {
			order = append(order, it.RunID)
		}
		byRun[it.RunID] = append(byRun[it.RunID], it)
	}

	c := &Collapse{
		recordByRunID:       map[string]*Record{},
		CollapsedNext:       map[string]string{},
		CollapsedHierarchy:  map[string]string{},
		CollapsedConcurrent: map[string][]string{},
	}

	for _, runID := range order {
		group := byRun[runID]
		rec := collapseGroup(runID, group)
		if rec == nil {
			continue
		}
		c.Records = append(c.Records, rec)
		c.recordByRunID[runID] = rec
	}

	// collapsed_hierarchy: call of r' immediately follows call of r, r a container.
	for _, runID := range order {
		group := byRun[runID]
		call := firstCall(group)
		if call == nil || len(call.StatePath) == 0 {
			continue
		}
		if nxt, ok := byID(items, call.NextID); ok && nxt.Kind == KindCall {
			if childRec, ok := c.recordByRunID[nxt.RunID]; ok {
				if rec, ok := c.recordByRunID[runID]; ok {
					c.CollapsedHierarchy[rec.ID] = childRec.ID
				}
			}
		}
	}

	// collapsed_next: return of r followed by call of r' at same hierarchy level.
	for _, runID := range order {
		group := byRun[runID]
		ret := lastReturn(group)
		if ret == nil {
			continue
		}
		if nxt, ok := byID(items, ret.NextID); ok && nxt.Kind == KindCall && samePathPrefix(nxt.StatePath, ret.StatePath) {
			if siblingRec, ok := c.recordByRunID[nxt.RunID]; ok {
				if rec, ok := c.recordByRunID[runID]; ok {
					c.CollapsedNext[rec.ID] = siblingRec.ID
				}
			}
		}
	}

	// collapsed_concurrent: r is a concurrency state, ri are branch roots.
	for itemID, branchIDs := range concurrent {
		owner, ok := byID(items, itemID)
		if !ok {
			continue
		}
		ownerRec, ok := c.recordByRunID[owner.RunID]
		if !ok {
			continue
		}
		for _, bID := range branchIDs {
			branchItem, ok := byID(items, bID)
			if !ok {
				continue
			}
			if branchRec, ok := c.recordByRunID[branchItem.RunID]; ok {
				c.CollapsedConcurrent[ownerRec.ID] = append(c.CollapsedConcurrent[ownerRec.ID], branchRec.ID)
			}
		}
	}

	return c
}

// collapseGroup pairs the innermost Call(EXECUTE) with its matching
// Return(EXECUTE); falling back to CONTAINER when EXECUTE is absent.
func collapseGroup(runID string, group []*Item) *Record {
	call := findCallType(group, CallExecute)
	ret := findReturnType(group, CallExecute)
	if call == nil {
		call = findCallType(group, CallContainer)
		ret = findReturnType(group, CallContainer)
	}
	if call == nil {
		return nil
	}
	rec := &Record{
		ID:        call.HistoryItemID,
		Path:      call.StatePath,
		StateName: lastOrEmpty(call.StatePathByName),
		StateType:     call.StateType,
		RunID:         runID,
		DataIns:       toAnyMap(call.Inputs),
		ScopedIn:      toAnyMap(call.ScopedData),
		TimestampCall: call.Timestamp,
	}
	if ret != nil {
		rec.OutcomeID = ret.Outcome
		rec.OutcomeName = ret.Outcome
		rec.DataOuts = toAnyMap(ret.Outputs)
		rec.ScopedOut = toAnyMap(ret.ScopedData)
		rec.TimestampReturn = ret.Timestamp
	}
	return rec
}

func findCallType(group []*Item, ct CallType) *Item {
	for _, it := range group {
		if it.Kind == KindCall && it.CallType == ct {
			return it
		}
	}
	return nil
}

func findReturnType(group []*Item, ct CallType) *Item {
	for i := len(group) - 1; i >= 0; i-- {
		if group[i].Kind == KindReturn && group[i].CallType == ct {
			return group[i]
		}
	}
	return nil
}

func firstCall(group []*Item) *Item {
	for _, it := range group {
		if it.Kind == KindCall {
			return it
		}
	}
	return nil
}

func lastReturn(group []*Item) *Item {
	for i := len(group) - 1; i >= 0; i-- {
		if group[i].Kind == KindReturn {
			return group[i]
		}
	}
	return nil
}

func byID(items []*Item, id string) (*Item, bool) {
	if id == "" {
		return nil, false
	}
	for _, it := range items {
		if it.HistoryItemID == id {
			return it, true
		}
	}
	return nil, false
}

func samePathPrefix(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if i == len(a)-1 {
			continue // last element (state id itself) may differ between siblings
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lastOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

func toAnyMap[T any](m map[string]T) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
