// Package selection implements the selection model: a set
// partitioned by kind, with the reduction and smart-extension helpers the
// clipboard package uses before copy/cut.
package selection

import "github.com/corestate/statecraft/internal/model"

// Kind partitions the selection set.
type Kind string

const (
	KindState          Kind = "state"
	KindOutcome        Kind = "outcome"
	KindInputPort      Kind = "input_port"
	KindOutputPort     Kind = "output_port"
	KindScopedVariable Kind = "scoped_variable"
	KindTransition     Kind = "transition"
	KindDataFlow       Kind = "data_flow"
)

// Selection is a set of ids per kind. Zero value is an empty selection.
type Selection struct {
	ids map[Kind]map[string]bool
}

// New returns an empty selection.
func New() *Selection {
	return &Selection{ids: map[Kind]map[string]bool{}}
}

// Add inserts id under kind.
func (s *Selection) Add(kind Kind, id string) {
	if s.ids[kind] == nil {
		s.ids[kind] = map[string]bool{}
	}
	s.ids[kind][id] = true
}

// Remove drops id from kind, if present.
func (s *Selection) Remove(kind Kind, id string) {
	delete(s.ids[kind], id)
}

// Set replaces the full selection with exactly the given kind/id pairs.
func (s *Selection) Set(items map[Kind][]string) {
	s.ids = map[Kind]map[string]bool{}
	for kind, list := range items {
		for _, id := range list {
			s.Add(kind, id)
		}
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.ids = map[Kind]map[string]bool{}
}

// Contains reports whether id is selected under kind.
func (s *Selection) Contains(kind Kind, id string) bool {
	return s.ids[kind] != nil && s.ids[kind][id]
}

// GetAll returns every selected id under kind, in no particular order.
func (s *Selection) GetAll(kind Kind) []string {
	out := make([]string, 0, len(s.ids[kind]))
	for id := range s.ids[kind] {
		out = append(out, id)
	}
	return out
}

// States returns every selected id under KindState.
func (s *Selection) States() []string { return s.GetAll(KindState) }

// ReduceToOneParent enforces the selection invariant (if a parent and one of
// its descendants are both present, only the parent is kept) and then
// reduces to one parent: every remaining selected state must share one
// parent; if they don't, the parent with the most surviving selected
// children wins (a tie is broken arbitrarily) and the rest are dropped from
// the selection.
func ReduceToOneParent(sel *Selection, root *model.State) {
	stateIDs := sel.GetAll(KindState)
	if len(stateIDs) == 0 {
		return
	}
	byID := indexStates(root)

	// Drop any selected state whose ancestor is also selected.
	keep := map[string]bool{}
	for _, id := range stateIDs {
		st, ok := byID[id]
		if !ok {
			continue
		}
		if ancestorSelected(sel, st) {
			continue
		}
		keep[id] = true
	}

	// Group survivors by parent; keep only the largest group.
	byParent := map[string][]string{}
	for id := range keep {
		st := byID[id]
		parentID := ""
		if st.Parent != nil {
			parentID = st.Parent.ID
		}
		byParent[parentID] = append(byParent[parentID], id)
	}
	var winner string
	best := -1
	for parentID, members := range byParent {
		if len(members) > best {
			best = len(members)
			winner = parentID
		}
	}

	sel.Clear()
	for _, id := range byParent[winner] {
		sel.Add(KindState, id)
	}
}

func ancestorSelected(sel *Selection, st *model.State) bool {
	for p := st.Parent; p != nil; p = p.Parent {
		if sel.Contains(KindState, p.ID) {
			return true
		}
	}
	return false
}

// IndexStates returns every state in root's subtree (root included) keyed
// by id, for callers (internal/clipboard) that need to resolve selected ids
// back to live states.
func IndexStates(root *model.State) map[string]*model.State {
	return indexStates(root)
}

func indexStates(root *model.State) map[string]*model.State {
	out := map[string]*model.State{root.ID: root}
	var walk func(*model.State)
	walk = func(s *model.State) {
		for _, c := range s.Children() {
			out[c.ID] = c
			walk(c)
		}
	}
	walk(root)
	return out
}

// SmartExtend closes the selection under linkage: drop a transition/data-flow
// from the selection when its endpoints aren't both covered, add one when
// both endpoints are covered, so the pasted subgraph is closed under its
// own linkage.
func SmartExtend(sel *Selection, parent *model.State) {
	covered := func(stateID string) bool {
		return stateID == parent.ID || sel.Contains(KindState, stateID)
	}
	for _, t := range parent.Transitions {
		if covered(t.FromState) && covered(t.ToState) {
			sel.Add(KindTransition, t.ID)
		} else {
			sel.Remove(KindTransition, t.ID)
		}
	}
	for _, d := range parent.DataFlows {
		if covered(d.FromState) && covered(d.ToState) {
			sel.Add(KindDataFlow, d.ID)
		} else {
			sel.Remove(KindDataFlow, d.ID)
		}
	}
}
