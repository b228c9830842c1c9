// Package clipboard implements clipboard & structural edits:
// copy/cut/paste, group/ungroup, and substitute. The package does not check
// engine status itself; internal/control gates these edits on the engine
// being STOPPED before calling in.
package clipboard

import (
	"fmt"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/selection"
)

// Clipboard holds deep copies of the most recently copied/cut subgraph.
// Paste never consumes it: every paste re-deep-copies from these held
// copies.
type Clipboard struct {
	sourceParentID string
	states         []*model.State
	transitions    []*model.Transition
	dataFlows      []*model.DataFlow
	scopedVars     []*model.ScopedVariable
}

// New returns an empty clipboard.
func New() *Clipboard {
	return &Clipboard{}
}

// Empty reports whether anything has been copied/cut yet.
func (c *Clipboard) Empty() bool {
	return len(c.states) == 0
}

// Copy reduces sel to one parent and smart-extends it, then
// deep-copies the resulting selection into the clipboard.
func (c *Clipboard) Copy(root *model.State, sel *selection.Selection) error {
	selection.ReduceToOneParent(sel, root)
	stateIDs := sel.States()
	if len(stateIDs) == 0 {
		return errs.InvalidStructure("clipboard.Copy", fmt.Errorf("selection is empty"))
	}
	index := selection.IndexStates(root)
	first, ok := index[stateIDs[0]]
	if !ok {
		return errs.InvalidStructure("clipboard.Copy", fmt.Errorf("selected state %q not found", stateIDs[0]))
	}
	parent := first.Parent
	if parent == nil {
		return errs.InvalidStructure("clipboard.Copy", fmt.Errorf("root state cannot be copied"))
	}
	selection.SmartExtend(sel, parent)

	c.sourceParentID = parent.ID
	c.states = nil
	for _, id := range stateIDs {
		st, ok := index[id]
		if !ok || st.Parent != parent {
			continue
		}
		c.states = append(c.states, cloneState(st))
	}
	c.transitions = nil
	for _, id := range sel.GetAll(selection.KindTransition) {
		for _, t := range parent.Transitions {
			if t.ID == id {
				cp := *t
				c.transitions = append(c.transitions, &cp)
			}
		}
	}
	c.dataFlows = nil
	for _, id := range sel.GetAll(selection.KindDataFlow) {
		for _, d := range parent.DataFlows {
			if d.ID == id {
				cp := *d
				c.dataFlows = append(c.dataFlows, &cp)
			}
		}
	}
	c.scopedVars = nil
	for _, id := range sel.GetAll(selection.KindScopedVariable) {
		for _, v := range parent.ScopedVars {
			if v.ID == id {
				cp := *v
				c.scopedVars = append(c.scopedVars, &cp)
			}
		}
	}
	return nil
}

// Cut copies the selection, then removes every selected top-level state
// (and, transitively, the transitions/data flows that referenced it) from
// the live tree.
func (c *Clipboard) Cut(root *model.State, sel *selection.Selection) error {
	if err := c.Copy(root, sel); err != nil {
		return err
	}
	index := selection.IndexStates(root)
	first, _ := index[c.states[0].ID]
	parent := first.Parent
	for _, st := range c.states {
		if err := model.RemoveState(parent, st.ID); err != nil {
			return err
		}
	}
	for _, t := range c.transitions {
		_ = model.RemoveTransition(parent, t.ID)
	}
	for _, d := range c.dataFlows {
		_ = model.RemoveDataFlow(parent, d.ID)
	}
	return nil
}
