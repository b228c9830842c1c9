package clipboard

import (
	"fmt"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/selection"
)

// MetaData is an opaque visual-layout blob.
// The clipboard package never interprets it. Ungroup accepts one and
// discards it; nothing in this module (internal/storage included) stores
// or reapplies it.
type MetaData map[string]any

// Group creates a new hierarchy state: given sibling states and scoped variables
// sharing one parent, creates a new hierarchy state in that parent, moves
// the selected children and scoped variables into it, moves every
// enclosed transition/data flow, and for every dangling linkage creates a
// matching outcome/port on the new hierarchy state, splitting the linkage
// in two.
func Group(root *model.State, sel *selection.Selection) (*model.State, error) {
	selection.ReduceToOneParent(sel, root)
	stateIDs := sel.States()
	if len(stateIDs) == 0 {
		return nil, errs.InvalidStructure("clipboard.Group", fmt.Errorf("selection is empty"))
	}
	index := selection.IndexStates(root)
	first, ok := index[stateIDs[0]]
	if !ok || first.Parent == nil {
		return nil, errs.InvalidStructure("clipboard.Group", fmt.Errorf("selected state %q has no parent", stateIDs[0]))
	}
	parent := first.Parent
	selection.SmartExtend(sel, parent)

	group := model.NewState(ids.NewShortID("state"), "group", model.VariantHierarchy)
	if err := model.AddState(parent, group); err != nil {
		return nil, err
	}

	// RemoveState drops linkage referencing each moved child from parent,
	// so classify from a pre-move snapshot.
	oldTransitions := parent.Transitions
	oldDataFlows := parent.DataFlows

	moved := map[string]bool{}
	for _, id := range stateIDs {
		st, ok := index[id]
		if !ok || st.Parent != parent {
			continue
		}
		if err := model.RemoveState(parent, st.ID); err != nil {
			return nil, err
		}
		if err := model.AddState(group, st); err != nil {
			return nil, err
		}
		moved[id] = true
		if group.StartStateID == "" {
			group.StartStateID = id
		}
	}

	for _, id := range sel.GetAll(selection.KindScopedVariable) {
		for i, sv := range parent.ScopedVars {
			if sv.ID == id {
				group.ScopedVars = append(group.ScopedVars, sv)
				parent.ScopedVars = append(parent.ScopedVars[:i], parent.ScopedVars[i+1:]...)
				break
			}
		}
	}

	// Enclosed transitions/data flows (both endpoints moved) relocate whole;
	// dangling ones (one endpoint moved, one not) are split through a new
	// outcome/port on group.
	var remainingT []*model.Transition
	for _, t := range oldTransitions {
		fromMoved, toMoved := moved[t.FromState], moved[t.ToState]
		switch {
		case fromMoved && toMoved:
			nt := *t
			group.Transitions = append(group.Transitions, &nt)
		case fromMoved && !toMoved:
			out := &model.Outcome{ID: ids.NewShortID("oc"), Name: "out_" + t.ID}
			group.Outcomes = append(group.Outcomes, out)
			group.Transitions = append(group.Transitions, &model.Transition{
				ID: ids.NewShortID("trans"), FromState: t.FromState, FromOutcome: t.FromOutcome,
				ToState: group.ID, ToOutcome: out.ID,
			})
			remainingT = append(remainingT, &model.Transition{
				ID: ids.NewShortID("trans"), FromState: group.ID, FromOutcome: out.ID,
				ToState: t.ToState, ToOutcome: t.ToOutcome,
			})
		case !fromMoved && toMoved:
			// outside state transitions into the group: route through start state.
			remainingT = append(remainingT, &model.Transition{
				ID: t.ID, FromState: t.FromState, FromOutcome: t.FromOutcome,
				ToState: group.ID, ToOutcome: "",
			})
		default:
			remainingT = append(remainingT, t)
		}
	}
	parent.Transitions = remainingT

	var remainingD []*model.DataFlow
	for _, d := range oldDataFlows {
		fromMoved, toMoved := moved[d.FromState], moved[d.ToState]
		switch {
		case fromMoved && toMoved:
			nd := *d
			group.DataFlows = append(group.DataFlows, &nd)
		case fromMoved && !toMoved:
			port := &model.Port{ID: ids.NewShortID("port"), Name: "out_" + d.ID, DataType: "any"}
			group.OutputPorts = append(group.OutputPorts, port)
			group.DataFlows = append(group.DataFlows, &model.DataFlow{
				ID: ids.NewShortID("df"), FromState: d.FromState, FromKey: d.FromKey,
				ToState: group.ID, ToKey: port.ID,
			})
			remainingD = append(remainingD, &model.DataFlow{
				ID: ids.NewShortID("df"), FromState: group.ID, FromKey: port.ID,
				ToState: d.ToState, ToKey: d.ToKey,
			})
		case !fromMoved && toMoved:
			port := &model.Port{ID: ids.NewShortID("port"), Name: "in_" + d.ID, DataType: "any"}
			group.InputPorts = append(group.InputPorts, port)
			remainingD = append(remainingD, &model.DataFlow{
				ID: ids.NewShortID("df"), FromState: d.FromState, FromKey: d.FromKey,
				ToState: group.ID, ToKey: port.ID,
			})
			group.DataFlows = append(group.DataFlows, &model.DataFlow{
				ID: ids.NewShortID("df"), FromState: group.ID, FromKey: port.ID,
				ToState: d.ToState, ToKey: d.ToKey,
			})
		default:
			remainingD = append(remainingD, d)
		}
	}
	parent.DataFlows = remainingD

	return group, nil
}

// Ungroup is Group's inverse: moves group's children, scoped
// variables, transitions and data flows back up into its parent at the
// same sibling slots, then removes group. meta is accepted but applied to
// no state: Ungroup restores no layout onto the resulting siblings.
func Ungroup(group *model.State, meta MetaData) error {
	if !group.Variant.IsContainer() {
		return errs.InvalidStructure("clipboard.Ungroup", fmt.Errorf("state %q is not a container", group.ID))
	}
	parent := group.Parent
	if parent == nil {
		return errs.InvalidStructure("clipboard.Ungroup", fmt.Errorf("cannot ungroup the root state"))
	}

	// RemoveState drops linkage referencing each moved child, so hold the
	// group's inner linkage (and start) before any move.
	innerT := group.Transitions
	innerD := group.DataFlows
	movedSV := group.ScopedVars
	startID := group.StartStateID

	for _, child := range group.Children() {
		if err := model.RemoveState(group, child.ID); err != nil {
			return err
		}
		if err := model.AddState(parent, child); err != nil {
			return err
		}
	}
	parent.ScopedVars = append(parent.ScopedVars, movedSV...)

	// Partition the parent's linkage touching group so the outer halves of
	// split edges can be fused back with their inner halves.
	var outerT, keptT []*model.Transition
	for _, t := range parent.Transitions {
		if t.FromState == group.ID || t.ToState == group.ID {
			outerT = append(outerT, t)
		} else {
			keptT = append(keptT, t)
		}
	}
	for _, t := range innerT {
		if t.ToState == group.ID {
			// inner half of a split exit edge; fuse with the outer half
			// leaving group through the same outcome.
			for _, o := range outerT {
				if o.FromState == group.ID && o.FromOutcome == t.ToOutcome {
					keptT = append(keptT, &model.Transition{
						ID: t.ID, FromState: t.FromState, FromOutcome: t.FromOutcome,
						ToState: o.ToState, ToOutcome: o.ToOutcome,
					})
					break
				}
			}
			continue
		}
		keptT = append(keptT, t)
	}
	for _, o := range outerT {
		if o.ToState == group.ID && startID != "" {
			keptT = append(keptT, &model.Transition{
				ID: o.ID, FromState: o.FromState, FromOutcome: o.FromOutcome,
				ToState: startID,
			})
		}
	}
	parent.Transitions = keptT

	var outerD, keptD []*model.DataFlow
	for _, d := range parent.DataFlows {
		if d.FromState == group.ID || d.ToState == group.ID {
			outerD = append(outerD, d)
		} else {
			keptD = append(keptD, d)
		}
	}
	for _, d := range innerD {
		switch {
		case d.ToState == group.ID:
			for _, o := range outerD {
				if o.FromState == group.ID && o.FromKey == d.ToKey {
					keptD = append(keptD, &model.DataFlow{
						ID: d.ID, FromState: d.FromState, FromKey: d.FromKey,
						ToState: o.ToState, ToKey: o.ToKey,
					})
					break
				}
			}
		case d.FromState == group.ID:
			for _, o := range outerD {
				if o.ToState == group.ID && o.ToKey == d.FromKey {
					keptD = append(keptD, &model.DataFlow{
						ID: d.ID, FromState: o.FromState, FromKey: o.FromKey,
						ToState: d.ToState, ToKey: d.ToKey,
					})
					break
				}
			}
		default:
			keptD = append(keptD, d)
		}
	}
	parent.DataFlows = keptD

	if err := model.RemoveState(parent, group.ID); err != nil {
		return err
	}
	_ = meta // not applied to any state; see the Ungroup doc
	return nil
}
