package clipboard

import (
	"fmt"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/model"
)

// SubstituteOptions configures Substitute.
type SubstituteOptions struct {
	// KeepName re-uses target's old name on replacement instead of
	// replacement's own name.
	KeepName bool
}

// Substitute replaces target at its same sibling slot with replacement,
// preserving linkage where possible: outcomes and ports are matched by
// name first, falling back to positional order; unmatched old linkage is
// dropped.
func Substitute(target *model.State, replacement *model.State, opts SubstituteOptions) error {
	parent := target.Parent
	if parent == nil {
		return errs.InvalidStructure("clipboard.Substitute", fmt.Errorf("cannot substitute the root state"))
	}

	outcomeMap := matchByNameThenPosition(
		outcomeNames(target.Outcomes), outcomeIDs(target.Outcomes),
		outcomeNames(replacement.Outcomes), outcomeIDs(replacement.Outcomes),
	)
	inputMap := matchByNameThenPosition(
		portNames(target.InputPorts), portIDs(target.InputPorts),
		portNames(replacement.InputPorts), portIDs(replacement.InputPorts),
	)
	outputMap := matchByNameThenPosition(
		portNames(target.OutputPorts), portIDs(target.OutputPorts),
		portNames(replacement.OutputPorts), portIDs(replacement.OutputPorts),
	)

	name := replacement.Name
	if opts.KeepName {
		name = target.Name
	}

	// RemoveState drops every transition/data flow referencing target, so
	// hold the pre-removal linkage and rewrite from that snapshot.
	oldTransitions := parent.Transitions
	oldDataFlows := parent.DataFlows
	wasStart := parent.StartStateID == target.ID

	if err := model.RemoveState(parent, target.ID); err != nil {
		return err
	}
	replacement.Name = name
	if err := model.AddState(parent, replacement); err != nil {
		return err
	}

	var keptT []*model.Transition
	for _, t := range oldTransitions {
		nt := *t
		dropped := false
		if nt.FromState == target.ID {
			if newOutcome, ok := outcomeMap[nt.FromOutcome]; ok {
				nt.FromOutcome = newOutcome
			} else {
				dropped = true
			}
			nt.FromState = replacement.ID
		}
		if nt.ToState == target.ID {
			nt.ToState = replacement.ID
		}
		if dropped {
			continue
		}
		keptT = append(keptT, &nt)
	}
	parent.Transitions = keptT

	var keptD []*model.DataFlow
	for _, d := range oldDataFlows {
		nd := *d
		dropped := false
		if nd.FromState == target.ID {
			if newKey, ok := outputMap[nd.FromKey]; ok {
				nd.FromKey = newKey
			} else {
				dropped = true
			}
			nd.FromState = replacement.ID
		}
		if nd.ToState == target.ID {
			if newKey, ok := inputMap[nd.ToKey]; ok {
				nd.ToKey = newKey
			} else {
				dropped = true
			}
			nd.ToState = replacement.ID
		}
		if dropped {
			continue
		}
		keptD = append(keptD, &nd)
	}
	parent.DataFlows = keptD

	if wasStart {
		parent.StartStateID = replacement.ID
	}
	return nil
}

// matchByNameThenPosition builds oldID -> newID, first matching oldNames to
// newNames by value, then filling any remainder positionally.
func matchByNameThenPosition(oldNames, oldIDs, newNames, newIDs []string) map[string]string {
	out := map[string]string{}
	usedNew := map[int]bool{}
	newByName := map[string]int{}
	for i, n := range newNames {
		newByName[n] = i
	}
	unmatchedOld := []int{}
	for i, n := range oldNames {
		if j, ok := newByName[n]; ok && !usedNew[j] {
			out[oldIDs[i]] = newIDs[j]
			usedNew[j] = true
		} else {
			unmatchedOld = append(unmatchedOld, i)
		}
	}
	freeNew := []int{}
	for j := range newIDs {
		if !usedNew[j] {
			freeNew = append(freeNew, j)
		}
	}
	for k, i := range unmatchedOld {
		if k < len(freeNew) {
			out[oldIDs[i]] = newIDs[freeNew[k]]
		}
	}
	return out
}

func outcomeNames(os []*model.Outcome) []string {
	out := make([]string, len(os))
	for i, o := range os {
		out[i] = o.Name
	}
	return out
}

func outcomeIDs(os []*model.Outcome) []string {
	out := make([]string, len(os))
	for i, o := range os {
		out[i] = o.ID
	}
	return out
}

func portNames(ps []*model.Port) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func portIDs(ps []*model.Port) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
