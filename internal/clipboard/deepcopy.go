package clipboard

import (
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
)

// cloneState returns a detached deep copy of s (and, recursively, its
// children): same ids, same ports/outcomes/transitions/data flows/scoped
// variables, a fresh Dispatcher, and Parent left nil.
func cloneState(s *model.State) *model.State {
	clone := model.NewState(s.ID, s.Name, s.Variant)
	clone.InputPorts = clonePorts(s.InputPorts)
	clone.OutputPorts = clonePorts(s.OutputPorts)
	clone.Outcomes = cloneOutcomes(s.Outcomes)
	clone.Script = s.Script
	clone.LibraryPath = s.LibraryPath

	if s.Variant.IsContainer() {
		clone.Transitions = cloneTransitions(s.Transitions)
		clone.DataFlows = cloneDataFlows(s.DataFlows)
		clone.ScopedVars = cloneScopedVars(s.ScopedVars)
		clone.StartStateID = s.StartStateID
		for _, child := range s.Children() {
			if child.ID == ids.UniqueDeciderStateID {
				// NewState already attached a fresh decider; carry the
				// original's authored body and ports onto it.
				if d, ok := clone.Decider(); ok {
					d.Name = child.Name
					d.InputPorts = clonePorts(child.InputPorts)
					d.OutputPorts = clonePorts(child.OutputPorts)
					d.Outcomes = cloneOutcomes(child.Outcomes)
					d.Script = child.Script
				}
				continue
			}
			_ = model.AddState(clone, cloneState(child))
		}
	}
	return clone
}

func clonePorts(in []*model.Port) []*model.Port {
	out := make([]*model.Port, len(in))
	for i, p := range in {
		cp := *p
		out[i] = &cp
	}
	return out
}

func cloneOutcomes(in []*model.Outcome) []*model.Outcome {
	out := make([]*model.Outcome, len(in))
	for i, o := range in {
		cp := *o
		out[i] = &cp
	}
	return out
}

func cloneTransitions(in []*model.Transition) []*model.Transition {
	out := make([]*model.Transition, len(in))
	for i, t := range in {
		cp := *t
		out[i] = &cp
	}
	return out
}

func cloneDataFlows(in []*model.DataFlow) []*model.DataFlow {
	out := make([]*model.DataFlow, len(in))
	for i, d := range in {
		cp := *d
		out[i] = &cp
	}
	return out
}

func cloneScopedVars(in []*model.ScopedVariable) []*model.ScopedVariable {
	out := make([]*model.ScopedVariable, len(in))
	for i, v := range in {
		cp := *v
		out[i] = &cp
	}
	return out
}
