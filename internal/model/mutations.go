package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/observer"
)

// Direction selects which port list a port mutation targets.
type Direction int

const (
	Input Direction = iota
	Output
)

var validate = validator.New()

// identifierSyntax is the shape every state/port/outcome/scoped-variable
// name must satisfy before any uniqueness invariant is even checked.
type identifierSyntax struct {
	Name string `validate:"required,max=128"`
}

func checkNameSyntax(op, name string) error {
	if err := validate.Struct(identifierSyntax{Name: name}); err != nil {
		return errs.InvalidStructure(op, fmt.Errorf("invalid name %q: %w", name, err))
	}
	return nil
}

func checkTypeSyntax(op, typeName string) error {
	if !ids.ValidTypeName(typeName) {
		return errs.InvalidStructure(op, fmt.Errorf("invalid data type %q", typeName))
	}
	return nil
}

// notifyMutation wraps a mutation in the before/after notification pair
// every mutation produces, firing on the given state's dispatcher.
func notifyMutation[T any](s *State, name string, args map[string]any, fn func() (T, error)) (T, error) {
	s.Dispatcher.Before(observer.Event{Name: name, Args: args})
	result, err := fn()
	var reported any
	if err == nil {
		reported = result
	}
	s.Dispatcher.After(observer.Event{Name: name, Args: args}, reported)
	return result, err
}

// AddState inserts child into parent's children. Fails with
// InvalidStructure if parent is not a container, child's id collides with
// parent's own id or a sibling's, or child's name syntax is invalid.
func AddState(parent, child *State) error {
	_, err := notifyMutation(parent, "add_state", map[string]any{"state_id": child.ID}, func() (struct{}, error) {
		if !parent.Variant.IsContainer() {
			return struct{}{}, errs.InvalidStructure("add_state", fmt.Errorf("state %q is not a container", parent.ID))
		}
		if err := checkNameSyntax("add_state", child.Name); err != nil {
			return struct{}{}, err
		}
		if child.ID == parent.ID {
			return struct{}{}, errs.InvalidStructure("add_state", fmt.Errorf("child id %q collides with parent id", child.ID))
		}
		if _, exists := parent.states[child.ID]; exists {
			return struct{}{}, errs.InvalidStructure("add_state", fmt.Errorf("sibling id %q already exists", child.ID))
		}
		parent.states[child.ID] = child
		parent.stateOrder = append(parent.stateOrder, child.ID)
		child.Parent = parent
		child.unsubFromParent = observer.Relay(parent.Dispatcher, child.Dispatcher, child.ID)
		parent.childRelays[child.ID] = child.unsubFromParent
		return struct{}{}, nil
	})
	return err
}

// RemoveState removes a child state from parent, cascading depth-first
// and fixing every transition/data-flow that referenced it
// by dropping them.
func RemoveState(parent *State, stateID string) error {
	_, err := notifyMutation(parent, "remove_state", map[string]any{"state_id": stateID}, func() (struct{}, error) {
		if !parent.Variant.IsContainer() {
			return struct{}{}, errs.InvalidStructure("remove_state", fmt.Errorf("state %q is not a container", parent.ID))
		}
		if stateID == ids.UniqueDeciderStateID {
			return struct{}{}, errs.InvalidStructure("remove_state", fmt.Errorf("decider state cannot be removed directly"))
		}
		child, ok := parent.states[stateID]
		if !ok {
			return struct{}{}, errs.InvalidStructure("remove_state", fmt.Errorf("no such child %q", stateID))
		}
		if unsub := parent.childRelays[stateID]; unsub != nil {
			unsub()
			delete(parent.childRelays, stateID)
		}
		delete(parent.states, stateID)
		parent.stateOrder = removeString(parent.stateOrder, stateID)
		child.Parent = nil

		parent.Transitions = filterTransitions(parent.Transitions, func(t *Transition) bool {
			return t.FromState != stateID && t.ToState != stateID
		})
		parent.DataFlows = filterDataFlows(parent.DataFlows, func(d *DataFlow) bool {
			return d.FromState != stateID && d.ToState != stateID
		})
		if parent.StartStateID == stateID {
			parent.StartStateID = ""
		}
		return struct{}{}, nil
	})
	return err
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func filterTransitions(list []*Transition, keep func(*Transition) bool) []*Transition {
	out := list[:0:0]
	for _, t := range list {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func filterDataFlows(list []*DataFlow, keep func(*DataFlow) bool) []*DataFlow {
	out := list[:0:0]
	for _, d := range list {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// resolveEndpointState returns the state a transition/data-flow endpoint id
// refers to: parent itself, or one of its children.
func resolveEndpointState(parent *State, stateID string) (*State, bool) {
	if stateID == parent.ID {
		return parent, true
	}
	return parent.Child(stateID)
}

// AddTransition validates and inserts a transition into parent: endpoints
// must exist, (from_state, from_outcome) must be unique, and to_outcome
// must name a real outcome of to_state (or of parent, when leaving).
func AddTransition(parent *State, t *Transition) error {
	_, err := notifyMutation(parent, "add_transition", map[string]any{"transition_id": t.ID}, func() (struct{}, error) {
		if !parent.Variant.IsContainer() {
			return struct{}{}, errs.InvalidStructure("add_transition", fmt.Errorf("state %q is not a container", parent.ID))
		}
		fromState, ok := resolveEndpointState(parent, t.FromState)
		if !ok {
			return struct{}{}, errs.InvalidStructure("add_transition", fmt.Errorf("from_state %q not found", t.FromState))
		}
		toState, ok := resolveEndpointState(parent, t.ToState)
		if !ok {
			return struct{}{}, errs.InvalidStructure("add_transition", fmt.Errorf("to_state %q not found", t.ToState))
		}
		_ = fromState
		for _, existing := range parent.Transitions {
			if existing.FromState == t.FromState && existing.FromOutcome == t.FromOutcome {
				return struct{}{}, errs.InvalidStructure("add_transition", fmt.Errorf("duplicate (from_state, from_outcome) = (%s, %s)", t.FromState, t.FromOutcome))
			}
		}
		// to_outcome names the exit outcome when the transition leaves the
		// container; a sibling-to-sibling transition enters the target at
		// its start and carries no to_outcome.
		if t.ToState == parent.ID || t.ToOutcome != "" {
			if _, ok := toState.Outcome(t.ToOutcome); !ok {
				return struct{}{}, errs.InvalidStructure("add_transition", fmt.Errorf("to_outcome %q not found on %q", t.ToOutcome, t.ToState))
			}
		}
		parent.Transitions = append(parent.Transitions, t)
		return struct{}{}, nil
	})
	return err
}

// RemoveTransition deletes a transition by id.
func RemoveTransition(parent *State, transitionID string) error {
	_, err := notifyMutation(parent, "remove_transition", map[string]any{"transition_id": transitionID}, func() (struct{}, error) {
		before := len(parent.Transitions)
		parent.Transitions = filterTransitions(parent.Transitions, func(t *Transition) bool { return t.ID != transitionID })
		if len(parent.Transitions) == before {
			return struct{}{}, errs.InvalidStructure("remove_transition", fmt.Errorf("no such transition %q", transitionID))
		}
		return struct{}{}, nil
	})
	return err
}

// resolveKey reports whether key names a port or scoped variable owned by
// stateID within parent.
func resolveKey(parent *State, stateID, key string) bool {
	state, ok := resolveEndpointState(parent, stateID)
	if !ok {
		return false
	}
	if state == parent {
		if _, ok := state.InputPort(key); ok {
			return true
		}
		if _, ok := state.OutputPort(key); ok {
			return true
		}
		if _, ok := state.ScopedVariable(key); ok {
			return true
		}
		return false
	}
	if _, ok := state.InputPort(key); ok {
		return true
	}
	if _, ok := state.OutputPort(key); ok {
		return true
	}
	return false
}

// AddDataFlow validates and inserts a data flow into parent: both endpoints
// must resolve to a live port/scoped-variable, and (to_state, to_key) must
// be unique.
func AddDataFlow(parent *State, d *DataFlow) error {
	_, err := notifyMutation(parent, "add_data_flow", map[string]any{"data_flow_id": d.ID}, func() (struct{}, error) {
		if !parent.Variant.IsContainer() {
			return struct{}{}, errs.InvalidStructure("add_data_flow", fmt.Errorf("state %q is not a container", parent.ID))
		}
		if !resolveKey(parent, d.FromState, d.FromKey) {
			return struct{}{}, errs.InvalidStructure("add_data_flow", fmt.Errorf("source %s.%s not found", d.FromState, d.FromKey))
		}
		if !resolveKey(parent, d.ToState, d.ToKey) {
			return struct{}{}, errs.InvalidStructure("add_data_flow", fmt.Errorf("destination %s.%s not found", d.ToState, d.ToKey))
		}
		for _, existing := range parent.DataFlows {
			if existing.ToState == d.ToState && existing.ToKey == d.ToKey {
				return struct{}{}, errs.InvalidStructure("add_data_flow", fmt.Errorf("destination %s.%s already driven", d.ToState, d.ToKey))
			}
		}
		parent.DataFlows = append(parent.DataFlows, d)
		return struct{}{}, nil
	})
	return err
}

// RemoveDataFlow deletes a data flow by id.
func RemoveDataFlow(parent *State, dataFlowID string) error {
	_, err := notifyMutation(parent, "remove_data_flow", map[string]any{"data_flow_id": dataFlowID}, func() (struct{}, error) {
		before := len(parent.DataFlows)
		parent.DataFlows = filterDataFlows(parent.DataFlows, func(d *DataFlow) bool { return d.ID != dataFlowID })
		if len(parent.DataFlows) == before {
			return struct{}{}, errs.InvalidStructure("remove_data_flow", fmt.Errorf("no such data flow %q", dataFlowID))
		}
		return struct{}{}, nil
	})
	return err
}

// AddPort appends a port to state's input or output list:
// names must be unique per state per direction and the declared type must
// be a recognised type name.
func AddPort(state *State, port *Port, dir Direction) error {
	_, err := notifyMutation(state, "add_port", map[string]any{"port_id": port.ID, "direction": dir}, func() (struct{}, error) {
		if err := checkNameSyntax("add_port", port.Name); err != nil {
			return struct{}{}, err
		}
		if err := checkTypeSyntax("add_port", port.DataType); err != nil {
			return struct{}{}, err
		}
		list := state.InputPorts
		if dir == Output {
			list = state.OutputPorts
		}
		for _, p := range list {
			if p.Name == port.Name {
				return struct{}{}, errs.InvalidStructure("add_port", fmt.Errorf("port name %q already used", port.Name))
			}
		}
		if dir == Output {
			state.OutputPorts = append(state.OutputPorts, port)
		} else {
			state.InputPorts = append(state.InputPorts, port)
		}
		return struct{}{}, nil
	})
	return err
}

// RemovePort deletes a port by id, also dropping any data flow that
// referenced it within the owning container (if any).
func RemovePort(state *State, portID string, dir Direction) error {
	_, err := notifyMutation(state, "remove_port", map[string]any{"port_id": portID, "direction": dir}, func() (struct{}, error) {
		var before int
		if dir == Output {
			before = len(state.OutputPorts)
			state.OutputPorts = filterPorts(state.OutputPorts, func(p *Port) bool { return p.ID != portID })
			if len(state.OutputPorts) == before {
				return struct{}{}, errs.InvalidStructure("remove_port", fmt.Errorf("no such output port %q", portID))
			}
		} else {
			before = len(state.InputPorts)
			state.InputPorts = filterPorts(state.InputPorts, func(p *Port) bool { return p.ID != portID })
			if len(state.InputPorts) == before {
				return struct{}{}, errs.InvalidStructure("remove_port", fmt.Errorf("no such input port %q", portID))
			}
		}
		if state.Parent != nil {
			state.Parent.DataFlows = filterDataFlows(state.Parent.DataFlows, func(d *DataFlow) bool {
				return !((d.FromState == state.ID && d.FromKey == portID) || (d.ToState == state.ID && d.ToKey == portID))
			})
		}
		return struct{}{}, nil
	})
	return err
}

func filterPorts(list []*Port, keep func(*Port) bool) []*Port {
	out := list[:0:0]
	for _, p := range list {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// Rename changes a state's display name; uniqueness among siblings is the
// caller's (container's) responsibility when the UI requires it, mirroring
// the source's treatment of name as cosmetic rather than identifying.
func Rename(state *State, newName string) error {
	_, err := notifyMutation(state, "rename", map[string]any{"old_name": state.Name, "new_name": newName}, func() (struct{}, error) {
		if err := checkNameSyntax("rename", newName); err != nil {
			return struct{}{}, err
		}
		state.Name = newName
		return struct{}{}, nil
	})
	return err
}

// SetStartState sets the child the hierarchy/barrier/preemptive container
// begins execution with.
func SetStartState(parent *State, stateID string) error {
	_, err := notifyMutation(parent, "set_start_state", map[string]any{"state_id": stateID}, func() (struct{}, error) {
		if !parent.Variant.IsContainer() {
			return struct{}{}, errs.InvalidStructure("set_start_state", fmt.Errorf("state %q is not a container", parent.ID))
		}
		if stateID != "" {
			if _, ok := parent.states[stateID]; !ok {
				return struct{}{}, errs.InvalidStructure("set_start_state", fmt.Errorf("no such child %q", stateID))
			}
		}
		parent.StartStateID = stateID
		return struct{}{}, nil
	})
	return err
}

// ChangeStateType rebuilds state as newVariant in place, preserving every
// field shared across variants (id, name, ports, outcomes, parent linkage)
// and discarding or creating the fields particular to the old/new variant.
// A container's children, transitions and data flows survive a
// hierarchy<->barrier<->preemptive change; an execution state gaining container-hood starts empty; a
// container losing container-hood drops its children, transitions, data
// flows and scoped variables outright. Moving into VariantBarrier attaches
// a fresh decider; moving out of it drops the old one. The parent's child
// map is updated to point at the replacement and a single state_change
// notification with a type_change cause fires on the parent.
func ChangeStateType(state *State, newVariant Variant) (*State, error) {
	if state.Variant == newVariant {
		return state, nil
	}
	parent := state.Parent
	var dispatcher = state.Dispatcher
	if parent != nil {
		dispatcher = parent.Dispatcher
	}
	args := map[string]any{"state_id": state.ID, "old_type": state.Variant, "new_type": newVariant, "cause": "type_change"}
	dispatcher.Before(observer.Event{Name: "state_change", Args: args})

	replacement := &State{
		ID:          state.ID,
		Name:        state.Name,
		InputPorts:  state.InputPorts,
		OutputPorts: state.OutputPorts,
		Outcomes:    state.Outcomes,
		Parent:      state.Parent,
		Variant:     newVariant,
		Dispatcher:  state.Dispatcher,
		Script:      state.Script,
		LibraryPath: state.LibraryPath,
	}

	if newVariant.IsContainer() {
		replacement.states = map[string]*State{}
		replacement.childRelays = map[string]func(){}
		if state.Variant.IsContainer() {
			// carry over children/transitions/data flows/scoped vars as-is
			for id, child := range state.states {
				if id == ids.UniqueDeciderStateID {
					continue // decider is recreated below if still relevant
				}
				replacement.states[id] = child
				child.Parent = replacement
				replacement.childRelays[id] = observer.Relay(replacement.Dispatcher, child.Dispatcher, id)
			}
			replacement.stateOrder = filterStrings(state.stateOrder, func(id string) bool { return id != ids.UniqueDeciderStateID })
			replacement.Transitions = state.Transitions
			replacement.DataFlows = state.DataFlows
			replacement.ScopedVars = state.ScopedVars
			replacement.StartStateID = state.StartStateID
		}
		if newVariant == VariantBarrier {
			replacement.attachDecider()
		}
	}

	var err error
	if parent != nil {
		if _, ok := parent.states[state.ID]; !ok {
			err = errs.InvalidStructure("change_state_type", fmt.Errorf("state %q is no longer a child of its parent", state.ID))
		} else {
			if unsub := parent.childRelays[state.ID]; unsub != nil {
				unsub()
			}
			parent.states[state.ID] = replacement
			parent.childRelays[state.ID] = observer.Relay(parent.Dispatcher, replacement.Dispatcher, replacement.ID)
		}
	}

	var reported any
	if err == nil {
		reported = replacement
	}
	dispatcher.After(observer.Event{Name: "state_change", Args: args}, reported)
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

func filterStrings(list []string, keep func(string) bool) []string {
	out := list[:0:0]
	for _, s := range list {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// ChangeID renames a state's identifier in place, fixing every transition
// and data flow of its parent that referenced the old id.
func ChangeID(state *State, newID string) error {
	if state.Parent == nil {
		return errs.InvalidStructure("change_id", fmt.Errorf("root state id is not rebindable in place"))
	}
	parent := state.Parent
	_, err := notifyMutation(parent, "change_id", map[string]any{"old_id": state.ID, "new_id": newID}, func() (struct{}, error) {
		if newID == parent.ID {
			return struct{}{}, errs.InvalidStructure("change_id", fmt.Errorf("new id %q collides with parent id", newID))
		}
		if _, exists := parent.states[newID]; exists {
			return struct{}{}, errs.InvalidStructure("change_id", fmt.Errorf("sibling id %q already exists", newID))
		}
		oldID := state.ID
		delete(parent.states, oldID)
		parent.states[newID] = state
		for i, id := range parent.stateOrder {
			if id == oldID {
				parent.stateOrder[i] = newID
			}
		}
		if unsub, ok := parent.childRelays[oldID]; ok {
			delete(parent.childRelays, oldID)
			parent.childRelays[newID] = unsub
		}
		state.ID = newID
		for _, t := range parent.Transitions {
			if t.FromState == oldID {
				t.FromState = newID
			}
			if t.ToState == oldID {
				t.ToState = newID
			}
		}
		for _, d := range parent.DataFlows {
			if d.FromState == oldID {
				d.FromState = newID
			}
			if d.ToState == oldID {
				d.ToState = newID
			}
		}
		if parent.StartStateID == oldID {
			parent.StartStateID = newID
		}
		return struct{}{}, nil
	})
	return err
}
