// Package model implements the state tree & elements:
// states, ports, outcomes, transitions, data flows, and scoped variables,
// plus the structural mutations that keep the tree's invariants intact.
package model

import (
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/observer"
	"github.com/corestate/statecraft/internal/scopeddata"
)

// Variant is the tagged kind of a State.
type Variant string

const (
	VariantExecution  Variant = "execution"
	VariantHierarchy  Variant = "hierarchy"
	VariantBarrier    Variant = "barrier_concurrency"
	VariantPreemptive Variant = "preemptive_concurrency"
	// VariantLibrary is a fifth variant: a state
	// whose implementation is another persisted state machine, loaded on
	// demand and delegated to entirely.
	VariantLibrary Variant = "library"
)

// IsContainer reports whether v owns child states.
func (v Variant) IsContainer() bool {
	switch v {
	case VariantHierarchy, VariantBarrier, VariantPreemptive:
		return true
	default:
		return false
	}
}

// Port is a typed data port.
type Port struct {
	ID       string
	Name     string
	DataType string
	Default  scopeddata.Value
}

// Outcome is a labelled exit edge.
type Outcome struct {
	ID   string
	Name string
}

// ReservedOutcomes returns the three outcomes every state always carries:
// success (id "success"), aborted (id "-1"), preempted (id "-2").
func ReservedOutcomes() []*Outcome {
	return []*Outcome{
		{ID: ids.OutcomeSuccessID, Name: ids.OutcomeSuccessNm},
		{ID: ids.OutcomeAbortedID, Name: ids.OutcomeAbortedNm},
		{ID: ids.OutcomePreemptID, Name: ids.OutcomePreemptNm},
	}
}

// Transition links a (state, outcome) pair to another state or to a parent
// outcome. FromOutcome is empty only for the start-state
// linkage case ("from_outcome is None").
type Transition struct {
	ID          string
	FromState   string
	FromOutcome string
	ToState     string
	ToOutcome   string
}

// DataFlow routes a value from a port/scoped-variable to another within the
// same container.
type DataFlow struct {
	ID        string
	FromState string
	FromKey   string
	ToState   string
	ToKey     string
}

// ScopedVariable is a named, typed cell owned by a container, live for one
// execution of that container.
type ScopedVariable struct {
	ID       string
	Name     string
	DataType string
	Default  scopeddata.Value
}

// Script is the user code body of an Execution state.
// Outputs is keyed by output port id; Outcome is an outcome id.
type Script interface {
	Run(inputs map[string]scopeddata.Value) (outputs map[string]scopeddata.Value, outcome string, err error)
}

// ScriptFunc adapts a plain function to Script.
type ScriptFunc func(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error)

func (f ScriptFunc) Run(inputs map[string]scopeddata.Value) (map[string]scopeddata.Value, string, error) {
	return f(inputs)
}

// State is a node of the tree. Every state has the shared
// fields; the variant-specific fields below are meaningful only for the
// matching Variant and are left zero otherwise.
type State struct {
	ID          string
	Name        string
	InputPorts  []*Port
	OutputPorts []*Port
	Outcomes    []*Outcome
	Parent      *State // weak back-reference: lookup only, never ownership
	Variant     Variant

	Dispatcher *observer.Dispatcher

	// Execution variant.
	Script Script

	// Container variants (Hierarchy, Barrier, Preemptive).
	states       map[string]*State
	stateOrder   []string // insertion order, for deterministic iteration
	Transitions  []*Transition
	DataFlows    []*DataFlow
	ScopedVars   []*ScopedVariable
	StartStateID string // empty means unset

	childRelays map[string]func() // child id -> unsubscribe, for Relay cleanup

	// Library variant.
	LibraryPath string // path passed to storage.Load to resolve the inner tree

	unsubFromParent func()
}

// NewState constructs a bare state of the given variant with the reserved
// outcomes already attached.
func NewState(id, name string, variant Variant) *State {
	s := &State{
		ID:         id,
		Name:       name,
		Variant:    variant,
		Outcomes:   ReservedOutcomes(),
		Dispatcher: observer.NewDispatcher(),
	}
	if variant.IsContainer() {
		s.states = map[string]*State{}
		s.childRelays = map[string]func(){}
		if variant == VariantBarrier {
			s.attachDecider()
		}
	}
	return s
}

func (s *State) attachDecider() {
	decider := NewState(ids.UniqueDeciderStateID, "decider", VariantExecution)
	s.states[decider.ID] = decider
	s.stateOrder = append(s.stateOrder, decider.ID)
	decider.Parent = s
}

// Children returns the container's child states in insertion order. Returns
// nil for non-container variants.
func (s *State) Children() []*State {
	if s == nil || s.states == nil {
		return nil
	}
	out := make([]*State, 0, len(s.stateOrder))
	for _, id := range s.stateOrder {
		if c := s.states[id]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Child looks up a direct child by id.
func (s *State) Child(id string) (*State, bool) {
	if s == nil || s.states == nil {
		return nil, false
	}
	c, ok := s.states[id]
	return c, ok
}

// Decider returns the implicit decider child of a barrier-concurrency
// state.
func (s *State) Decider() (*State, bool) {
	if s == nil || s.Variant != VariantBarrier {
		return nil, false
	}
	return s.Child(ids.UniqueDeciderStateID)
}

// Outcome looks up one of the state's outcomes by id.
func (s *State) Outcome(id string) (*Outcome, bool) {
	for _, o := range s.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return nil, false
}

// InputPort / OutputPort look up a port by id.
func (s *State) InputPort(id string) (*Port, bool) {
	for _, p := range s.InputPorts {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (s *State) OutputPort(id string) (*Port, bool) {
	for _, p := range s.OutputPorts {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// ScopedVariable looks up a scoped variable by id.
func (s *State) ScopedVariable(id string) (*ScopedVariable, bool) {
	for _, v := range s.ScopedVars {
		if v.ID == id {
			return v, true
		}
	}
	return nil, false
}

// StateMachine owns a root state exclusively.
type StateMachine struct {
	ID             string
	Root           *State
	FileSystemPath string
	MarkedDirty    bool
}

// NewStateMachine wraps root as the sole owned root state of a new machine.
func NewStateMachine(id string, root *State) *StateMachine {
	return &StateMachine{ID: id, Root: root}
}
