package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corestate/statecraft/internal/ids"
)

func TestAddStateRejectsDuplicateID(t *testing.T) {
	parent := NewState("parent", "parent", VariantHierarchy)
	child := NewState("c1", "c1", VariantExecution)
	require.NoError(t, AddState(parent, child))

	dup := NewState("c1", "other-name", VariantExecution)
	err := AddState(parent, dup)
	require.Error(t, err)
}

func TestAddStateRejectsNonContainerParent(t *testing.T) {
	leaf := NewState("leaf", "leaf", VariantExecution)
	child := NewState("c1", "c1", VariantExecution)
	require.Error(t, AddState(leaf, child))
}

func TestRemoveStateClearsStartState(t *testing.T) {
	parent := NewState("parent", "parent", VariantHierarchy)
	child := NewState("c1", "c1", VariantExecution)
	require.NoError(t, AddState(parent, child))
	require.NoError(t, SetStartState(parent, child.ID))

	require.NoError(t, RemoveState(parent, child.ID))
	require.Empty(t, parent.StartStateID)
	_, ok := parent.Child(child.ID)
	require.False(t, ok)
}

func TestAddTransitionRequiresKnownEndpoints(t *testing.T) {
	parent := NewState("parent", "parent", VariantHierarchy)
	a := NewState("a", "a", VariantExecution)
	require.NoError(t, AddState(parent, a))

	err := AddTransition(parent, &Transition{
		ID: "t1", FromState: a.ID, FromOutcome: ids.OutcomeSuccessID, ToState: "nope",
	})
	require.Error(t, err)
}

func TestAddTransitionRejectsDuplicateFromPair(t *testing.T) {
	parent := NewState("parent", "parent", VariantHierarchy)
	a := NewState("a", "a", VariantExecution)
	b := NewState("b", "b", VariantExecution)
	require.NoError(t, AddState(parent, a))
	require.NoError(t, AddState(parent, b))

	require.NoError(t, AddTransition(parent, &Transition{
		ID: "t1", FromState: a.ID, FromOutcome: ids.OutcomeSuccessID, ToState: b.ID,
	}))
	err := AddTransition(parent, &Transition{
		ID: "t2", FromState: a.ID, FromOutcome: ids.OutcomeSuccessID, ToState: parent.ID, ToOutcome: ids.OutcomeSuccessID,
	})
	require.Error(t, err)
}

func TestChangeStateTypeToBarrierAttachesDecider(t *testing.T) {
	parent := NewState("parent", "parent", VariantHierarchy)
	child := NewState("c1", "c1", VariantHierarchy)
	require.NoError(t, AddState(parent, child))

	replacement, err := ChangeStateType(child, VariantBarrier)
	require.NoError(t, err)
	require.Equal(t, VariantBarrier, replacement.Variant)
	_, ok := replacement.Decider()
	require.True(t, ok, "moving into VariantBarrier must attach a decider")

	got, ok := parent.Child("c1")
	require.True(t, ok)
	require.Same(t, replacement, got, "parent's child map must point at the replacement")
}

func TestChangeStateTypeAwayFromBarrierDropsDecider(t *testing.T) {
	parent := NewState("parent", "parent", VariantHierarchy)
	child := NewState("c1", "c1", VariantBarrier)
	require.NoError(t, AddState(parent, child))
	_, ok := child.Decider()
	require.True(t, ok)

	replacement, err := ChangeStateType(child, VariantHierarchy)
	require.NoError(t, err)
	_, ok = replacement.Decider()
	require.False(t, ok, "moving out of VariantBarrier must drop the decider")
}

func TestChangeStateTypePreservesChildrenAcrossContainerVariants(t *testing.T) {
	parent := NewState("parent", "parent", VariantHierarchy)
	child := NewState("c1", "c1", VariantHierarchy)
	grandchild := NewState("g1", "g1", VariantExecution)
	require.NoError(t, AddState(parent, child))
	require.NoError(t, AddState(child, grandchild))

	replacement, err := ChangeStateType(child, VariantPreemptive)
	require.NoError(t, err)
	_, ok := replacement.Child("g1")
	require.True(t, ok, "container<->container type changes must preserve children")
}

func TestChangeIDFixesParentReferences(t *testing.T) {
	parent := NewState("parent", "parent", VariantHierarchy)
	a := NewState("a", "a", VariantExecution)
	b := NewState("b", "b", VariantExecution)
	require.NoError(t, AddState(parent, a))
	require.NoError(t, AddState(parent, b))
	require.NoError(t, SetStartState(parent, a.ID))
	require.NoError(t, AddTransition(parent, &Transition{
		ID: "t1", FromState: a.ID, FromOutcome: ids.OutcomeSuccessID, ToState: b.ID,
	}))

	require.NoError(t, ChangeID(a, "a-renamed"))

	require.Equal(t, "a-renamed", parent.StartStateID)
	require.Equal(t, "a-renamed", parent.Transitions[0].FromState)
	_, ok := parent.Child("a-renamed")
	require.True(t, ok)
}

func TestRenameRejectsEmptyName(t *testing.T) {
	a := NewState("a", "a", VariantExecution)
	require.Error(t, Rename(a, ""))
}
