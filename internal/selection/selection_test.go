package selection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corestate/statecraft/internal/model"
)

func buildTree() (*model.State, *model.State, *model.State, *model.State) {
	root := model.NewState("root", "root", model.VariantHierarchy)
	a := model.NewState("a", "a", model.VariantExecution)
	b := model.NewState("b", "b", model.VariantExecution)
	_ = model.AddState(root, a)
	_ = model.AddState(root, b)
	return root, a, b, nil
}

func TestReduceToOneParentDropsDescendantOfSelectedAncestor(t *testing.T) {
	root := model.NewState("root", "root", model.VariantHierarchy)
	child := model.NewState("child", "child", model.VariantHierarchy)
	grandchild := model.NewState("gc", "gc", model.VariantExecution)
	_ = model.AddState(root, child)
	_ = model.AddState(child, grandchild)

	sel := New()
	sel.Add(KindState, child.ID)
	sel.Add(KindState, grandchild.ID)

	ReduceToOneParent(sel, root)

	require.True(t, sel.Contains(KindState, child.ID))
	require.False(t, sel.Contains(KindState, grandchild.ID))
}

func TestReduceToOneParentKeepsLargestSiblingGroup(t *testing.T) {
	root, a, b, _ := buildTree()
	other := model.NewState("other-parent", "other-parent", model.VariantHierarchy)
	stray := model.NewState("stray", "stray", model.VariantExecution)
	_ = model.AddState(root, other)
	_ = model.AddState(other, stray)

	sel := New()
	sel.Add(KindState, a.ID)
	sel.Add(KindState, b.ID)
	sel.Add(KindState, stray.ID)

	ReduceToOneParent(sel, root)

	require.True(t, sel.Contains(KindState, a.ID))
	require.True(t, sel.Contains(KindState, b.ID))
	require.False(t, sel.Contains(KindState, stray.ID), "smaller sibling group must be dropped")
}

func TestSmartExtendAddsTransitionWhenBothEndpointsCovered(t *testing.T) {
	root, a, b, _ := buildTree()
	_ = model.AddTransition(root, &model.Transition{ID: "t1", FromState: a.ID, FromOutcome: "success", ToState: b.ID})

	sel := New()
	sel.Add(KindState, a.ID)
	sel.Add(KindState, b.ID)

	SmartExtend(sel, root)

	require.True(t, sel.Contains(KindTransition, "t1"))
}

func TestSmartExtendDropsTransitionWhenEndpointMissing(t *testing.T) {
	root, a, b, _ := buildTree()
	_ = model.AddTransition(root, &model.Transition{ID: "t1", FromState: a.ID, FromOutcome: "success", ToState: b.ID})

	sel := New()
	sel.Add(KindState, a.ID)
	sel.Add(KindTransition, "t1") // pre-selected, but b isn't covered

	SmartExtend(sel, root)

	require.False(t, sel.Contains(KindTransition, "t1"))
}

func TestIndexStatesCoversWholeSubtree(t *testing.T) {
	root, a, b, _ := buildTree()
	idx := IndexStates(root)
	require.Contains(t, idx, root.ID)
	require.Contains(t, idx, a.ID)
	require.Contains(t, idx, b.ID)
}
