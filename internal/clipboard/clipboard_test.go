package clipboard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/selection"
)

func buildCopyTree() (root, a, b *model.State) {
	root = model.NewState("root", "root", model.VariantHierarchy)
	a = model.NewState("a", "a", model.VariantExecution)
	b = model.NewState("b", "b", model.VariantExecution)
	_ = model.AddState(root, a)
	_ = model.AddState(root, b)
	_ = model.AddTransition(root, &model.Transition{
		ID: "t1", FromState: a.ID, FromOutcome: ids.OutcomeSuccessID, ToState: b.ID,
	})
	return root, a, b
}

func TestCopyDeepCopiesAndLeavesLiveTreeIntact(t *testing.T) {
	root, a, b := buildCopyTree()

	sel := selection.New()
	sel.Add(selection.KindState, a.ID)
	sel.Add(selection.KindState, b.ID)

	c := New()
	require.NoError(t, c.Copy(root, sel))
	require.False(t, c.Empty())
	require.Len(t, c.states, 2)
	require.Len(t, c.transitions, 1, "smart-extend must have pulled in t1")

	// The live tree is untouched.
	_, ok := root.Child(a.ID)
	require.True(t, ok)
	_, ok = root.Child(b.ID)
	require.True(t, ok)
	require.Len(t, root.Transitions, 1)

	// Mutating a clipboard-held clone must not affect the live state.
	c.states[0].Name = "mutated"
	require.NotEqual(t, "mutated", a.Name)
}

func TestCutRemovesFromLiveTree(t *testing.T) {
	root, a, b := buildCopyTree()

	sel := selection.New()
	sel.Add(selection.KindState, a.ID)
	sel.Add(selection.KindState, b.ID)

	c := New()
	require.NoError(t, c.Cut(root, sel))

	_, ok := root.Child(a.ID)
	require.False(t, ok)
	_, ok = root.Child(b.ID)
	require.False(t, ok)
	require.Empty(t, root.Transitions, "the cut transition between a and b must be gone too")
}

func TestPasteInsertsFreshStatesUnderTarget(t *testing.T) {
	root, a, b := buildCopyTree()
	target := model.NewState("target", "target", model.VariantHierarchy)
	_ = model.AddState(root, target)

	sel := selection.New()
	sel.Add(selection.KindState, a.ID)
	sel.Add(selection.KindState, b.ID)

	c := New()
	require.NoError(t, c.Copy(root, sel))
	require.NoError(t, c.Paste(target))

	require.Len(t, target.Children(), 2)
	require.Len(t, target.Transitions, 1, "the enclosed transition must be rewritten into the paste target")

	// source states must still be present and unaffected under root.
	_, ok := root.Child(a.ID)
	require.True(t, ok)
}

func TestPasteRemapsCollidingStateID(t *testing.T) {
	root, a, _ := buildCopyTree()

	sel := selection.New()
	sel.Add(selection.KindState, a.ID)

	c := New()
	require.NoError(t, c.Copy(root, sel))

	// paste back into root itself: a's id collides with the live sibling "a".
	require.NoError(t, c.Paste(root))

	var pastedID string
	for _, child := range root.Children() {
		if child.ID != a.ID && child.ID != "b" {
			pastedID = child.ID
		}
	}
	require.NotEmpty(t, pastedID, "a remapped copy of a must have been inserted with a fresh id")
	require.NotEqual(t, a.ID, pastedID)
}

func TestPasteDropsLinkageWithEndpointOutsidePastedSet(t *testing.T) {
	root, a, _ := buildCopyTree()
	target := model.NewState("target", "target", model.VariantHierarchy)
	_ = model.AddState(root, target)

	sel := selection.New()
	sel.Add(selection.KindState, a.ID) // t1 (a->b) not smart-extended in since b isn't selected... but SmartExtend only adds in-selection transitions

	c := New()
	require.NoError(t, c.Copy(root, sel))
	require.Empty(t, c.transitions, "transition to the unselected sibling b must not have been copied")

	require.NoError(t, c.Paste(target))
	require.Empty(t, target.Transitions)
}

func TestGroupMovesChildrenAndSplitsDanglingTransition(t *testing.T) {
	root, a, b := buildCopyTree()
	outside := model.NewState("outside", "outside", model.VariantExecution)
	_ = model.AddState(root, outside)
	_ = model.AddTransition(root, &model.Transition{
		ID: "t2", FromState: b.ID, FromOutcome: ids.OutcomeSuccessID, ToState: outside.ID,
	})

	sel := selection.New()
	sel.Add(selection.KindState, a.ID)
	sel.Add(selection.KindState, b.ID)

	group, err := Group(root, sel)
	require.NoError(t, err)

	_, ok := root.Child(a.ID)
	require.False(t, ok, "a must have moved into the new group")
	_, ok = group.Child(a.ID)
	require.True(t, ok)
	_, ok = group.Child(b.ID)
	require.True(t, ok)

	require.Greater(t, len(group.Outcomes), len(model.ReservedOutcomes()), "dangling transition out of b must have created an exit outcome on group beyond the reserved three")
	require.NotEmpty(t, root.Transitions, "a transition from group back out to outside must remain on the parent")
}

func TestUngroupRestoresChildrenToParent(t *testing.T) {
	root, a, b := buildCopyTree()

	sel := selection.New()
	sel.Add(selection.KindState, a.ID)
	sel.Add(selection.KindState, b.ID)

	group, err := Group(root, sel)
	require.NoError(t, err)

	require.NoError(t, Ungroup(group, MetaData{"x": 1}))

	_, ok := root.Child(a.ID)
	require.True(t, ok, "a must be back under root after ungroup")
	_, ok = root.Child(b.ID)
	require.True(t, ok)
	_, ok = root.Child(group.ID)
	require.False(t, ok, "the group container itself must be gone")
}

func TestSubstituteByNameMatchesOutcomesAndRewritesLinkage(t *testing.T) {
	root := model.NewState("root", "root", model.VariantHierarchy)
	target := model.NewState("target", "target", model.VariantExecution)
	other := model.NewState("other", "other", model.VariantExecution)
	_ = model.AddState(root, target)
	_ = model.AddState(root, other)
	_ = model.AddTransition(root, &model.Transition{
		ID: "t1", FromState: target.ID, FromOutcome: ids.OutcomeSuccessID, ToState: other.ID,
	})
	root.StartStateID = target.ID

	replacement := model.NewState("replacement", "replacement", model.VariantExecution)

	require.NoError(t, Substitute(target, replacement, SubstituteOptions{}))

	_, ok := root.Child("target")
	require.False(t, ok)
	got, ok := root.Child("replacement")
	require.True(t, ok)
	require.Same(t, replacement, got)
	require.Equal(t, "replacement", root.StartStateID, "start state must follow the substitution")

	require.Len(t, root.Transitions, 1)
	require.Equal(t, "replacement", root.Transitions[0].FromState)
	require.Equal(t, ids.OutcomeSuccessID, root.Transitions[0].FromOutcome, "success outcome matches by name across both states")
}

func TestSubstituteKeepNamePreservesOldName(t *testing.T) {
	root := model.NewState("root", "root", model.VariantHierarchy)
	target := model.NewState("target", "keep-me", model.VariantExecution)
	_ = model.AddState(root, target)

	replacement := model.NewState("replacement", "new-name", model.VariantExecution)

	require.NoError(t, Substitute(target, replacement, SubstituteOptions{KeepName: true}))

	got, ok := root.Child("replacement")
	require.True(t, ok)
	require.Equal(t, "keep-me", got.Name)
}
