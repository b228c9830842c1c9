package treeview

import (
	"fmt"
	"sort"

	"github.com/m1gwings/treedrawer/tree"

	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/model"
)

// RenderStateTree draws the live hierarchy under root as ASCII art for
// smctl inspect's structural view.
func RenderStateTree(root *model.State) string {
	if root == nil {
		return "(empty)"
	}
	return buildStateNode(root).String()
}

func buildStateNode(s *model.State) *tree.Tree {
	label := fmt.Sprintf("%s [%s]", s.Name, variantLabel(s.Variant))
	node := tree.NewTree(tree.NodeString(label))
	children := s.Children()
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	for _, c := range children {
		addChild(node, buildStateNode(c))
	}
	return node
}

func addChild(parent *tree.Tree, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		addChild(newChild, grandchild)
	}
}

func variantLabel(v model.Variant) string {
	switch v {
	case model.VariantExecution:
		return "execution"
	case model.VariantHierarchy:
		return "hierarchy"
	case model.VariantBarrier:
		return "barrier"
	case model.VariantPreemptive:
		return "preemptive"
	case model.VariantLibrary:
		return "library"
	default:
		return "unknown"
	}
}

// RenderRunTree draws one run's collapsed execution as a tree of Records
// following CollapsedHierarchy/CollapsedConcurrent, for the summary smctl
// run prints after an in-process run.
func RenderRunTree(c *history.Collapse, runID string) string {
	if c == nil || len(c.Records) == 0 {
		return "(no history)"
	}
	var root *history.Record
	for _, r := range c.Records {
		if r.RunID == runID {
			root = r
			break
		}
	}
	if root == nil {
		return "(run not found)"
	}
	return buildRecordNode(c, root).String()
}

func buildRecordNode(c *history.Collapse, r *history.Record) *tree.Tree {
	label := fmt.Sprintf("%s (%s) -> %s", r.StateName, r.StateType, outcomeOrPending(r.OutcomeName))
	node := tree.NewTree(tree.NodeString(label))
	if childID, ok := c.CollapsedHierarchy[r.ID]; ok {
		if child := findRecord(c, childID); child != nil {
			addChild(node, buildRecordNode(c, child))
		}
	}
	for _, childID := range c.CollapsedConcurrent[r.ID] {
		if child := findRecord(c, childID); child != nil {
			addChild(node, buildRecordNode(c, child))
		}
	}
	return node
}

func findRecord(c *history.Collapse, id string) *history.Record {
	for _, r := range c.Records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func outcomeOrPending(name string) string {
	if name == "" {
		return "(pending)"
	}
	return name
}
