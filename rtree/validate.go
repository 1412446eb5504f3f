package rtree

import (
	"fmt"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/handle"
)

// Validate walks the whole tree checking spec §8's quantified structural
// invariants: every non-root node's entry count is within
// [MinBranchFactor, MaxBranchFactor], every level is uniform across
// siblings, every branch's stored rectangle exactly equals the union of
// its children, and every child's Parent handle points back at its
// actual parent. Returns the first violation found, or nil if none.
func (t *Tree) Validate() error {
	if t.Root.IsNull() {
		return nil
	}
	return t.validateNode(t.Root, handle.Null, true, -1)
}

func (t *Tree) validateNode(h, expectParent handle.Handle, isRoot bool, expectLevel int) error {
	node, err := t.fetchNode(h)
	if err != nil {
		return err
	}
	defer node.Release(false)
	n := node.Object()

	if !n.Parent.Equal(expectParent) {
		return fmt.Errorf("rtree: node %+v has parent %+v, want %+v", h, n.Parent, expectParent)
	}
	if expectLevel >= 0 && n.Level != expectLevel {
		return fmt.Errorf("rtree: node %+v at level %d, sibling expected level %d", h, n.Level, expectLevel)
	}

	count := n.Count()
	if !isRoot {
		if count < t.cfg.MinBranchFactor {
			return fmt.Errorf("rtree: node %+v has %d entries, below minimum %d", h, count, t.cfg.MinBranchFactor)
		}
	}
	if count > t.cfg.MaxBranchFactor {
		return fmt.Errorf("rtree: node %+v has %d entries, exceeds capacity %d", h, count, t.cfg.MaxBranchFactor)
	}

	if n.IsLeaf() {
		return nil
	}

	childLevel := -1
	for _, e := range n.Branches {
		if err := t.validateNode(e.Child, n.Self, false, childLevel); err != nil {
			return err
		}
		child, err := t.fetchNode(e.Child)
		if err != nil {
			return err
		}
		childLevel = child.Object().Level
		gotRect := child.Object().Rect()
		relErr := child.Release(false)
		if relErr != nil {
			return relErr
		}
		if !rectEqual(e.Rect, gotRect) {
			return fmt.Errorf("rtree: node %+v entry for child %+v has rect %v, want %v", h, e.Child, e.Rect, gotRect)
		}
	}
	return nil
}

func rectEqual(a, b geom.Rect) bool {
	return ptEqual(a.Min, b.Min) && ptEqual(a.Max, b.Max)
}
