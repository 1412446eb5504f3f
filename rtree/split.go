package rtree

import (
	"fmt"
	"sort"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/handle"
)

// split implements the R*-tree split algorithm of spec §4.4.2 step 4:
// choose the axis minimising the sum of perimeters across all valid
// distribution points, choose the distribution index on that axis
// minimising overlap-area (area as tie-break), divide node's entries
// accordingly, write both halves, and propagate the new sibling upward —
// growing a new root if node was the root.
//
// Grounded on the teacher's bplustree/split_leaf.go and split_internal.go
// for the "write both halves, insert separator into parent, recurse on
// overflow" shape; the axis/overlap selection itself has no teacher
// analogue and follows the R*-tree literature's canonical algorithm.
func (t *Tree) split(node *handle.PinnedPtr[Node], ancestors []*handle.PinnedPtr[Node]) error {
	n := node.Object()

	if n.IsLeaf() {
		return t.splitLeaf(node, ancestors)
	}
	return t.splitBranch(node, ancestors)
}

func (t *Tree) splitLeaf(node *handle.PinnedPtr[Node], ancestors []*handle.PinnedPtr[Node]) error {
	n := node.Object()
	entries := n.Leaves

	axis, idx := chooseSplitAxisLeaf(entries, t.cfg.MinBranchFactor)
	group1, group2 := distributeLeaf(entries, axis, idx)

	sibling, err := t.newNode(0)
	if err != nil {
		return err
	}

	n.Leaves = group1
	sibling.Object().Leaves = group2
	sibling.Object().Parent = n.Parent

	if err := t.writeNode(node); err != nil {
		_ = sibling.Release(false)
		return err
	}
	if err := t.writeNode(sibling); err != nil {
		_ = sibling.Release(false)
		return err
	}

	return t.propagateSplit(node, sibling, ancestors)
}

func (t *Tree) splitBranch(node *handle.PinnedPtr[Node], ancestors []*handle.PinnedPtr[Node]) error {
	n := node.Object()
	entries := n.Branches

	axis, idx := chooseSplitAxisBranch(entries, t.cfg.MinBranchFactor)
	group1, group2 := distributeBranch(entries, axis, idx)

	sibling, err := t.newNode(n.Level)
	if err != nil {
		return err
	}

	n.Branches = group1
	sibling.Object().Branches = group2
	sibling.Object().Parent = n.Parent

	if err := reparentChildren(t, sibling.Object()); err != nil {
		_ = sibling.Release(false)
		return err
	}

	if err := t.writeNode(node); err != nil {
		_ = sibling.Release(false)
		return err
	}
	if err := t.writeNode(sibling); err != nil {
		_ = sibling.Release(false)
		return err
	}

	return t.propagateSplit(node, sibling, ancestors)
}

// reparentChildren updates every child moved into sibling to point its
// Parent field at sibling's handle.
func reparentChildren(t *Tree, sibling *Node) error {
	for _, e := range sibling.Branches {
		child, err := t.fetchNode(e.Child)
		if err != nil {
			return err
		}
		child.Object().Parent = sibling.Self
		err = t.writeNode(child)
		relErr := child.Release(true)
		if err != nil {
			return err
		}
		if relErr != nil {
			return relErr
		}
	}
	return nil
}

// propagateSplit installs a new BranchEntry for sibling into node's
// parent (growing a new root if node had none), then recurses into
// overflowTreatment on the parent if that insertion itself overflowed.
func (t *Tree) propagateSplit(node, sibling *handle.PinnedPtr[Node], ancestors []*handle.PinnedPtr[Node]) error {
	n := node.Object()

	if len(ancestors) == 0 {
		return t.growNewRoot(node, sibling)
	}

	parent := ancestors[len(ancestors)-1]
	pn := parent.Object()

	idx := -1
	for i, e := range pn.Branches {
		if e.Child.Equal(n.Self) {
			idx = i
			break
		}
	}
	if idx < 0 {
		releaseSplitHalves(node, sibling)
		releasePath(ancestors, false)
		return fmt.Errorf("rtree: split parent missing child entry for %+v", n.Self)
	}

	pn.Branches[idx].Rect = n.Rect()
	pn.Branches = append(pn.Branches, BranchEntry{Child: sibling.Object().Self, Rect: sibling.Object().Rect(), Spill: handle.Null})

	releaseSplitHalves(node, sibling)

	if len(pn.Branches) <= t.cfg.MaxBranchFactor {
		if err := t.writeNode(parent); err != nil {
			releasePath(ancestors, false)
			return err
		}
		return t.adjustTreePath(ancestors)
	}

	return t.overflowTreatment(parent, ancestors[:len(ancestors)-1])
}

// growNewRoot builds a fresh branch root over node and sibling when the
// node that just split had no parent.
func (t *Tree) growNewRoot(node, sibling *handle.PinnedPtr[Node]) error {
	n := node.Object()
	sn := sibling.Object()

	root, err := t.newNode(n.Level + 1)
	if err != nil {
		releaseSplitHalves(node, sibling)
		return err
	}
	rn := root.Object()
	rn.Branches = []BranchEntry{
		{Child: n.Self, Rect: n.Rect(), Spill: handle.Null},
		{Child: sn.Self, Rect: sn.Rect(), Spill: handle.Null},
	}
	n.Parent = rn.Self
	sn.Parent = rn.Self

	err = t.writeNode(node)
	if err == nil {
		err = t.writeNode(sibling)
	}
	if err == nil {
		err = t.writeNode(root)
	}
	releaseSplitHalves(node, sibling)
	if err != nil {
		_ = root.Release(false)
		return err
	}

	t.Root = rn.Self
	return root.Release(true)
}

func releaseSplitHalves(node, sibling *handle.PinnedPtr[Node]) {
	_ = node.Release(true)
	_ = sibling.Release(true)
}

// chooseSplitAxisLeaf implements spec §4.4.2's axis selection: for each
// axis, sort entries by their coordinate on that axis and sum the perimeter of every
// valid (m..N-m) distribution; the axis with the smallest sum wins. Ties
// break toward the lower axis index. Returns the winning axis and the
// distribution index (count of entries in the first group) minimising
// overlap on that axis.
func chooseSplitAxisLeaf(entries []LeafEntry, minFactor int) (axis, splitIdx int) {
	bestAxis := 0
	bestSum := -1.0
	for d := 0; d < geom.Dimensions; d++ {
		sorted := append([]LeafEntry(nil), entries...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Point[d] < sorted[j].Point[d] })
		sum := perimeterSumLeaf(sorted, minFactor)
		if bestSum < 0 || sum < bestSum {
			bestSum, bestAxis = sum, d
		}
	}

	sorted := append([]LeafEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Point[bestAxis] < sorted[j].Point[bestAxis] })
	bestIdx := minFactor
	bestOverlap := -1.0
	bestArea := 0.0
	for k := minFactor; k <= len(sorted)-minFactor; k++ {
		r1, r2 := boundsOfLeaf(sorted[:k]), boundsOfLeaf(sorted[k:])
		overlap := r1.OverlapArea(r2)
		area := r1.Area() + r2.Area()
		if bestOverlap < 0 || overlap < bestOverlap || (overlap == bestOverlap && area < bestArea) {
			bestOverlap, bestArea, bestIdx = overlap, area, k
		}
	}
	return bestAxis, bestIdx
}

func perimeterSumLeaf(sorted []LeafEntry, minFactor int) float64 {
	sum := 0.0
	for k := minFactor; k <= len(sorted)-minFactor; k++ {
		r1, r2 := boundsOfLeaf(sorted[:k]), boundsOfLeaf(sorted[k:])
		sum += r1.Perimeter() + r2.Perimeter()
	}
	return sum
}

func boundsOfLeaf(entries []LeafEntry) geom.Rect {
	r := geom.RectOfPoint(entries[0].Point)
	for _, e := range entries[1:] {
		r = r.UnionPoint(e.Point)
	}
	return r
}

func distributeLeaf(entries []LeafEntry, axis, idx int) ([]LeafEntry, []LeafEntry) {
	sorted := append([]LeafEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Point[axis] < sorted[j].Point[axis] })
	g1 := append([]LeafEntry(nil), sorted[:idx]...)
	g2 := append([]LeafEntry(nil), sorted[idx:]...)
	return g1, g2
}

// chooseSplitAxisBranch mirrors chooseSplitAxisLeaf for branch entries,
// sorting by each entry's rectangle's lower bound on the axis (the upper
// bound is not used as a sort key) and bounding by the rectangles.
func chooseSplitAxisBranch(entries []BranchEntry, minFactor int) (axis, splitIdx int) {
	bestAxis := 0
	bestSum := -1.0
	for d := 0; d < geom.Dimensions; d++ {
		sorted := sortedBranchByAxis(entries, d)
		sum := perimeterSumBranch(sorted, minFactor)
		if bestSum < 0 || sum < bestSum {
			bestSum, bestAxis = sum, d
		}
	}

	sorted := sortedBranchByAxis(entries, bestAxis)
	bestIdx := minFactor
	bestOverlap := -1.0
	bestArea := 0.0
	for k := minFactor; k <= len(sorted)-minFactor; k++ {
		r1, r2 := boundsOfBranch(sorted[:k]), boundsOfBranch(sorted[k:])
		overlap := r1.OverlapArea(r2)
		area := r1.Area() + r2.Area()
		if bestOverlap < 0 || overlap < bestOverlap || (overlap == bestOverlap && area < bestArea) {
			bestOverlap, bestArea, bestIdx = overlap, area, k
		}
	}
	return bestAxis, bestIdx
}

func sortedBranchByAxis(entries []BranchEntry, axis int) []BranchEntry {
	sorted := append([]BranchEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rect.Min[axis] < sorted[j].Rect.Min[axis] })
	return sorted
}

func perimeterSumBranch(sorted []BranchEntry, minFactor int) float64 {
	sum := 0.0
	for k := minFactor; k <= len(sorted)-minFactor; k++ {
		r1, r2 := boundsOfBranch(sorted[:k]), boundsOfBranch(sorted[k:])
		sum += r1.Perimeter() + r2.Perimeter()
	}
	return sum
}

func boundsOfBranch(entries []BranchEntry) geom.Rect {
	r := entries[0].Rect
	for _, e := range entries[1:] {
		r = r.Union(e.Rect)
	}
	return r
}

func distributeBranch(entries []BranchEntry, axis, idx int) ([]BranchEntry, []BranchEntry) {
	sorted := sortedBranchByAxis(entries, axis)
	g1 := append([]BranchEntry(nil), sorted[:idx]...)
	g2 := append([]BranchEntry(nil), sorted[idx:]...)
	return g1, g2
}
