package rtree

import (
	"fmt"
	"sort"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/handle"
)

// Insert adds pt to the tree, performing ChooseSubtree, OverflowTreatment
// (forced reinsertion or split), and AdjustTree per spec §4.4.2.
func (t *Tree) Insert(pt geom.Point) error {
	if err := t.ensureRoot(); err != nil {
		return err
	}
	t.reinsertedAtLevel = make(map[int]bool)
	defer func() { t.reinsertedAtLevel = nil }()

	return t.insertPoint(pt)
}

// insertPoint is Insert's recursive engine, also used by forced
// reinsertion of evicted leaf entries and condense-tree orphan
// reinsertion to feed points back in "from the top".
func (t *Tree) insertPoint(pt geom.Point) error {
	path, err := t.chooseSubtreePath(geom.RectOfPoint(pt), 0)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1]
	defer leaf.Release(true)

	n := leaf.Object()
	n.Leaves = append(n.Leaves, LeafEntry{Point: pt})

	if len(n.Leaves) <= t.cfg.MaxBranchFactor {
		if err := t.writeNode(leaf); err != nil {
			return err
		}
		return t.adjustTreePath(path)
	}

	// Overflow: the new entry stays in the now-N+1-sized in-memory slice —
	// forced reinsertion needs to choose which p*N entries to evict from
	// all of them — and overflowTreatment decides what survives.
	return t.overflowTreatment(leaf, path[:len(path)-1])
}

// insertSubtree re-inserts a previously evicted BranchEntry — a child
// pointer, not a point — into the tree at targetLevel: the level its new
// parent node must sit at, i.e. the level the entry's old parent held
// before forced reinsertion evicted it (spec §4.4.2 step 3, branch-level
// case). The entry's child has its Parent field repointed at its new
// parent before the parent is written.
func (t *Tree) insertSubtree(entry BranchEntry, targetLevel int) error {
	path, err := t.chooseSubtreePath(entry.Rect, targetLevel)
	if err != nil {
		return err
	}
	target := path[len(path)-1]
	defer target.Release(true)

	child, err := t.fetchNode(entry.Child)
	if err != nil {
		return err
	}
	child.Object().Parent = target.Object().Self
	writeErr := t.writeNode(child)
	relErr := child.Release(true)
	if writeErr != nil {
		return writeErr
	}
	if relErr != nil {
		return relErr
	}

	n := target.Object()
	n.Branches = append(n.Branches, entry)

	if len(n.Branches) <= t.cfg.MaxBranchFactor {
		if err := t.writeNode(target); err != nil {
			return err
		}
		return t.adjustTreePath(path)
	}

	return t.overflowTreatment(target, path[:len(path)-1])
}

// chooseSubtreePath walks from the root down to the node whose Level
// equals targetLevel, applying ChooseSubtree's tie-break chain at every
// level along the way (spec §4.4.2 step 1): least enlargement to admit
// rect, then smallest resulting area, then — one level above
// targetLevel — smallest overlap-enlargement. Returns the full
// root-to-target path, each pinned; caller releases.
func (t *Tree) chooseSubtreePath(rect geom.Rect, targetLevel int) ([]*handle.PinnedPtr[Node], error) {
	var path []*handle.PinnedPtr[Node]
	cur, err := t.fetchNode(t.Root)
	if err != nil {
		return nil, err
	}
	path = append(path, cur)

	for cur.Object().Level > targetLevel {
		n := cur.Object()
		idx := chooseBestChild(n, rect, targetLevel)
		next, err := t.fetchNode(n.Branches[idx].Child)
		if err != nil {
			releasePath(path, false)
			return nil, err
		}
		path = append(path, next)
		cur = next
	}
	return path, nil
}

// chooseBestChild picks the branch entry in n minimising enlargement to
// admit rect, tie-broken by smallest resulting area, then — only when n
// sits one level above targetLevel — by smallest overlap-enlargement.
func chooseBestChild(n *Node, rect geom.Rect, targetLevel int) int {
	applyOverlapTiebreak := n.Level == targetLevel+1

	best := 0
	bestEnlarge := n.Branches[0].Rect.Enlargement(rect)
	for i := 1; i < len(n.Branches); i++ {
		e := n.Branches[i].Rect.Enlargement(rect)
		switch {
		case e < bestEnlarge:
			best, bestEnlarge = i, e
		case e == bestEnlarge:
			switch {
			case n.Branches[i].Rect.Area() < n.Branches[best].Rect.Area():
				best = i
			case applyOverlapTiebreak && n.Branches[i].Rect.Area() == n.Branches[best].Rect.Area():
				if overlapEnlargement(n, i, rect) < overlapEnlargement(n, best, rect) {
					best = i
				}
			}
		}
	}
	return best
}

// overlapEnlargement returns how much admitting rect into n.Branches[idx]
// would increase that entry's rectangle's total overlap with every other
// entry in n — the R*-tree refinement spec §4.4.2 names for breaking ties
// one level above the target level.
func overlapEnlargement(n *Node, idx int, rect geom.Rect) float64 {
	before := n.Branches[idx].Rect
	after := before.Union(rect)
	sum := 0.0
	for j, e := range n.Branches {
		if j == idx {
			continue
		}
		sum += after.OverlapArea(e.Rect) - before.OverlapArea(e.Rect)
	}
	return sum
}

// adjustTreePath tightens every ancestor's bounding rectangle along path
// to enclose its child's current rect, working from path's bottom upward
// (spec §4.4.4). path is the full root-to-changed-node path, including
// the changed node itself — its rect must already reflect whatever
// mutation triggered the adjustment. adjustTreePath consumes path: every
// pointer is released, dirty or not, before it returns.
func (t *Tree) adjustTreePath(path []*handle.PinnedPtr[Node]) error {
	var firstErr error
	for i := len(path) - 2; i >= 0 && firstErr == nil; i-- {
		parent := path[i].Object()
		child := path[i+1].Object()

		idx := -1
		for j, e := range parent.Branches {
			if e.Child.Equal(child.Self) {
				idx = j
				break
			}
		}
		if idx < 0 {
			firstErr = fmt.Errorf("rtree: adjust: parent %+v missing entry for child %+v", parent.Self, child.Self)
			break
		}

		parent.Branches[idx].Rect = child.Rect()
		if err := t.writeNode(path[i]); err != nil {
			firstErr = err
		}
	}
	for _, p := range path {
		if err := p.Release(true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// overflowTreatment implements spec §4.4.2 step 3: on a node's first
// overflow at its level during this top-level insertion, forced
// reinsertion; otherwise split.
func (t *Tree) overflowTreatment(node *handle.PinnedPtr[Node], ancestors []*handle.PinnedPtr[Node]) error {
	n := node.Object()
	isRoot := len(ancestors) == 0

	if !isRoot && !t.reinsertedAtLevel[n.Level] {
		t.reinsertedAtLevel[n.Level] = true
		return t.forcedReinsert(node, ancestors)
	}
	return t.split(node, ancestors)
}

// forcedReinsert removes the p*N entries whose centres are furthest from
// the node's own centre, writes the shrunk node back, adjusts ancestors,
// then reinserts the evicted entries from the root (spec §4.4.2).
// Branch nodes evict and reinsert child subtrees rather than points; the
// evicted subtrees go back in at the overflowing node's own level, so
// they land as siblings of what remains rather than being walked all the
// way back down to a leaf.
func (t *Tree) forcedReinsert(node *handle.PinnedPtr[Node], ancestors []*handle.PinnedPtr[Node]) error {
	if node.Object().IsLeaf() {
		return t.forcedReinsertLeaf(node, ancestors)
	}
	return t.forcedReinsertBranch(node, ancestors)
}

func (t *Tree) forcedReinsertLeaf(node *handle.PinnedPtr[Node], ancestors []*handle.PinnedPtr[Node]) error {
	n := node.Object()
	center := n.Rect().Center()
	count := len(n.Leaves)
	numEvict := reinsertCount(t.cfg.ReinsertFraction, count)

	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		da := geom.Dist(n.Leaves[order[a]].Point, center)
		db := geom.Dist(n.Leaves[order[b]].Point, center)
		return da > db
	})

	evictIdx := make(map[int]bool, numEvict)
	for i := 0; i < numEvict; i++ {
		evictIdx[order[i]] = true
	}

	var evicted []geom.Point
	var kept []LeafEntry
	for i, e := range n.Leaves {
		if evictIdx[i] {
			evicted = append(evicted, e.Point)
		} else {
			kept = append(kept, e)
		}
	}
	n.Leaves = kept

	if err := t.writeNode(node); err != nil {
		_ = node.Release(true)
		releasePath(ancestors, false)
		return err
	}
	if err := t.adjustTreePath(append(ancestors, node)); err != nil {
		return err
	}

	for _, pt := range evicted {
		if err := t.insertPoint(pt); err != nil {
			return fmt.Errorf("rtree: forced reinsertion of %v failed: %w", pt, err)
		}
	}
	return nil
}

func (t *Tree) forcedReinsertBranch(node *handle.PinnedPtr[Node], ancestors []*handle.PinnedPtr[Node]) error {
	n := node.Object()
	level := n.Level
	center := n.Rect().Center()
	count := len(n.Branches)
	numEvict := reinsertCount(t.cfg.ReinsertFraction, count)

	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		da := geom.Dist(n.Branches[order[a]].Rect.Center(), center)
		db := geom.Dist(n.Branches[order[b]].Rect.Center(), center)
		return da > db
	})

	evictIdx := make(map[int]bool, numEvict)
	for i := 0; i < numEvict; i++ {
		evictIdx[order[i]] = true
	}

	var evicted []BranchEntry
	var kept []BranchEntry
	for i, e := range n.Branches {
		if evictIdx[i] {
			evicted = append(evicted, e)
		} else {
			kept = append(kept, e)
		}
	}
	n.Branches = kept

	if err := t.writeNode(node); err != nil {
		_ = node.Release(true)
		releasePath(ancestors, false)
		return err
	}
	if err := t.adjustTreePath(append(ancestors, node)); err != nil {
		return err
	}

	for _, e := range evicted {
		if err := t.insertSubtree(e, level); err != nil {
			return fmt.Errorf("rtree: forced reinsertion of subtree %+v failed: %w", e.Child, err)
		}
	}
	return nil
}

// reinsertCount applies the p*N eviction fraction (spec §4.4.2), rounded
// to nearest and clamped to [1, count-1] so forced reinsertion always
// evicts at least one entry and never empties the node outright.
func reinsertCount(fraction float64, count int) int {
	n := int(fraction*float64(count) + 0.5)
	if n < 1 {
		n = 1
	}
	if n >= count {
		n = count - 1
	}
	return n
}

// releasePath releases every pointer in a root-to-leaf path, best-effort.
func releasePath(path []*handle.PinnedPtr[Node], dirty bool) {
	for _, p := range path {
		_ = p.Release(dirty)
	}
}
