package rtree

import (
	"fmt"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/handle"
)

// Delete removes one occurrence of pt from the tree, then runs
// CondenseTree (spec §4.4.3): nodes that fall below MinBranchFactor are
// freed and every leaf point below them collected for reinsertion from
// the root as a point at level 0; orphaned subtrees are not reinserted
// whole at their original level. If the root itself ends up a lone-child
// branch, the tree collapses a level.
func (t *Tree) Delete(pt geom.Point) (bool, error) {
	if t.Root.IsNull() {
		return false, nil
	}

	path, leafIdx, err := t.findLeaf(t.Root, pt)
	if err != nil {
		return false, err
	}
	if path == nil {
		return false, nil
	}

	leaf := path[len(path)-1]
	n := leaf.Object()
	n.Leaves = append(n.Leaves[:leafIdx], n.Leaves[leafIdx+1:]...)
	if err := t.writeNode(leaf); err != nil {
		_ = leaf.Release(true)
		releasePath(path[:len(path)-1], false)
		return false, err
	}

	orphans, err := t.condenseTree(path)
	if err != nil {
		return false, err
	}

	if err := t.collapseRootIfNeeded(); err != nil {
		return false, err
	}

	t.reinsertedAtLevel = make(map[int]bool)
	defer func() { t.reinsertedAtLevel = nil }()

	for _, op := range orphans {
		if err := t.insertPoint(op.pt); err != nil {
			return false, fmt.Errorf("rtree: condense reinsertion of %v failed: %w", op.pt, err)
		}
	}
	return true, nil
}

// findLeaf descends to the leaf holding pt (first match, per spec's
// point-equality semantics — duplicate points are distinct entries, so
// Delete removes exactly one), returning the full root-to-leaf path
// (pinned; caller releases or passes to condenseTree) and the entry's
// index within that leaf. Returns a nil path if pt isn't present.
func (t *Tree) findLeaf(root handle.Handle, pt geom.Point) ([]*handle.PinnedPtr[Node], int, error) {
	var path []*handle.PinnedPtr[Node]
	cur, err := t.fetchNode(root)
	if err != nil {
		return nil, 0, err
	}
	path = append(path, cur)

	idx, ok := findLeafRec(t, pt, &path)
	if !ok {
		releasePath(path, false)
		return nil, 0, nil
	}
	return path, idx, nil
}

func findLeafRec(t *Tree, pt geom.Point, path *[]*handle.PinnedPtr[Node]) (int, bool) {
	cur := (*path)[len(*path)-1]
	n := cur.Object()

	if n.IsLeaf() {
		for i, e := range n.Leaves {
			if ptEqual(e.Point, pt) {
				return i, true
			}
		}
		return 0, false
	}

	for _, e := range n.Branches {
		if !e.Rect.ContainsPoint(pt) {
			continue
		}
		child, err := t.fetchNode(e.Child)
		if err != nil {
			continue
		}
		*path = append(*path, child)
		if idx, ok := findLeafRec(t, pt, path); ok {
			return idx, true
		}
		*path = (*path)[:len(*path)-1]
		_ = child.Release(false)
	}
	return 0, false
}

// orphan is a leaf point evicted from an underfull node during condense,
// pending reinsertion from the root.
type orphan struct {
	pt geom.Point
}

// condenseTree walks path bottom-up (spec §4.4.3): any node (other than
// the root) whose entry count drops below MinBranchFactor is freed, its
// leaf descendants collected as orphans, and the corresponding entry
// removed from its parent. Surviving ancestors have their bounding
// rectangles tightened as usual. path is fully consumed (every pointer
// released) by the time condenseTree returns.
func (t *Tree) condenseTree(path []*handle.PinnedPtr[Node]) ([]orphan, error) {
	var orphans []orphan

	// current is always pinned and already persisted on disk; each loop
	// iteration decides current's fate against its parent, then current
	// becomes the freshly-rewritten parent for the next iteration up.
	current := path[len(path)-1]

	for i := len(path) - 2; i >= 0; i-- {
		parent := path[i]
		pn := parent.Object()
		cn := current.Object()

		idx := -1
		for j, e := range pn.Branches {
			if e.Child.Equal(cn.Self) {
				idx = j
				break
			}
		}
		if idx < 0 {
			_ = current.Release(false)
			releasePath(path[:i+1], false)
			return nil, fmt.Errorf("rtree: condense: parent missing entry for child %+v", cn.Self)
		}

		if cn.Count() < t.cfg.MinBranchFactor {
			if err := t.collectOrphans(cn, &orphans); err != nil {
				_ = current.Release(false)
				releasePath(path[:i+1], false)
				return nil, err
			}
			if err := t.freeNode(cn); err != nil {
				_ = current.Release(false)
				releasePath(path[:i+1], false)
				return nil, err
			}
			pn.Branches = append(pn.Branches[:idx], pn.Branches[idx+1:]...)
		} else {
			pn.Branches[idx].Rect = cn.Rect()
		}
		_ = current.Release(false)

		if err := t.writeNode(parent); err != nil {
			releasePath(path[:i+1], false)
			return nil, err
		}
		current = parent
	}

	_ = current.Release(true)
	return orphans, nil
}

// collectOrphans walks every leaf point reachable from n (which is about
// to be freed) and appends it to orphans for later top-down reinsertion.
// n's own direct children, if any, are fetched and released as they're
// walked; n itself is not released here (the caller already owns that).
func (t *Tree) collectOrphans(n *Node, orphans *[]orphan) error {
	if n.IsLeaf() {
		for _, e := range n.Leaves {
			*orphans = append(*orphans, orphan{pt: e.Point})
		}
		return nil
	}
	for _, e := range n.Branches {
		child, err := t.fetchNode(e.Child)
		if err != nil {
			return err
		}
		err = t.collectOrphans(child.Object(), orphans)
		if ferr := t.freeNode(child.Object()); ferr != nil && err == nil {
			err = ferr
		}
		if relErr := child.Release(false); relErr != nil && err == nil {
			err = relErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// collapseRootIfNeeded implements spec §4.4.3's root-collapse clause: if
// the root is a branch with exactly one child, that child becomes the new
// root and the old root's slab is freed.
func (t *Tree) collapseRootIfNeeded() error {
	root, err := t.fetchNode(t.Root)
	if err != nil {
		return err
	}
	rn := root.Object()
	if rn.IsLeaf() || len(rn.Branches) != 1 {
		return root.Release(false)
	}

	onlyChild := rn.Branches[0].Child
	if err := t.freeNode(rn); err != nil {
		_ = root.Release(false)
		return err
	}
	if err := root.Release(false); err != nil {
		return err
	}

	child, err := t.fetchNode(onlyChild)
	if err != nil {
		return err
	}
	child.Object().Parent = handle.Null
	if err := t.writeNode(child); err != nil {
		_ = child.Release(true)
		return err
	}
	t.Root = onlyChild
	return child.Release(true)
}
