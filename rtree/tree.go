package rtree

import (
	"fmt"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/allocator"
	"github.com/daemondb/rtreestore/internal/handle"
)

// Tree is the R*-tree operations layer sitting on top of the allocator: a
// root handle plus the transient per-insertion forced-reinsertion bitmap
// from spec §3 ("Index state").
type Tree struct {
	store
	Root handle.Handle

	// reinsertedAtLevel tracks "at most one forced reinsertion per level
	// per top-level insertion" (spec §4.4.2). Per spec §9's design note on
	// "per-operation transient state", this is reset by every public Insert
	// call and before Delete reinserts its orphans, not kept as hidden
	// package-level state.
	reinsertedAtLevel map[int]bool
}

// Open wires a Tree over an existing allocator and root handle (root may
// be handle.Null for a brand-new, still-empty tree — the first Insert
// allocates a leaf root).
func Open(alloc *allocator.Allocator, cfg Config, root handle.Handle) *Tree {
	return &Tree{
		store: store{alloc: alloc, cfg: cfg},
		Root:  root,
	}
}

// ensureRoot allocates an empty leaf root if the tree has never held a
// point.
func (t *Tree) ensureRoot() error {
	if !t.Root.IsNull() {
		return nil
	}
	root, err := t.newNode(0)
	if err != nil {
		return fmt.Errorf("rtree: failed to allocate root: %w", err)
	}
	t.Root = root.Object().Self
	return root.Release(true)
}

// Height reports the root's level, i.e. the number of levels above the
// leaves (0 for a lone leaf root).
func (t *Tree) Height() (int, error) {
	if t.Root.IsNull() {
		return 0, nil
	}
	root, err := t.fetchNode(t.Root)
	if err != nil {
		return 0, err
	}
	defer root.Release(false)
	return root.Object().Level, nil
}

func ptEqual(a, b geom.Point) bool {
	for d := 0; d < geom.Dimensions; d++ {
		if a[d] != b[d] {
			return false
		}
	}
	return true
}
