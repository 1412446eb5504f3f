// Package rtree implements the R*-tree node protocol on top of the
// allocator: search, insertion with forced reinsertion and split,
// deletion with condensing, checksum, and validation.
//
// Grounded on two sources (see DESIGN.md): the teacher's B+Tree
// (bplustree/insertion.go, split_leaf.go, split_internal.go, deletion.go,
// parent_insert.go, find_leaf.go) for the overall "fetch via allocator,
// mutate, writeNode, propagate split upward, release on every path" shape,
// and other_examples/sushant-115-gojodb__rtree.go for R-tree-specific
// vocabulary (bounding rectangles, chooseSubtree, spatial entries) the
// B+Tree teacher has no analogue for.
package rtree

import (
	"fmt"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/allocator"
	"github.com/daemondb/rtreestore/internal/handle"
)

// Config mirrors spec §6's enumerated configuration options that shape
// node layout and split/reinsert behavior.
type Config struct {
	MinBranchFactor   int
	MaxBranchFactor   int
	MaxRectangleCount int
	ReinsertFraction  float64 // p = 0.3 by default, spec §4.4.2
}

// DefaultConfig matches spec §6's named defaults.
func DefaultConfig() Config {
	return Config{
		MinBranchFactor:   4,
		MaxBranchFactor:   9,
		MaxRectangleCount: 8,
		ReinsertFraction:  0.3,
	}
}

// LeafEntry is a point stored directly in a leaf node.
type LeafEntry struct {
	Point geom.Point
}

// BranchEntry is a (child, bounding rectangle) pair, plus an optional
// inline or spilled polygon payload describing holes/obstacles within the
// bounding rectangle (spec §6 MAX_RECTANGLE_COUNT, §9 design notes; see
// SPEC_FULL.md §4.4).
type BranchEntry struct {
	Child      handle.Handle
	Rect       geom.Rect
	Inline     geom.Polygon  // used when len(Inline.Rects) <= Config.MaxRectangleCount
	Spill      handle.Handle // non-null when the polygon exceeded inline capacity
	SpillCount int           // rectangle count of the polygon at Spill, needed to resolve/free it
}

// Node is one R*-tree node: its own self-handle, its parent handle (null
// at the root), its level (0 = leaf), and an ordered bounded sequence of
// entries. Per spec §4.4's tagged-union design note, the level field is
// the discriminator: level 0 means every entry is a LeafEntry.
type Node struct {
	Self   handle.Handle
	Parent handle.Handle
	Level  int

	Leaves   []LeafEntry   // non-nil only when Level == 0
	Branches []BranchEntry // non-nil only when Level > 0
}

// IsLeaf reports whether n is a leaf node.
func (n *Node) IsLeaf() bool { return n.Level == 0 }

// Count returns the number of entries in n, regardless of flavour.
func (n *Node) Count() int {
	if n.IsLeaf() {
		return len(n.Leaves)
	}
	return len(n.Branches)
}

// Rect computes the bounding rectangle of every entry in n.
func (n *Node) Rect() geom.Rect {
	if n.Count() == 0 {
		return geom.Rect{}
	}
	if n.IsLeaf() {
		r := geom.RectOfPoint(n.Leaves[0].Point)
		for _, e := range n.Leaves[1:] {
			r = r.UnionPoint(e.Point)
		}
		return r
	}
	r := n.Branches[0].Rect
	for _, e := range n.Branches[1:] {
		r = r.Union(e.Rect)
	}
	return r
}

// tag returns this node's type tag for allocator bookkeeping.
func (n *Node) tag() handle.TypeTag {
	if n.IsLeaf() {
		return handle.TypeLeafNode
	}
	return handle.TypeBranchNode
}

// store holds the shared dependencies every node-level operation needs:
// the allocator nodes live in, and the branching-factor configuration
// that governs overflow/underflow thresholds.
type store struct {
	alloc *allocator.Allocator
	cfg   Config
}

// newNode allocates a fresh node of the given level and returns it,
// pinned, along with its handle. The node is immediately serialized so it
// is never garbage on eviction, mirroring the teacher's newNode
// (bplustree/new_node.go) doing the same for B+Tree nodes.
func (s *store) newNode(level int) (*handle.PinnedPtr[Node], error) {
	n := &Node{Parent: handle.Null, Level: level}
	size := s.nodeSize(level)

	buf, h, err := s.alloc.CreateNewTreeNode(size, tagForLevel(level))
	if err != nil {
		return nil, fmt.Errorf("rtree: failed to allocate node: %w", err)
	}
	n.Self = h

	if err := s.encode(n, *buf.Object()); err != nil {
		_ = buf.Release(false)
		return nil, fmt.Errorf("rtree: failed to serialize new node: %w", err)
	}
	ptr := handle.Reinterpret(buf, n)
	_ = s.alloc.MarkDirty(h)
	return ptr, nil
}

// fetchNode resolves h to a pinned, decoded Node.
func (s *store) fetchNode(h handle.Handle) (*handle.PinnedPtr[Node], error) {
	if h.IsNull() {
		return nil, fmt.Errorf("rtree: cannot fetch null handle")
	}
	size := s.nodeSize(levelForTag(h.Tag))
	buf, err := s.alloc.GetTreeNode(h, size)
	if err != nil {
		return nil, fmt.Errorf("rtree: failed to fetch node %+v: %w", h, err)
	}
	n, err := s.decode(*buf.Object())
	if err != nil {
		_ = buf.Release(false)
		return nil, fmt.Errorf("rtree: failed to decode node %+v: %w", h, err)
	}
	n.Self = h
	return handle.Reinterpret(buf, n), nil
}

// writeNode re-encodes n's current in-memory state back into its page and
// marks the page dirty. It does not release the pointer.
func (s *store) writeNode(ptr *handle.PinnedPtr[Node]) error {
	n := ptr.Object()
	off := ptr.Handle().Offset
	window := ptr.Page().Body()[off : int(off)+s.nodeSize(n.Level)]
	if err := s.encode(n, window); err != nil {
		return fmt.Errorf("rtree: failed to serialize node %+v: %w", n.Self, err)
	}
	return s.alloc.MarkDirty(n.Self)
}

// freeNode releases n's slab back to the allocator, along with any
// obstacle polygon blob its branch entries spilled (spec §6
// MAX_RECTANGLE_COUNT; see SPEC_FULL §4.4). Called when condense drops an
// underfull node and its descendants, and when the root collapses.
func (s *store) freeNode(n *Node) error {
	for _, e := range n.Branches {
		if e.Spill.IsNull() {
			continue
		}
		if err := s.alloc.Free(e.Spill, geom.EncodedSize(e.SpillCount)); err != nil {
			return err
		}
	}
	return s.alloc.Free(n.Self, s.nodeSize(n.Level))
}

func tagForLevel(level int) handle.TypeTag {
	if level == 0 {
		return handle.TypeLeafNode
	}
	return handle.TypeBranchNode
}

func levelForTag(t handle.TypeTag) int {
	if t == handle.TypeLeafNode {
		return 0
	}
	return 1 // any non-zero level decodes branch entries identically
}
