package rtree

import (
	"fmt"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/handle"
)

// SearchPoint descends branches whose rectangle contains pt and returns
// every matching leaf point (spec §4.4.1).
func (t *Tree) SearchPoint(pt geom.Point) ([]geom.Point, error) {
	if t.Root.IsNull() {
		return nil, nil
	}
	var out []geom.Point
	if err := t.searchPointNode(t.Root, pt, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) searchPointNode(h handle.Handle, pt geom.Point, out *[]geom.Point) error {
	node, err := t.fetchNode(h)
	if err != nil {
		return err
	}
	defer node.Release(false)
	n := node.Object()

	if n.IsLeaf() {
		for _, e := range n.Leaves {
			if ptEqual(e.Point, pt) {
				*out = append(*out, e.Point)
			}
		}
		return nil
	}
	for _, e := range n.Branches {
		if e.Rect.ContainsPoint(pt) {
			if err := t.searchPointNode(e.Child, pt, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// SearchRect descends branches whose rectangle intersects rect and returns
// every contained leaf point.
func (t *Tree) SearchRect(rect geom.Rect) ([]geom.Point, error) {
	if t.Root.IsNull() {
		return nil, nil
	}
	var out []geom.Point
	if err := t.searchRectNode(t.Root, rect, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) searchRectNode(h handle.Handle, rect geom.Rect, out *[]geom.Point) error {
	node, err := t.fetchNode(h)
	if err != nil {
		return err
	}
	defer node.Release(false)
	n := node.Object()

	if n.IsLeaf() {
		for _, e := range n.Leaves {
			if rect.ContainsPoint(e.Point) {
				*out = append(*out, e.Point)
			}
		}
		return nil
	}
	for _, e := range n.Branches {
		if e.Rect.Intersects(rect) {
			if err := t.searchRectNode(e.Child, rect, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExhaustiveSearch traverses every leaf regardless of bounding rectangles
// and returns matches for pt — used to cross-check SearchPoint (spec
// §4.4.1).
func (t *Tree) ExhaustiveSearch(pt geom.Point) ([]geom.Point, error) {
	if t.Root.IsNull() {
		return nil, nil
	}
	var out []geom.Point
	if err := t.walkLeaves(t.Root, func(p geom.Point) {
		if ptEqual(p, pt) {
			out = append(out, p)
		}
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// walkLeaves visits every leaf point in the subtree rooted at h, in leaf
// order, regardless of bounding rectangles.
func (t *Tree) walkLeaves(h handle.Handle, visit func(geom.Point)) error {
	node, err := t.fetchNode(h)
	if err != nil {
		return fmt.Errorf("rtree: walkLeaves: %w", err)
	}
	defer node.Release(false)
	n := node.Object()

	if n.IsLeaf() {
		for _, e := range n.Leaves {
			visit(e.Point)
		}
		return nil
	}
	for _, e := range n.Branches {
		if err := t.walkLeaves(e.Child, visit); err != nil {
			return err
		}
	}
	return nil
}
