package rtree

import (
	"fmt"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/handle"
)

// SetObstaclePolygon attaches poly to child's entry in its parent,
// describing holes or obstacles within child's bounding rectangle (spec §6
// MAX_RECTANGLE_COUNT; see SPEC_FULL §4.4). A polygon with no more than
// MaxRectangleCount rectangles is stored inline in the branch entry; a
// larger one is spilled to a separately allocated blob tagged
// handle.TypePolygonBlob, referenced by BranchEntry.Spill, since a node's
// own encoded size stays fixed regardless of how obstructed any one of its
// entries is.
func (t *Tree) SetObstaclePolygon(child handle.Handle, poly geom.Polygon) error {
	parentHandle, err := t.parentOf(child)
	if err != nil {
		return err
	}
	if parentHandle.IsNull() {
		return fmt.Errorf("rtree: cannot attach an obstacle polygon to the root")
	}

	parent, err := t.fetchNode(parentHandle)
	if err != nil {
		return err
	}
	pn := parent.Object()

	idx := indexOfBranchChild(pn, child)
	if idx < 0 {
		_ = parent.Release(false)
		return fmt.Errorf("rtree: parent %+v missing entry for child %+v", parentHandle, child)
	}

	if err := t.setBranchPolygon(&pn.Branches[idx], poly); err != nil {
		_ = parent.Release(false)
		return err
	}

	if err := t.writeNode(parent); err != nil {
		_ = parent.Release(true)
		return err
	}
	return parent.Release(true)
}

// ObstaclePolygon returns the polygon currently attached to child's entry
// in its parent, resolving a spilled blob if the inline slots weren't
// enough to hold it. Returns the empty polygon for the root, which has no
// parent entry to carry one.
func (t *Tree) ObstaclePolygon(child handle.Handle) (geom.Polygon, error) {
	parentHandle, err := t.parentOf(child)
	if err != nil {
		return geom.Polygon{}, err
	}
	if parentHandle.IsNull() {
		return geom.Polygon{}, nil
	}

	parent, err := t.fetchNode(parentHandle)
	if err != nil {
		return geom.Polygon{}, err
	}
	defer parent.Release(false)

	idx := indexOfBranchChild(parent.Object(), child)
	if idx < 0 {
		return geom.Polygon{}, fmt.Errorf("rtree: parent %+v missing entry for child %+v", parentHandle, child)
	}
	return t.branchPolygon(parent.Object().Branches[idx])
}

// parentOf resolves child's Parent handle.
func (t *Tree) parentOf(child handle.Handle) (handle.Handle, error) {
	ptr, err := t.fetchNode(child)
	if err != nil {
		return handle.Null, err
	}
	parentHandle := ptr.Object().Parent
	return parentHandle, ptr.Release(false)
}

func indexOfBranchChild(n *Node, child handle.Handle) int {
	for i, e := range n.Branches {
		if e.Child.Equal(child) {
			return i
		}
	}
	return -1
}

// setBranchPolygon installs poly on e, first freeing any blob e previously
// spilled.
func (t *Tree) setBranchPolygon(e *BranchEntry, poly geom.Polygon) error {
	if !e.Spill.IsNull() {
		if err := t.freePolygonBlob(e.Spill, e.SpillCount); err != nil {
			return err
		}
		e.Spill = handle.Null
		e.SpillCount = 0
	}

	if len(poly.Rects) <= t.cfg.MaxRectangleCount {
		e.Inline = poly
		return nil
	}

	e.Inline = geom.Polygon{}
	h, err := t.allocPolygonBlob(poly)
	if err != nil {
		return err
	}
	e.Spill = h
	e.SpillCount = len(poly.Rects)
	return nil
}

// branchPolygon returns e's polygon, inline or resolved from its spilled
// blob.
func (t *Tree) branchPolygon(e BranchEntry) (geom.Polygon, error) {
	if e.Spill.IsNull() {
		return e.Inline, nil
	}
	return t.readPolygonBlob(e.Spill, e.SpillCount)
}

// allocPolygonBlob writes poly into a freshly allocated region tagged
// handle.TypePolygonBlob: a leading uint16 rectangle-count prefix plus the
// rectangles themselves, per SPEC_FULL §4.4.
func (t *Tree) allocPolygonBlob(poly geom.Polygon) (handle.Handle, error) {
	size := geom.EncodedSize(len(poly.Rects))
	buf, h, err := t.alloc.CreateNewTreeNode(size, handle.TypePolygonBlob)
	if err != nil {
		return handle.Null, fmt.Errorf("rtree: failed to allocate obstacle polygon blob: %w", err)
	}
	poly.Encode(*buf.Object())
	writeErr := t.alloc.MarkDirty(h)
	relErr := buf.Release(true)
	if writeErr != nil {
		return handle.Null, writeErr
	}
	if relErr != nil {
		return handle.Null, relErr
	}
	return h, nil
}

// readPolygonBlob resolves a spilled polygon blob back to a geom.Polygon.
// count is the rectangle count recorded on the owning BranchEntry — the
// blob's own layout has no way to discover its size without it, since the
// allocator needs an exact byte length to resolve a handle.
func (t *Tree) readPolygonBlob(h handle.Handle, count int) (geom.Polygon, error) {
	buf, err := t.alloc.GetTreeNode(h, geom.EncodedSize(count))
	if err != nil {
		return geom.Polygon{}, fmt.Errorf("rtree: failed to fetch obstacle polygon blob %+v: %w", h, err)
	}
	poly, _ := geom.DecodePolygon(*buf.Object())
	return poly, buf.Release(false)
}

// freePolygonBlob releases a previously spilled polygon's storage.
func (t *Tree) freePolygonBlob(h handle.Handle, count int) error {
	return t.alloc.Free(h, geom.EncodedSize(count))
}
