package rtree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/handle"
)

// headerSize is Self handle + Parent handle + level (int32) + count (int32).
const headerSize = 2*handle.EncodedSize + 4 + 4

const pointSize = geom.Dimensions * 8
const rectSize = 2 * geom.Dimensions * 8

// leafEntrySize is a LeafEntry's fixed on-disk width.
const leafEntrySize = pointSize

// branchEntrySize is a BranchEntry's fixed on-disk width: child handle +
// bounding rect + inline polygon slots + spill handle + spill rectangle
// count. This — together with leaf nodes' fixed width — is the "two
// dominant object sizes" spec §4.3 motivates first-fit allocation with.
func (s *store) branchEntrySize() int {
	return handle.EncodedSize + rectSize + geom.EncodedSize(s.cfg.MaxRectangleCount) + handle.EncodedSize + 2
}

// nodeSize returns the fixed encoded width of a node at the given level —
// the same for every node of that flavour regardless of current entry
// count, per spec §4.4's "byte layout is fixed-size: a header plus a
// fixed-capacity array of entries plus a count."
func (s *store) nodeSize(level int) int {
	n := s.cfg.MaxBranchFactor
	if level == 0 {
		return headerSize + n*leafEntrySize
	}
	return headerSize + n*s.branchEntrySize()
}

// encode writes n's current state into dst, which must be at least
// s.nodeSize(n.Level) bytes. Unused entry slots past n.Count() are left as
// whatever bytes were already there — only the persisted count governs
// how many are read back by decode.
func (s *store) encode(n *Node, dst []byte) error {
	size := s.nodeSize(n.Level)
	if len(dst) < size {
		return fmt.Errorf("rtree: encode buffer too small: have %d need %d", len(dst), size)
	}

	off := 0
	n.Self.Encode(dst[off:])
	off += handle.EncodedSize
	n.Parent.Encode(dst[off:])
	off += handle.EncodedSize
	binary.LittleEndian.PutUint32(dst[off:], uint32(n.Level))
	off += 4
	binary.LittleEndian.PutUint32(dst[off:], uint32(n.Count()))
	off += 4

	if n.IsLeaf() {
		if len(n.Leaves) > s.cfg.MaxBranchFactor {
			return fmt.Errorf("rtree: leaf has %d entries, exceeds capacity %d", len(n.Leaves), s.cfg.MaxBranchFactor)
		}
		for _, e := range n.Leaves {
			encodePoint(dst[off:], e.Point)
			off += leafEntrySize
		}
		return nil
	}

	if len(n.Branches) > s.cfg.MaxBranchFactor {
		return fmt.Errorf("rtree: branch has %d entries, exceeds capacity %d", len(n.Branches), s.cfg.MaxBranchFactor)
	}
	entrySize := s.branchEntrySize()
	for _, e := range n.Branches {
		s.encodeBranchEntry(dst[off:off+entrySize], e)
		off += entrySize
	}
	return nil
}

func (s *store) encodeBranchEntry(dst []byte, e BranchEntry) {
	off := 0
	e.Child.Encode(dst[off:])
	off += handle.EncodedSize
	encodeRect(dst[off:], e.Rect)
	off += rectSize
	polySize := geom.EncodedSize(s.cfg.MaxRectangleCount)
	e.Inline.Encode(dst[off : off+polySize])
	off += polySize
	e.Spill.Encode(dst[off:])
	off += handle.EncodedSize
	binary.LittleEndian.PutUint16(dst[off:], uint16(e.SpillCount))
}

// decode reads a node back out of src, using the type tag implied by the
// caller (fetchNode passes a buffer sized for the flavour it expects).
func (s *store) decode(src []byte) (*Node, error) {
	off := 0
	self := handle.Decode(src[off:])
	off += handle.EncodedSize
	parent := handle.Decode(src[off:])
	off += handle.EncodedSize
	level := int(int32(binary.LittleEndian.Uint32(src[off:])))
	off += 4
	count := int(binary.LittleEndian.Uint32(src[off:]))
	off += 4

	n := &Node{Self: self, Parent: parent, Level: level}

	if level == 0 {
		if count > s.cfg.MaxBranchFactor {
			return nil, fmt.Errorf("rtree: decoded leaf count %d exceeds capacity %d", count, s.cfg.MaxBranchFactor)
		}
		n.Leaves = make([]LeafEntry, count)
		for i := 0; i < count; i++ {
			n.Leaves[i] = LeafEntry{Point: decodePoint(src[off:])}
			off += leafEntrySize
		}
		return n, nil
	}

	if count > s.cfg.MaxBranchFactor {
		return nil, fmt.Errorf("rtree: decoded branch count %d exceeds capacity %d", count, s.cfg.MaxBranchFactor)
	}
	entrySize := s.branchEntrySize()
	n.Branches = make([]BranchEntry, count)
	for i := 0; i < count; i++ {
		n.Branches[i] = s.decodeBranchEntry(src[off : off+entrySize])
		off += entrySize
	}
	return n, nil
}

func (s *store) decodeBranchEntry(src []byte) BranchEntry {
	off := 0
	child := handle.Decode(src[off:])
	off += handle.EncodedSize
	rect := decodeRect(src[off:])
	off += rectSize
	polySize := geom.EncodedSize(s.cfg.MaxRectangleCount)
	poly, _ := geom.DecodePolygon(src[off : off+polySize])
	off += polySize
	spill := handle.Decode(src[off:])
	off += handle.EncodedSize
	spillCount := int(binary.LittleEndian.Uint16(src[off:]))
	return BranchEntry{Child: child, Rect: rect, Inline: poly, Spill: spill, SpillCount: spillCount}
}

func encodePoint(dst []byte, p geom.Point) {
	for d := 0; d < geom.Dimensions; d++ {
		binary.LittleEndian.PutUint64(dst[d*8:], math.Float64bits(p[d]))
	}
}

func decodePoint(src []byte) geom.Point {
	var p geom.Point
	for d := 0; d < geom.Dimensions; d++ {
		p[d] = math.Float64frombits(binary.LittleEndian.Uint64(src[d*8:]))
	}
	return p
}

func encodeRect(dst []byte, r geom.Rect) {
	encodePoint(dst, r.Min)
	encodePoint(dst[pointSize:], r.Max)
}

func decodeRect(src []byte) geom.Rect {
	return geom.Rect{
		Min: decodePoint(src),
		Max: decodePoint(src[pointSize:]),
	}
}
