package geom

import (
	"encoding/binary"
	"math"
)

// rectEncodedSize is the fixed on-disk width of one Rect: Dimensions Min
// coordinates plus Dimensions Max coordinates, each an 8-byte float64.
const rectEncodedSize = 2 * Dimensions * 8

// Polygon approximates an obstacle or hole region as a union of
// rectangles — the NIR-tree-family detail named by spec §6's
// MAX_RECTANGLE_COUNT configuration option and §9's "inline fixed-capacity
// form / unbounded form" design note, supplemented here because spec.md's
// OVERVIEW prose never elaborates it but the configuration table and
// design notes name it explicitly (see SPEC_FULL.md §4.4).
type Polygon struct {
	Rects []Rect
}

// EncodedSize returns the on-disk byte width of a polygon with exactly n
// rectangles: a 2-byte count prefix plus n fixed-width rectangles.
func EncodedSize(n int) int {
	return 2 + n*rectEncodedSize
}

// UnboundedPolygonSize is EncodedSize at maxRectangleCount+1 — the
// smallest unbounded-form polygon that no longer fits the inline
// fixed-capacity representation. Spec §9 directs that T_MIN be derived
// from this rather than hard-coded to 272.
func UnboundedPolygonSize(maxRectangleCount int) int {
	return EncodedSize(maxRectangleCount + 1)
}

// Encode writes p into dst, which must be at least EncodedSize(len(p.Rects))
// bytes.
func (p Polygon) Encode(dst []byte) int {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(len(p.Rects)))
	off := 2
	for _, r := range p.Rects {
		for d := 0; d < Dimensions; d++ {
			binary.LittleEndian.PutUint64(dst[off:], math.Float64bits(r.Min[d]))
			off += 8
		}
		for d := 0; d < Dimensions; d++ {
			binary.LittleEndian.PutUint64(dst[off:], math.Float64bits(r.Max[d]))
			off += 8
		}
	}
	return off
}

// DecodePolygon reads a polygon back out of src.
func DecodePolygon(src []byte) (Polygon, int) {
	n := int(binary.LittleEndian.Uint16(src[0:2]))
	off := 2
	rects := make([]Rect, n)
	for i := 0; i < n; i++ {
		var r Rect
		for d := 0; d < Dimensions; d++ {
			r.Min[d] = math.Float64frombits(binary.LittleEndian.Uint64(src[off:]))
			off += 8
		}
		for d := 0; d < Dimensions; d++ {
			r.Max[d] = math.Float64frombits(binary.LittleEndian.Uint64(src[off:]))
			off += 8
		}
		rects[i] = r
	}
	return Polygon{Rects: rects}, off
}

// Bounds returns the smallest Rect enclosing every rectangle in p.
func (p Polygon) Bounds() Rect {
	if len(p.Rects) == 0 {
		return Rect{}
	}
	b := p.Rects[0]
	for _, r := range p.Rects[1:] {
		b = b.Union(r)
	}
	return b
}

// ContainsPoint reports whether any rectangle making up p contains pt.
func (p Polygon) ContainsPoint(pt Point) bool {
	for _, r := range p.Rects {
		if r.ContainsPoint(pt) {
			return true
		}
	}
	return false
}
