// Package geom is the minimal point/rectangle kernel the R*-tree layer
// needs. Spec §1 scopes a general geometry kernel out of this module as an
// external collaborator; this package is the small concrete interface
// surface the tree actually calls through.
//
// Grounded on other_examples/sushant-115-gojodb__rtree.go's Rect type
// (Area/Intersects/Contains/Union/Enlargement), generalized from fixed 2-D
// MinX/MinY/MaxX/MaxY fields to a Dimensions-constant-sized array per
// spec §6 ("dimensions: compile-time or startup constant"). Perimeter,
// Center and Dist are added because the R*-tree split heuristic
// (perimeter-sum) and forced reinsertion (centre distance) need them.
package geom

import "math"

// Dimensions is the compile-time arity of every point and rectangle this
// build of the module operates on. Spec §1 excludes dimensionality-generic
// dynamic layout as a Non-goal — changing it requires recompiling.
const Dimensions = 2

// Point is a Dimensions-dimensional coordinate.
type Point [Dimensions]float64

// Rect is an axis-aligned bounding box.
type Rect struct {
	Min, Max Point
}

// RectOfPoint returns the degenerate rectangle containing exactly p.
func RectOfPoint(p Point) Rect {
	return Rect{Min: p, Max: p}
}

// Contains reports whether r fully encloses o.
func (r Rect) Contains(o Rect) bool {
	for d := 0; d < Dimensions; d++ {
		if o.Min[d] < r.Min[d] || o.Max[d] > r.Max[d] {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether r encloses p.
func (r Rect) ContainsPoint(p Point) bool {
	for d := 0; d < Dimensions; d++ {
		if p[d] < r.Min[d] || p[d] > r.Max[d] {
			return false
		}
	}
	return true
}

// Intersects reports whether r and o share any point.
func (r Rect) Intersects(o Rect) bool {
	for d := 0; d < Dimensions; d++ {
		if r.Min[d] > o.Max[d] || r.Max[d] < o.Min[d] {
			return false
		}
	}
	return true
}

// Union returns the smallest rectangle enclosing both r and o.
func (r Rect) Union(o Rect) Rect {
	var out Rect
	for d := 0; d < Dimensions; d++ {
		out.Min[d] = math.Min(r.Min[d], o.Min[d])
		out.Max[d] = math.Max(r.Max[d], o.Max[d])
	}
	return out
}

// UnionPoint returns the smallest rectangle enclosing r and p.
func (r Rect) UnionPoint(p Point) Rect {
	return r.Union(RectOfPoint(p))
}

// Area returns the (hyper-)volume of r.
func (r Rect) Area() float64 {
	area := 1.0
	for d := 0; d < Dimensions; d++ {
		area *= r.Max[d] - r.Min[d]
	}
	return area
}

// Perimeter returns the sum of r's edge lengths across all axes — the
// quantity the R*-tree split heuristic minimises (spec §4.4.2).
func (r Rect) Perimeter() float64 {
	sum := 0.0
	for d := 0; d < Dimensions; d++ {
		sum += r.Max[d] - r.Min[d]
	}
	return sum
}

// Enlargement returns the increase in area from unioning o into r.
func (r Rect) Enlargement(o Rect) float64 {
	return r.Union(o).Area() - r.Area()
}

// OverlapArea returns the area of intersection between r and o, or 0 if
// they don't intersect.
func (r Rect) OverlapArea(o Rect) float64 {
	area := 1.0
	for d := 0; d < Dimensions; d++ {
		lo := math.Max(r.Min[d], o.Min[d])
		hi := math.Min(r.Max[d], o.Max[d])
		if hi <= lo {
			return 0
		}
		area *= hi - lo
	}
	return area
}

// Center returns r's geometric centre, used by forced reinsertion to rank
// entries by distance from their node's centre.
func (r Rect) Center() Point {
	var c Point
	for d := 0; d < Dimensions; d++ {
		c[d] = (r.Min[d] + r.Max[d]) / 2
	}
	return c
}

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point) float64 {
	sum := 0.0
	for d := 0; d < Dimensions; d++ {
		diff := a[d] - b[d]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
