package mesh

import "github.com/golang/geo/r3"

// Point is a 3D coordinate in working units. It has no identity beyond its
// position; coincident points are allowed.
type Point = r3.Vector

// PointSet is an ordered, immutable sequence of points. The index of a point
// is the only link back to the mesh vertex it came from.
//
// The zero value is an empty set. Operations that need at least one point
// return ErrInvalidInput for empty sets.
type PointSet struct {
	points []Point
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// Size returns the box extent along each axis.
func (b Bounds) Size() Point {
	return b.Max.Sub(b.Min)
}

// Diagonal returns the length of the box diagonal.
func (b Bounds) Diagonal() float64 {
	return b.Size().Norm()
}

// Correspondence pairs a source point with its nearest target point.
// Distance is measured at the time the pair was found.
type Correspondence struct {
	SourceIndex int     `json:"sourceIndex"`
	TargetIndex int     `json:"targetIndex"`
	Distance    float64 `json:"distance"`
}

// Match is the optional nearest-neighbour result for one source point.
// Found is false when no target lies within the search threshold.
type Match struct {
	TargetIndex int
	Distance    float64
	Found       bool
}
