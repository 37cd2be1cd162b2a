package mesh

import (
	"math"
)

// NewPointSet copies points into a new PointSet. Every coordinate must be
// finite.
func NewPointSet(points []Point) (PointSet, error) {
	cp := make([]Point, len(points))
	for i, p := range points {
		if !isFinitePoint(p) {
			return PointSet{}, invalidInputf("point %d is not finite: %v", i, p)
		}
		cp[i] = p
	}
	return PointSet{points: cp}, nil
}

// PointSetFromBuffer builds a PointSet from a row-major vertex buffer holding
// three coordinates per vertex.
func PointSetFromBuffer(buf []float64) (PointSet, error) {
	if len(buf)%3 != 0 {
		return PointSet{}, invalidInputf("vertex buffer length %d is not a multiple of 3", len(buf))
	}
	points := make([]Point, len(buf)/3)
	for i := range points {
		p := Point{X: buf[i*3], Y: buf[i*3+1], Z: buf[i*3+2]}
		if !isFinitePoint(p) {
			return PointSet{}, invalidInputf("vertex %d is not finite: %v", i, p)
		}
		points[i] = p
	}
	return PointSet{points: points}, nil
}

// PointSetFromFloat32 is PointSetFromBuffer for single-precision buffers, the
// layout most mesh loaders produce.
func PointSetFromFloat32(buf []float32) (PointSet, error) {
	wide := make([]float64, len(buf))
	for i, v := range buf {
		wide[i] = float64(v)
	}
	return PointSetFromBuffer(wide)
}

// Len returns the number of points.
func (ps PointSet) Len() int { return len(ps.points) }

// IsEmpty reports whether the set has no points.
func (ps PointSet) IsEmpty() bool { return len(ps.points) == 0 }

// At returns point i. It panics if i is out of range, like slice indexing.
func (ps PointSet) At(i int) Point { return ps.points[i] }

// Points returns a copy of the points.
func (ps PointSet) Points() []Point {
	cp := make([]Point, len(ps.points))
	copy(cp, ps.points)
	return cp
}

// Buffer returns the points as a flat row-major buffer.
func (ps PointSet) Buffer() []float64 {
	buf := make([]float64, 0, len(ps.points)*3)
	for _, p := range ps.points {
		buf = append(buf, p.X, p.Y, p.Z)
	}
	return buf
}

// Bounds returns the axis-aligned bounding box of the set.
func (ps PointSet) Bounds() (Bounds, error) {
	if ps.IsEmpty() {
		return Bounds{}, invalidInputf("bounds of empty point set")
	}
	b := Bounds{Min: ps.points[0], Max: ps.points[0]}
	for _, p := range ps.points[1:] {
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Min.Z = math.Min(b.Min.Z, p.Z)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
		b.Max.Z = math.Max(b.Max.Z, p.Z)
	}
	return b, nil
}

// Centroid returns the mean of all points.
func (ps PointSet) Centroid() (Point, error) {
	if ps.IsEmpty() {
		return Point{}, invalidInputf("centroid of empty point set")
	}
	return Centroid(ps.points), nil
}

// Transform returns a new PointSet with t applied to every point. The
// receiver is not modified.
func (ps PointSet) Transform(t RigidTransform) PointSet {
	out := make([]Point, len(ps.points))
	for i, p := range ps.points {
		out[i] = t.Apply(p)
	}
	return PointSet{points: out}
}

// Sample keeps every stride-th point, starting with the first. Order is
// preserved. A stride of 1 returns the set unchanged.
func (ps PointSet) Sample(stride int) (PointSet, error) {
	if stride < 1 {
		return PointSet{}, invalidInputf("sampling stride must be >= 1, got %d", stride)
	}
	if stride == 1 {
		return ps, nil
	}
	out := make([]Point, 0, (len(ps.points)+stride-1)/stride)
	for i := 0; i < len(ps.points); i += stride {
		out = append(out, ps.points[i])
	}
	return PointSet{points: out}, nil
}

// DefaultNormalizedExtent is the largest bounding-box side after Normalize.
const DefaultNormalizedExtent = 4.0

// Normalization records how Normalize moved a set: p' = (p - Center) * Scale.
type Normalization struct {
	Center Point   `json:"center"`
	Scale  float64 `json:"scale"`
}

// Apply maps a point from original units into the normalized frame.
func (n Normalization) Apply(p Point) Point {
	return p.Sub(n.Center).Mul(n.Scale)
}

// Restore maps a normalized point back to original units.
func (n Normalization) Restore(p Point) Point {
	return p.Mul(1 / n.Scale).Add(n.Center)
}

// RestoreDistance converts a normalized length to original units.
func (n Normalization) RestoreDistance(d float64) float64 {
	return d / n.Scale
}

// Normalize centers the set on its bounding-box center and scales it
// uniformly so its largest side equals extent. A set with no extent (a
// single point, or all points coincident) is only centered.
func (ps PointSet) Normalize(extent float64) (PointSet, Normalization, error) {
	if extent <= 0 || !isFinite(extent) {
		return PointSet{}, Normalization{}, invalidInputf("normalized extent must be positive and finite, got %v", extent)
	}
	b, err := ps.Bounds()
	if err != nil {
		return PointSet{}, Normalization{}, err
	}

	size := b.Size()
	largest := math.Max(size.X, math.Max(size.Y, size.Z))
	n := Normalization{Center: b.Min.Add(b.Max).Mul(0.5), Scale: 1}
	if largest > 0 {
		n.Scale = extent / largest
	}

	out := make([]Point, len(ps.points))
	for i, p := range ps.points {
		out[i] = n.Apply(p)
	}
	return PointSet{points: out}, n, nil
}

// Centroid calculates the center of mass of a set of points.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sum Point
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isFinitePoint(p Point) bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}
