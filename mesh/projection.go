package mesh

import (
	"cmp"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Axis names the coordinate an orthographic projection drops.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
)

// project drops axis from p. The remaining coordinates keep a right-handed
// orientation when viewed from the positive end of axis.
func project(p Point, axis Axis) orb.Point {
	switch axis {
	case AxisX:
		return orb.Point{p.Y, p.Z}
	case AxisY:
		return orb.Point{p.Z, p.X}
	default:
		return orb.Point{p.X, p.Y}
	}
}

// projectSet projects every point of ps.
func projectSet(ps PointSet, axis Axis) orb.MultiPoint {
	mp := make(orb.MultiPoint, ps.Len())
	for i, p := range ps.points {
		mp[i] = project(p, axis)
	}
	return mp
}

// Silhouette is the simplified convex outline of a point set seen along an
// axis, with its enclosed area.
type Silhouette struct {
	Ring orb.Ring
	Area float64
}

// SilhouetteOf projects ps along axis and returns its convex outline,
// simplified with Douglas-Peucker at tolerance (0 keeps every hull vertex).
// A projection without area gives an empty silhouette.
func SilhouetteOf(ps PointSet, axis Axis, tolerance float64) Silhouette {
	ring := outline(ps, axis)
	if ring == nil {
		return Silhouette{}
	}
	if tolerance > 0 {
		if simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(ring.Clone()).(orb.Ring); ok && len(simplified) >= 4 {
			ring = simplified
		}
	}
	return Silhouette{Ring: ring, Area: math.Abs(planar.Area(ring))}
}

// outline is the closed, counter-clockwise convex hull of ps seen along
// axis, or nil when every projected point lies on one line.
func outline(ps PointSet, axis Axis) orb.Ring {
	pts := projectSet(ps, axis)
	slices.SortFunc(pts, func(a, b orb.Point) int {
		if c := cmp.Compare(a.X(), b.X()); c != 0 {
			return c
		}
		return cmp.Compare(a.Y(), b.Y())
	})
	pts = slices.Compact(pts)
	if len(pts) < 3 {
		return nil
	}

	lower := leftChain(pts)
	slices.Reverse(pts)
	upper := leftChain(pts)

	// upper runs from the rightmost point back to lower[0], closing the ring.
	ring := append(orb.Ring(lower[:len(lower)-1]), upper...)
	if len(ring) < 4 {
		return nil
	}
	return ring
}

// leftChain walks pts in order and keeps only strict left turns.
func leftChain(pts []orb.Point) []orb.Point {
	chain := make([]orb.Point, 0, len(pts))
	for _, p := range pts {
		for n := len(chain); n >= 2 && turn(chain[n-2], chain[n-1], p) <= 0; n = len(chain) {
			chain = chain[:n-1]
		}
		chain = append(chain, p)
	}
	return chain
}

// turn is twice the signed area of triangle abc, positive when c lies left
// of the line from a to b.
func turn(a, b, c orb.Point) float64 {
	return (b.X()-a.X())*(c.Y()-a.Y()) - (b.Y()-a.Y())*(c.X()-a.X())
}
