package mesh

import (
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Shape names a synthetic solid.
type Shape string

const (
	ShapeBox      Shape = "box"
	ShapeSphere   Shape = "sphere"
	ShapeCylinder Shape = "cylinder"
)

// DefaultSyntheticCells is the marching cubes resolution along the longest
// side of a synthetic solid.
const DefaultSyntheticCells = 40

// solidFor builds a solid of the given overall size centered on the origin.
func solidFor(shape Shape, size float64) (sdf.SDF3, error) {
	switch shape {
	case ShapeBox:
		return sdf.Box3D(v3.Vec{X: size, Y: size, Z: size}, 0)
	case ShapeSphere:
		return sdf.Sphere3D(size / 2)
	case ShapeCylinder:
		return sdf.Cylinder3D(size, size/2, 0)
	default:
		return nil, invalidInputf("unknown synthetic shape %q", shape)
	}
}

// SyntheticMesh tessellates a box, sphere or cylinder with marching cubes and
// returns its distinct surface vertices, in first-seen order.
func SyntheticMesh(shape Shape, size float64, cells int) (PointSet, error) {
	if size <= 0 || !isFinite(size) {
		return PointSet{}, invalidInputf("synthetic size must be positive and finite, got %v", size)
	}
	if cells < 2 {
		return PointSet{}, invalidInputf("synthetic cells must be >= 2, got %d", cells)
	}

	solid, err := solidFor(shape, size)
	if err != nil {
		return PointSet{}, fmt.Errorf("building %s: %w", shape, err)
	}

	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(solid, renderer)

	seen := make(map[Point]struct{}, len(triangles))
	points := make([]Point, 0, len(triangles))
	for _, tri := range triangles {
		for j := 0; j < 3; j++ {
			v := tri[j]
			p := Point{X: v.X, Y: v.Y, Z: v.Z}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			points = append(points, p)
		}
	}
	Logf("Synthetic: %s size=%.3g cells=%d -> %d triangles, %d vertices", shape, size, cells, len(triangles), len(points))

	return NewPointSet(points)
}
