package mesh

import (
	"iter"
	"math"
)

// cellKey identifies one cube of the uniform grid.
type cellKey struct {
	X, Y, Z int64
}

// SpatialIndex buckets the points of one PointSet into a uniform grid of
// cubes with side CellSize. It is read-only once built; rebuild it whenever
// the underlying points move.
//
// Queries scan the 3x3x3 block of cells around the query point, so a search
// radius larger than CellSize can miss neighbours lying outside the block.
type SpatialIndex struct {
	points   PointSet
	cellSize float64
	grid     map[cellKey][]int
}

// NewSpatialIndex builds the grid over points. cellSize must be positive and
// finite.
func NewSpatialIndex(points PointSet, cellSize float64) (*SpatialIndex, error) {
	if cellSize <= 0 || !isFinite(cellSize) {
		return nil, invalidInputf("cell size must be positive and finite, got %v", cellSize)
	}

	si := &SpatialIndex{
		points:   points,
		cellSize: cellSize,
		grid:     make(map[cellKey][]int, points.Len()/4+1),
	}
	for i, p := range points.points {
		key := si.keyFor(p)
		si.grid[key] = append(si.grid[key], i)
	}
	return si, nil
}

// CellSize returns the grid cell side length.
func (si *SpatialIndex) CellSize() float64 { return si.cellSize }

// Points returns the indexed point set.
func (si *SpatialIndex) Points() PointSet { return si.points }

// CellCount returns the number of non-empty cells.
func (si *SpatialIndex) CellCount() int { return len(si.grid) }

func (si *SpatialIndex) keyFor(p Point) cellKey {
	return cellKey{
		X: int64(math.Floor(p.X / si.cellSize)),
		Y: int64(math.Floor(p.Y / si.cellSize)),
		Z: int64(math.Floor(p.Z / si.cellSize)),
	}
}

// Candidates yields the index of every point in the 3x3x3 block of cells
// around p. Cells are visited in a fixed order and indices within a cell are
// ascending.
func (si *SpatialIndex) Candidates(p Point) iter.Seq[int] {
	return func(yield func(int) bool) {
		base := si.keyFor(p)
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dz := int64(-1); dz <= 1; dz++ {
					bucket := si.grid[cellKey{X: base.X + dx, Y: base.Y + dy, Z: base.Z + dz}]
					for _, idx := range bucket {
						if !yield(idx) {
							return
						}
					}
				}
			}
		}
	}
}

// Query yields the indices of block candidates lying within radius of p.
// Results are exact only when radius <= CellSize.
func (si *SpatialIndex) Query(p Point, radius float64) iter.Seq[int] {
	r2 := radius * radius
	return func(yield func(int) bool) {
		for idx := range si.Candidates(p) {
			if si.points.points[idx].Sub(p).Norm2() <= r2 {
				if !yield(idx) {
					return
				}
			}
		}
	}
}

// Nearest scans the 3x3x3 block around p for the closest point. Exact ties
// go to the lowest index. found is false when the block is empty.
func (si *SpatialIndex) Nearest(p Point) (index int, distance float64, found bool) {
	best := -1
	bestD2 := math.Inf(1)
	for idx := range si.Candidates(p) {
		d2 := si.points.points[idx].Sub(p).Norm2()
		if d2 < bestD2 || (d2 == bestD2 && idx < best) {
			best = idx
			bestD2 = d2
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, math.Sqrt(bestD2), true
}
