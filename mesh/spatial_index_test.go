package mesh

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpatialIndex_InvalidCellSize(t *testing.T) {
	ps := mustPointSet(t, Point{})
	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewSpatialIndex(ps, size)
		assert.ErrorIs(t, err, ErrInvalidInput, "cell size %v", size)
	}
}

func TestSpatialIndex_EveryPointInOneBucket(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ps := mustPointSet(t, randomCloud(500, 10, rng)...)
	si, err := NewSpatialIndex(ps, 0.75)
	require.NoError(t, err)

	seen := make(map[int]int)
	for key, bucket := range si.grid {
		for _, idx := range bucket {
			seen[idx]++
			assert.Equal(t, si.keyFor(ps.At(idx)), key)
		}
	}
	assert.Len(t, seen, ps.Len())
	for idx, n := range seen {
		assert.Equal(t, 1, n, "point %d", idx)
	}
}

func TestSpatialIndex_NegativeCoordinatesFloor(t *testing.T) {
	ps := mustPointSet(t, Point{X: -0.1, Y: -0.1, Z: -0.1}, Point{X: 0.1, Y: 0.1, Z: 0.1})
	si, err := NewSpatialIndex(ps, 1)
	require.NoError(t, err)

	assert.Equal(t, cellKey{-1, -1, -1}, si.keyFor(ps.At(0)))
	assert.Equal(t, cellKey{0, 0, 0}, si.keyFor(ps.At(1)))
	assert.Equal(t, 2, si.CellCount())
}

func TestSpatialIndex_Query(t *testing.T) {
	ps := mustPointSet(t,
		Point{X: 0, Y: 0, Z: 0},
		Point{X: 0.5, Y: 0, Z: 0},
		Point{X: 0.9, Y: 0.4, Z: 0},
		Point{X: 5, Y: 5, Z: 5},
	)
	si, err := NewSpatialIndex(ps, 1)
	require.NoError(t, err)

	got := slices.Sorted(si.Query(Point{}, 0.6))
	assert.Equal(t, []int{0, 1}, got)

	got = slices.Sorted(si.Query(Point{}, 1))
	assert.Equal(t, []int{0, 1, 2}, got)

	assert.Empty(t, slices.Collect(si.Query(Point{X: 20}, 1)))
}

func TestSpatialIndex_QueryStopsEarly(t *testing.T) {
	ps := mustPointSet(t, Point{}, Point{X: 0.1}, Point{X: 0.2})
	si, err := NewSpatialIndex(ps, 1)
	require.NoError(t, err)

	n := 0
	for range si.Query(Point{}, 1) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestSpatialIndex_NearestTieGoesToLowestIndex(t *testing.T) {
	// Both points are exactly 1 away from the origin and sit in different
	// cells, so the cell visiting order would favour index 1.
	ps := mustPointSet(t, Point{X: 1}, Point{X: -1})
	si, err := NewSpatialIndex(ps, 2)
	require.NoError(t, err)

	idx, d, ok := si.Nearest(Point{})
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1.0, d)
}

func TestSpatialIndex_NearestEmptyBlock(t *testing.T) {
	ps := mustPointSet(t, Point{X: 10})
	si, err := NewSpatialIndex(ps, 1)
	require.NoError(t, err)

	_, _, ok := si.Nearest(Point{})
	assert.False(t, ok)
}

func TestSpatialIndex_NearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	ps := mustPointSet(t, randomCloud(400, 5, rng)...)
	si, err := NewSpatialIndex(ps, 1)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		q := Point{X: rng.Float64() * 5, Y: rng.Float64() * 5, Z: rng.Float64() * 5}
		idx, d, ok := si.Nearest(q)

		best, bestD := -1, math.Inf(1)
		for j, p := range ps.Points() {
			if dd := p.Sub(q).Norm(); dd < bestD {
				best, bestD = j, dd
			}
		}
		// Exact whenever the true nearest lies within one cell.
		if bestD <= si.CellSize() {
			require.True(t, ok)
			assert.Equal(t, best, idx)
			assert.InDelta(t, bestD, d, 1e-12)
		}
	}
}
