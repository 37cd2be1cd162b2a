package mesh

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"
)

// DeviationConfig holds settings for deviation analysis. Distances are in
// working units.
type DeviationConfig struct {
	MatchingThreshold float64 `yaml:"matchingThreshold" json:"matchingThreshold"` // Deviations at or below this count as matching
	CellDivisions     int     `yaml:"cellDivisions" json:"cellDivisions"`         // Grid cells along the reference bounding diagonal
	SamplingStride    int     `yaml:"samplingStride" json:"samplingStride"`       // Keep every n-th query point

	Search SearchOptions `yaml:"-" json:"-"`
}

// DefaultDeviationConfig returns the documented defaults.
func DefaultDeviationConfig() DeviationConfig {
	return DeviationConfig{
		MatchingThreshold: 0.01,
		CellDivisions:     50,
		SamplingStride:    1,
	}
}

// Validate rejects negative thresholds and non-positive divisions or strides.
func (c DeviationConfig) Validate() error {
	if c.MatchingThreshold < 0 || !isFinite(c.MatchingThreshold) {
		return invalidInputf("matchingThreshold must be >= 0 and finite, got %v", c.MatchingThreshold)
	}
	if c.CellDivisions <= 0 {
		return invalidInputf("cellDivisions must be > 0, got %d", c.CellDivisions)
	}
	if c.SamplingStride <= 0 {
		return invalidInputf("samplingStride must be > 0, got %d", c.SamplingStride)
	}
	return nil
}

// DeviationStatistics summarizes a deviation field. It is a derived value;
// recompute it whenever the field or threshold changes.
type DeviationStatistics struct {
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	Mean              float64 `json:"mean"`
	Median            float64 `json:"median"`
	StandardDeviation float64 `json:"standardDeviation"`
	RMS               float64 `json:"rms"`
	MatchingFraction  float64 `json:"matchingFraction"`
	DeviatingFraction float64 `json:"deviatingFraction"`
	MatchingThreshold float64 `json:"matchingThreshold"`
	Count             int     `json:"count"`
}

// DeviationResult holds the per-point deviations, index-aligned with the
// query, and their statistics.
type DeviationResult struct {
	Deviations []float64           `json:"deviations"`
	Stats      DeviationStatistics `json:"stats"`
}

// Analyze measures, for every query point, the distance to the nearest
// reference point. Every point gets a value; there is no distance cutoff.
//
// The grid cell is the reference bounding diagonal divided by CellDivisions,
// but never smaller than the matching threshold. Points whose 3x3x3 block is
// empty or whose best block candidate is farther than one cell fall back to
// an exact kd-tree search, so the reported distance is always the true
// minimum.
func Analyze(ctx context.Context, query, reference PointSet, config DeviationConfig) (DeviationResult, error) {
	if err := config.Validate(); err != nil {
		return DeviationResult{}, err
	}
	if reference.IsEmpty() {
		return DeviationResult{}, invalidInputf("reference point set is empty")
	}
	if query.IsEmpty() {
		return DeviationResult{}, invalidInputf("query point set is empty")
	}

	bounds, err := reference.Bounds()
	if err != nil {
		return DeviationResult{}, err
	}
	cellSize := math.Max(bounds.Diagonal()/float64(config.CellDivisions), config.MatchingThreshold)
	if cellSize <= 0 {
		// All reference points coincide.
		cellSize = 1
	}

	index, err := NewSpatialIndex(reference, cellSize)
	if err != nil {
		return DeviationResult{}, err
	}
	tree := newPointTree(reference)

	deviations := make([]float64, query.Len())
	err = forEachRange(ctx, query.Len(), config.Search, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			p := query.points[i]
			_, d, ok := index.Nearest(p)
			if !ok || d > cellSize {
				d = tree.nearest(p)
			}
			deviations[i] = d
		}
	})
	if err != nil {
		return DeviationResult{}, err
	}

	stats, err := ComputeStatistics(deviations, config.MatchingThreshold)
	if err != nil {
		return DeviationResult{}, err
	}
	Logf("Deviation: %d query points vs %d reference points (cell=%.4g) max=%.6g mean=%.6g matching=%.1f%%",
		query.Len(), reference.Len(), cellSize, stats.Max, stats.Mean, stats.MatchingFraction*100)

	return DeviationResult{Deviations: deviations, Stats: stats}, nil
}

// ComputeStatistics derives DeviationStatistics from a non-empty deviation
// field. The input slice is not modified. Median is the upper median,
// sorted[n/2].
func ComputeStatistics(deviations []float64, matchingThreshold float64) (DeviationStatistics, error) {
	n := len(deviations)
	if n == 0 {
		return DeviationStatistics{}, invalidInputf("statistics of empty deviation field")
	}

	sorted := make([]float64, n)
	copy(sorted, deviations)
	sort.Float64s(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)

	var sumSq float64
	matching := 0
	for _, d := range sorted {
		sumSq += d * d
		if d <= matchingThreshold {
			matching++
		}
	}
	matchingFraction := float64(matching) / float64(n)

	return DeviationStatistics{
		Min:               sorted[0],
		Max:               sorted[n-1],
		Mean:              mean,
		Median:            sorted[n/2],
		StandardDeviation: std,
		RMS:               math.Sqrt(sumSq / float64(n)),
		MatchingFraction:  matchingFraction,
		DeviatingFraction: 1 - matchingFraction,
		MatchingThreshold: matchingThreshold,
		Count:             n,
	}, nil
}

// Grade is a coarse quality verdict for a comparison.
type Grade string

const (
	GradeExcellent   Grade = "excellent"
	GradeGood        Grade = "good"
	GradeNeedsReview Grade = "needs_review"
)

// GradeThresholds are the upper bounds, in working units, of the mean
// deviation for each grade.
type GradeThresholds struct {
	Excellent float64 `yaml:"excellent" json:"excellent"`
	Good      float64 `yaml:"good" json:"good"`
}

// DefaultGradeThresholds returns 0.1 for excellent and 0.3 for good.
func DefaultGradeThresholds() GradeThresholds {
	return GradeThresholds{Excellent: 0.1, Good: 0.3}
}

// GradeFor grades the mean deviation of stats.
func GradeFor(stats DeviationStatistics, th GradeThresholds) Grade {
	switch {
	case stats.Mean <= th.Excellent:
		return GradeExcellent
	case stats.Mean <= th.Good:
		return GradeGood
	default:
		return GradeNeedsReview
	}
}

// pointTree is an exact nearest-neighbour index over a copy of a point set.
type pointTree struct {
	tree *kdtree.Tree
}

func newPointTree(ps PointSet) *pointTree {
	pts := make(treePoints, ps.Len())
	for i, p := range ps.points {
		pts[i] = treePoint(p)
	}
	return &pointTree{tree: kdtree.New(pts, false)}
}

// nearest returns the distance from p to the closest point in the tree.
func (t *pointTree) nearest(p Point) float64 {
	_, d2 := t.tree.Nearest(treePoint(p))
	return math.Sqrt(d2)
}

// treePoint adapts Point to kdtree.Comparable. Distance is squared.
type treePoint Point

func (p treePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(treePoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p treePoint) Dims() int { return 3 }

func (p treePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(treePoint)
	return Point(p).Sub(Point(q)).Norm2()
}

// treePoints satisfies kdtree.Interface.
type treePoints []treePoint

func (p treePoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p treePoints) Len() int                              { return len(p) }
func (p treePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p treePoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(treePlane{treePoints: p, Dim: d}, kdtree.MedianOfRandoms(treePlane{treePoints: p, Dim: d}, 100))
}

// treePlane implements sort.Interface and kdtree.SortSlicer for treePoints.
type treePlane struct {
	treePoints
	kdtree.Dim
}

func (p treePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.treePoints[i].X < p.treePoints[j].X
	case 1:
		return p.treePoints[i].Y < p.treePoints[j].Y
	case 2:
		return p.treePoints[i].Z < p.treePoints[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p treePlane) Slice(start, end int) kdtree.SortSlicer {
	return treePlane{treePoints: p.treePoints[start:end], Dim: p.Dim}
}

func (p treePlane) Swap(i, j int) {
	p.treePoints[i], p.treePoints[j] = p.treePoints[j], p.treePoints[i]
}
