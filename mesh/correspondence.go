package mesh

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelThreshold is the point count above which per-point searches
// are split across workers.
const DefaultParallelThreshold = 20000

// SearchOptions controls how per-point nearest-neighbour searches are
// scheduled. Results never depend on these settings.
type SearchOptions struct {
	// Workers caps the number of goroutines. Zero means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`
	// ParallelThreshold is the minimum point count that triggers the worker
	// split. Zero means DefaultParallelThreshold.
	ParallelThreshold int `yaml:"parallelThreshold" json:"parallelThreshold"`
}

func (o SearchOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o SearchOptions) threshold() int {
	if o.ParallelThreshold > 0 {
		return o.ParallelThreshold
	}
	return DefaultParallelThreshold
}

// forEachRange runs fn over [0, n) either inline or split into contiguous
// chunks, one goroutine each. fn must only write to its own index range.
func forEachRange(ctx context.Context, n int, opts SearchOptions, fn func(lo, hi int)) error {
	workers := opts.workers()
	if n < opts.threshold() || workers < 2 {
		fn(0, n)
		return nil
	}

	chunk := (n + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

// FindNearest returns, for every source point in order, the nearest target
// point from the index that lies within maxDistance. Entries with no target
// in range have Found == false. Ties go to the lowest target index.
func FindNearest(ctx context.Context, source PointSet, target *SpatialIndex, maxDistance float64, opts SearchOptions) ([]Match, error) {
	if maxDistance <= 0 || !isFinite(maxDistance) {
		return nil, invalidInputf("max distance must be positive and finite, got %v", maxDistance)
	}

	matches := make([]Match, source.Len())
	err := forEachRange(ctx, source.Len(), opts, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			idx, d, ok := target.Nearest(source.points[i])
			if ok && d <= maxDistance {
				matches[i] = Match{TargetIndex: idx, Distance: d, Found: true}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Correspondences drops unmatched entries and pairs the rest with their
// source index.
func Correspondences(matches []Match) []Correspondence {
	pairs := make([]Correspondence, 0, len(matches))
	for i, m := range matches {
		if m.Found {
			pairs = append(pairs, Correspondence{SourceIndex: i, TargetIndex: m.TargetIndex, Distance: m.Distance})
		}
	}
	return pairs
}
