package mesh

import (
	"context"
	"math"
)

// ICPConfig holds configuration for the ICP algorithm.
// All distances are in the same working units as the input point sets.
type ICPConfig struct {
	MaxIterations           int     `yaml:"maxIterations" json:"maxIterations"`                     // Iteration budget
	Tolerance               float64 `yaml:"tolerance" json:"tolerance"`                             // Stop when the residual changes by less than this
	CorrespondenceThreshold float64 `yaml:"correspondenceThreshold" json:"correspondenceThreshold"` // Maximum pairing distance

	Search SearchOptions `yaml:"-" json:"-"`
}

// DefaultICPConfig returns the documented defaults.
func DefaultICPConfig() ICPConfig {
	return ICPConfig{
		MaxIterations:           50,
		Tolerance:               1e-6,
		CorrespondenceThreshold: 0.5,
	}
}

// Validate rejects non-positive budgets, tolerances and thresholds.
func (c ICPConfig) Validate() error {
	if c.MaxIterations <= 0 {
		return invalidInputf("maxIterations must be > 0, got %d", c.MaxIterations)
	}
	if c.Tolerance <= 0 || !isFinite(c.Tolerance) {
		return invalidInputf("tolerance must be positive and finite, got %v", c.Tolerance)
	}
	if c.CorrespondenceThreshold <= 0 || !isFinite(c.CorrespondenceThreshold) {
		return invalidInputf("correspondenceThreshold must be positive and finite, got %v", c.CorrespondenceThreshold)
	}
	return nil
}

// ICPResult contains the result of an alignment run.
type ICPResult struct {
	Transform   RigidTransform `json:"transform"`   // Cumulative source-to-target transform
	Converged   bool           `json:"converged"`   // Termination == Converged
	Iterations  int            `json:"iterations"`  // Completed iterations
	Error       float64        `json:"error"`       // RMS pair distance of the last completed iteration
	Termination Termination    `json:"termination"` // Terminal state
	Residuals   []float64      `json:"residuals"`   // RMS per completed iteration
}

// Align registers source onto target with point-to-point ICP.
//
// Each iteration pairs every moved source point with its nearest target
// within CorrespondenceThreshold, estimates the rigid transform for those
// pairs, moves the source and folds the increment into the cumulative
// transform. The run stops when the RMS residual changes by less than
// Tolerance, when the budget runs out, when fewer than three pairs are found
// or when ctx is done. ctx is checked once per iteration.
//
// Only invalid input is reported as an error; every other outcome is a
// result carrying the best transform found so far.
func Align(ctx context.Context, source, target PointSet, config ICPConfig) (ICPResult, error) {
	if err := config.Validate(); err != nil {
		return ICPResult{}, err
	}
	if source.IsEmpty() {
		return ICPResult{}, invalidInputf("source point set is empty")
	}
	if target.IsEmpty() {
		return ICPResult{}, invalidInputf("target point set is empty")
	}

	// Target never moves, so one grid serves every iteration.
	index, err := NewSpatialIndex(target, config.CorrespondenceThreshold)
	if err != nil {
		return ICPResult{}, err
	}

	result := ICPResult{
		Transform:   IdentityTransform(),
		Termination: MaxIterationsReached,
	}
	current := source
	prevResidual := math.Inf(1)
	search := context.WithoutCancel(ctx)

	for iter := 0; iter < config.MaxIterations; iter++ {
		if ctx.Err() != nil {
			result.Termination = Cancelled
			Logf("ICP: cancelled after %d iterations (rms=%.6g)", result.Iterations, result.Error)
			return result, nil
		}

		matches, err := FindNearest(search, current, index, config.CorrespondenceThreshold, config.Search)
		if err != nil {
			return result, err
		}
		pairs := Correspondences(matches)
		if len(pairs) < 3 {
			result.Termination = InsufficientCorrespondences
			Logf("ICP: iteration %d found %d correspondences, stopping", iter+1, len(pairs))
			return result, nil
		}

		srcPts := make([]Point, len(pairs))
		tgtPts := make([]Point, len(pairs))
		for i, c := range pairs {
			srcPts[i] = current.points[c.SourceIndex]
			tgtPts[i] = target.points[c.TargetIndex]
		}

		incremental, err := EstimateRigidTransform(srcPts, tgtPts)
		if err != nil {
			return result, err
		}

		current = current.Transform(incremental)
		result.Transform = result.Transform.Then(incremental)
		residual := pairResidual(incremental, srcPts, tgtPts)

		result.Iterations = iter + 1
		result.Error = residual
		result.Residuals = append(result.Residuals, residual)
		Logf("ICP: iteration %d pairs=%d rms=%.6g", iter+1, len(pairs), residual)

		if math.Abs(prevResidual-residual) < config.Tolerance {
			result.Converged = true
			result.Termination = Converged
			return result, nil
		}
		prevResidual = residual
	}

	Logf("ICP: no convergence after %d iterations (rms=%.6g)", result.Iterations, result.Error)
	return result, nil
}

// pairResidual is the RMS distance between t(src[i]) and tgt[i].
func pairResidual(t RigidTransform, src, tgt []Point) float64 {
	if len(src) == 0 {
		return 0
	}
	var sum float64
	for i := range src {
		sum += t.Apply(src[i]).Sub(tgt[i]).Norm2()
	}
	return math.Sqrt(sum / float64(len(src)))
}
