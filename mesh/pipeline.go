package mesh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Report is the outcome of one comparison: the alignment, the deviation
// field of the aligned query and everything needed to paint it.
type Report struct {
	ID             string              `json:"id"`
	Name           string              `json:"name,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	Duration       time.Duration       `json:"duration"`
	ReferenceCount int                 `json:"referenceCount"`
	QueryCount     int                 `json:"queryCount"`
	ICP            ICPResult           `json:"icp"`
	Stats          DeviationStatistics `json:"stats"`
	Grade          Grade               `json:"grade"`
	Scheme         ColorScheme         `json:"scheme"`
	Legend         []LegendBand        `json:"legend"`
	Deviations     []float64           `json:"deviations,omitempty"`
	Colors         []float32           `json:"colors,omitempty"`

	// ReferenceFrame and QueryFrame are set when the meshes were normalized
	// before comparison. Deviations are then in the reference's normalized
	// frame; ReferenceFrame.RestoreDistance maps them back to its units.
	ReferenceFrame *Normalization `json:"referenceFrame,omitempty"`
	QueryFrame     *Normalization `json:"queryFrame,omitempty"`

	// Aligned is the (sampled) aligned query the deviations index into.
	Aligned PointSet `json:"-"`
	// ReferenceOutline is the reference silhouette along the preview axis.
	ReferenceOutline Silhouette `json:"-"`
}

// ReportSummary is a Report without the per-point arrays.
type ReportSummary struct {
	ID             string              `json:"id"`
	Name           string              `json:"name,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	Duration       time.Duration       `json:"duration"`
	ReferenceCount int                 `json:"referenceCount"`
	QueryCount     int                 `json:"queryCount"`
	Converged      bool                `json:"converged"`
	Termination    Termination         `json:"termination"`
	Iterations     int                 `json:"iterations"`
	ResidualError  float64             `json:"residualError"`
	Transform      RigidTransform      `json:"transform"`
	Stats          DeviationStatistics `json:"stats"`
	Grade          Grade               `json:"grade"`
	ReferenceFrame *Normalization      `json:"referenceFrame,omitempty"`
	QueryFrame     *Normalization      `json:"queryFrame,omitempty"`
}

// Summary drops the per-point data.
func (r *Report) Summary() ReportSummary {
	return ReportSummary{
		ID:             r.ID,
		Name:           r.Name,
		CreatedAt:      r.CreatedAt,
		Duration:       r.Duration,
		ReferenceCount: r.ReferenceCount,
		QueryCount:     r.QueryCount,
		Converged:      r.ICP.Converged,
		Termination:    r.ICP.Termination,
		Iterations:     r.ICP.Iterations,
		ResidualError:  r.ICP.Error,
		Transform:      r.ICP.Transform,
		Stats:          r.Stats,
		Grade:          r.Grade,
		ReferenceFrame: r.ReferenceFrame,
		QueryFrame:     r.QueryFrame,
	}
}

// Preview returns a renderer for the report, or an error when the report
// carries no point data (for example after being reloaded from the cache).
func (r *Report) Preview(config PreviewConfig) (*PreviewRenderer, error) {
	pr, err := NewPreviewRenderer(r.Aligned, r.Deviations, r.Stats, r.Scheme, config)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", r.ID, err)
	}
	pr.Reference = r.ReferenceOutline
	pr.Title = r.Name
	if pr.Title == "" {
		pr.Title = r.ID
	}
	return pr, nil
}

// Compare aligns query onto reference, measures the deviation of every
// (sampled) aligned query point and colors the result.
//
// An alignment that stops early for lack of correspondences still yields a
// report built from the best transform found. Cancellation aborts.
func Compare(ctx context.Context, reference, query PointSet, config *Config) (*Report, error) {
	if config == nil {
		def := DefaultConfig()
		config = &def
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	icp, err := Align(ctx, query, reference, config.ICPConfig())
	if err != nil {
		return nil, fmt.Errorf("aligning query: %w", err)
	}
	switch icp.Termination {
	case Cancelled:
		return nil, fmt.Errorf("comparison cancelled: %w", context.Cause(ctx))
	case InsufficientCorrespondences:
		Logf("Compare: alignment stopped with too few correspondences after %d iterations; using best transform", icp.Iterations)
	}

	aligned, err := query.Transform(icp.Transform).Sample(config.Deviation.SamplingStride)
	if err != nil {
		return nil, err
	}

	dev, err := Analyze(ctx, aligned, reference, config.DeviationConfig())
	if err != nil {
		return nil, fmt.Errorf("analyzing deviation: %w", err)
	}

	refBounds, err := reference.Bounds()
	if err != nil {
		return nil, err
	}

	scheme := config.Heatmap.Scheme
	report := &Report{
		ID:               uuid.NewString(),
		CreatedAt:        start.UTC(),
		ReferenceCount:   reference.Len(),
		QueryCount:       query.Len(),
		ICP:              icp,
		Stats:            dev.Stats,
		Grade:            GradeFor(dev.Stats, config.Grades),
		Scheme:           scheme,
		Legend:           LegendBands(dev.Stats, scheme),
		Deviations:       dev.Deviations,
		Colors:           ColorBuffer(dev.Deviations, dev.Stats, scheme),
		Aligned:          aligned,
		ReferenceOutline: SilhouetteOf(reference, config.Preview.Axis, refBounds.Diagonal()/1000),
	}
	report.Duration = time.Since(start)

	Logf("Compare: report %s %s (icp %s after %d iterations, rms=%.6g) in %v",
		report.ID, report.Grade, icp.Termination, icp.Iterations, icp.Error, report.Duration)
	return report, nil
}
