package mesh

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVertexJSON(t *testing.T) {
	vf, err := ParseVertexJSON([]byte(`{"name":"part","vertices":[0,0,0, 1,2,3]}`))
	require.NoError(t, err)
	assert.Equal(t, "part", vf.Name)

	ps, err := vf.PointSet()
	require.NoError(t, err)
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, Point{X: 1, Y: 2, Z: 3}, ps.At(1))
}

func TestParseVertexJSON_Errors(t *testing.T) {
	_, err := ParseVertexJSON([]byte(`{"vertices":[0,0]}`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseVertexJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseVertexFile_DefaultsNameToFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bracket.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"vertices":[1,1,1]}`), 0644))

	vf, err := ParseVertexFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bracket.json", vf.Name)

	_, err = ParseVertexFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestWriteVertexFile_RoundTrip(t *testing.T) {
	ps := mustPointSet(t, unitCube()...)
	path := filepath.Join(t.TempDir(), "nested", "cube.json")

	require.NoError(t, WriteVertexFile(path, NewVertexFile("cube", ps)))

	loaded, err := LoadPointSet(path)
	require.NoError(t, err)
	assert.Equal(t, ps.Points(), loaded.Points())
}

func TestComparisonJob_Run(t *testing.T) {
	cube := mustPointSet(t, unitCube()...)
	shifted := cube.Transform(TranslationTransform(Point{Z: 0.04}))

	job := &ComparisonJob{
		Name:      "cube check",
		Reference: *NewVertexFile("reference", cube),
		Query:     *NewVertexFile("query", shifted),
	}

	report, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "cube check", report.Name)
	assert.True(t, report.ICP.Converged)
	assert.Equal(t, GradeExcellent, report.Grade)
}

func scaledCubeJob(t *testing.T, scale float64, offset Point) *ComparisonJob {
	t.Helper()
	pts := unitCube()
	for i, p := range pts {
		pts[i] = p.Mul(scale)
	}
	reference := mustPointSet(t, pts...)
	return &ComparisonJob{
		Name:      "mm part",
		Reference: *NewVertexFile("reference", reference),
		Query:     *NewVertexFile("query", reference.Transform(TranslationTransform(offset))),
	}
}

func TestComparisonJob_NormalizesMillimetreInput(t *testing.T) {
	job := scaledCubeJob(t, 100, Point{X: 50})

	report, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Converged, report.ICP.Termination)
	assert.InDelta(t, 0, report.Stats.Max, 1e-9)
	assert.Equal(t, 1.0, report.Stats.MatchingFraction)
	assert.Equal(t, GradeExcellent, report.Grade)

	require.NotNil(t, report.ReferenceFrame)
	require.NotNil(t, report.QueryFrame)
	assert.InDelta(t, 0.04, report.ReferenceFrame.Scale, 1e-15)
	assert.InDelta(t, 0.04, report.QueryFrame.Scale, 1e-15)
	assert.True(t, pointsNear(Point{}, report.ReferenceFrame.Center, 1e-12))
	assert.True(t, pointsNear(Point{X: 50}, report.QueryFrame.Center, 1e-12))

	summary := report.Summary()
	assert.Equal(t, report.ReferenceFrame, summary.ReferenceFrame)
}

func TestComparisonJob_RawFrameWhenNormalizeDisabled(t *testing.T) {
	job := scaledCubeJob(t, 100, Point{X: 50})
	config := DefaultConfig()
	config.Preprocess.Normalize = false

	report, err := job.Run(context.Background(), &config)
	require.NoError(t, err)
	assert.Equal(t, InsufficientCorrespondences, report.ICP.Termination)
	assert.InDelta(t, 50, report.Stats.Max, 1e-9)
	assert.Zero(t, report.Stats.MatchingFraction)
	assert.Nil(t, report.ReferenceFrame)
	assert.Nil(t, report.QueryFrame)
}

func TestComparisonJob_BadMesh(t *testing.T) {
	job, err := ParseComparisonJob([]byte(`{"reference":{"name":"ref","vertices":[0,0,0]},"query":{"vertices":[1,"x"]}}`))
	assert.Error(t, err, "non-numeric vertex")
	assert.Nil(t, job)

	job, err = ParseComparisonJob([]byte(`{"reference":{"name":"ref","vertices":[0,0]},"query":{"vertices":[0,0,0]}}`))
	require.NoError(t, err)
	_, _, err = job.PointSets()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), `reference: mesh "ref"`)
}
