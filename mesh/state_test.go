package mesh

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport(id string, mean float64) *Report {
	return &Report{
		ID:        id,
		Name:      "report " + id,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ICP: ICPResult{
			Transform:   TranslationTransform(Point{X: 0.1}),
			Converged:   true,
			Iterations:  3,
			Termination: Converged,
		},
		Stats:      DeviationStatistics{Mean: mean, Max: mean * 2, Count: 4},
		Grade:      GradeFor(DeviationStatistics{Mean: mean}, DefaultGradeThresholds()),
		Deviations: []float64{0, mean, mean, mean * 2},
	}
}

// ---------------------------------------------------------------------------
// NewReportStore
// ---------------------------------------------------------------------------

func TestNewReportStore(t *testing.T) {
	rs := NewReportStore(5)
	assert.Equal(t, 0, rs.Len())
	_, ok := rs.Latest()
	assert.False(t, ok)
	assert.Empty(t, rs.List())

	assert.Equal(t, 1, NewReportStore(0).limit, "non-positive limit falls back to 1")
}

// ---------------------------------------------------------------------------
// Add / Get / Latest / List
// ---------------------------------------------------------------------------

func TestReportStore_NewestFirstAndEviction(t *testing.T) {
	rs := NewReportStore(3)
	for i := 0; i < 5; i++ {
		rs.Add(testReport(fmt.Sprintf("r%d", i), 0.05))
	}

	assert.Equal(t, 3, rs.Len())
	latest, ok := rs.Latest()
	require.True(t, ok)
	assert.Equal(t, "r4", latest.ID)

	var ids []string
	for _, s := range rs.List() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"r4", "r3", "r2"}, ids)

	_, ok = rs.Get("r0")
	assert.False(t, ok, "oldest report should be evicted")
	got, ok := rs.Get("r3")
	require.True(t, ok)
	assert.Equal(t, "report r3", got.Name)
}

func TestReportStore_ConcurrentAccess(t *testing.T) {
	rs := NewReportStore(10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rs.Add(testReport(fmt.Sprintf("g%d-%d", i, j), 0.1))
				rs.List()
				rs.Latest()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, rs.Len())
}

// ---------------------------------------------------------------------------
// Cache persistence
// ---------------------------------------------------------------------------

func TestReportStore_CacheReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "reports.json")

	rs := NewReportStoreWithCache(5, path)
	rs.Add(testReport("a", 0.05))
	rs.Add(testReport("b", 0.5))

	_, err := os.Stat(path)
	require.NoError(t, err, "cache file should be written on Add")

	reloaded := NewReportStoreWithCache(5, path)
	require.Equal(t, 2, reloaded.Len())

	latest, ok := reloaded.Latest()
	require.True(t, ok)
	assert.Equal(t, "b", latest.ID)
	assert.Equal(t, GradeNeedsReview, latest.Grade)
	assert.Equal(t, Converged, latest.ICP.Termination)
	assert.True(t, latest.ICP.Transform.ApproxEqual(TranslationTransform(Point{X: 0.1}), 1e-12))
	assert.Nil(t, latest.Deviations, "per-point data is not cached")

	_, err = latest.Preview(DefaultPreviewConfig())
	assert.Error(t, err)
}

func TestReportStore_CacheRespectsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.json")
	rs := NewReportStoreWithCache(4, path)
	for i := 0; i < 4; i++ {
		rs.Add(testReport(fmt.Sprintf("r%d", i), 0.1))
	}

	small := NewReportStoreWithCache(2, path)
	assert.Equal(t, 2, small.Len())
	latest, _ := small.Latest()
	assert.Equal(t, "r3", latest.ID)
}

func TestReportStore_ConcurrentAddsLeaveNewestCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.json")
	rs := NewReportStoreWithCache(6, path)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				rs.Add(testReport(fmt.Sprintf("w%d-%d", i, j), 0.1))
			}
		}(i)
	}
	wg.Wait()

	want := rs.List()
	history, err := LoadReportHistory(path)
	require.NoError(t, err)
	require.Len(t, history.Reports, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, history.Reports[i].ID, "cache entry %d", i)
	}
}

func TestReportStore_CacheKeepsFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.json")
	r := testReport("framed", 0.05)
	r.ReferenceFrame = &Normalization{Center: Point{X: 1}, Scale: 0.5}
	r.QueryFrame = &Normalization{Center: Point{Y: 2}, Scale: 0.25}
	NewReportStoreWithCache(3, path).Add(r)

	latest, ok := NewReportStoreWithCache(3, path).Latest()
	require.True(t, ok)
	assert.Equal(t, r.ReferenceFrame, latest.ReferenceFrame)
	assert.Equal(t, r.QueryFrame, latest.QueryFrame)
}

func TestReportStore_CorruptCacheStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	rs := NewReportStoreWithCache(3, path)
	assert.Equal(t, 0, rs.Len())
}

func TestLoadReportHistory_Missing(t *testing.T) {
	_, err := LoadReportHistory(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}
