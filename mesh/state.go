package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultReportCachePath is the default path for the report history cache
const DefaultReportCachePath = ".meshdiff-reports.json"

// ReportStore keeps the most recent reports for the HTTP and MQTT
// endpoints, newest first.
type ReportStore struct {
	mu        sync.RWMutex
	saveMu    sync.Mutex // orders snapshot and write so the newest history lands last
	reports   []*Report
	limit     int
	cachePath string // path to the history cache file; empty disables persistence
}

// NewReportStore creates a store holding at most limit reports.
func NewReportStore(limit int) *ReportStore {
	if limit <= 0 {
		limit = 1
	}
	return &ReportStore{limit: limit}
}

// NewReportStoreWithCache creates a store that persists report summaries to
// cachePath. If the file exists, the cached history is loaded on creation;
// reloaded reports carry no per-point data.
func NewReportStoreWithCache(limit int, cachePath string) *ReportStore {
	rs := NewReportStore(limit)
	rs.cachePath = cachePath
	if cachePath == "" {
		return rs
	}

	history, err := LoadReportHistory(cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("warning: failed to load report cache: %v", err)
		}
		return rs
	}
	for _, s := range history.Reports {
		if len(rs.reports) == rs.limit {
			break
		}
		rs.reports = append(rs.reports, reportFromSummary(s))
	}
	return rs
}

// Add stores a report as the newest entry, evicting the oldest beyond the
// limit, and persists the history when a cache path is configured.
func (rs *ReportStore) Add(r *Report) {
	rs.saveMu.Lock()
	defer rs.saveMu.Unlock()

	rs.mu.Lock()
	rs.reports = append([]*Report{r}, rs.reports...)
	if len(rs.reports) > rs.limit {
		rs.reports = rs.reports[:rs.limit]
	}
	cachePath := rs.cachePath
	history := rs.historyLocked()
	rs.mu.Unlock()

	// Readers are not blocked while the file is written.
	if cachePath != "" {
		if err := SaveReportHistory(cachePath, history); err != nil {
			log.Printf("warning: failed to save report cache: %v", err)
		}
	}
}

// Get returns the report with the given ID.
func (rs *ReportStore) Get(id string) (*Report, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	for _, r := range rs.reports {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Latest returns the newest report, if any.
func (rs *ReportStore) Latest() (*Report, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if len(rs.reports) == 0 {
		return nil, false
	}
	return rs.reports[0], true
}

// List returns summaries of all stored reports, newest first.
func (rs *ReportStore) List() []ReportSummary {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]ReportSummary, len(rs.reports))
	for i, r := range rs.reports {
		out[i] = r.Summary()
	}
	return out
}

// Len returns the number of stored reports.
func (rs *ReportStore) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.reports)
}

func (rs *ReportStore) historyLocked() *ReportHistory {
	h := &ReportHistory{Reports: make([]ReportSummary, len(rs.reports))}
	for i, r := range rs.reports {
		h.Reports[i] = r.Summary()
	}
	return h
}

// ReportHistory is the persisted form of a ReportStore.
type ReportHistory struct {
	Reports     []ReportSummary `json:"reports"`
	LastUpdated int64           `json:"lastUpdated"`
}

// SaveReportHistory writes the history to disk as JSON.
func SaveReportHistory(path string, h *ReportHistory) error {
	h.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report history: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report cache: %w", err)
	}
	return nil
}

// LoadReportHistory reads the history from a JSON file on disk. A missing
// file is reported with an error satisfying os.IsNotExist.
func LoadReportHistory(path string) (*ReportHistory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h ReportHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("unmarshal report cache: %w", err)
	}
	return &h, nil
}

func reportFromSummary(s ReportSummary) *Report {
	return &Report{
		ID:             s.ID,
		Name:           s.Name,
		CreatedAt:      s.CreatedAt,
		Duration:       s.Duration,
		ReferenceCount: s.ReferenceCount,
		QueryCount:     s.QueryCount,
		ICP: ICPResult{
			Transform:   s.Transform,
			Converged:   s.Converged,
			Iterations:  s.Iterations,
			Error:       s.ResidualError,
			Termination: s.Termination,
		},
		Stats:          s.Stats,
		Grade:          s.Grade,
		ReferenceFrame: s.ReferenceFrame,
		QueryFrame:     s.QueryFrame,
	}
}
