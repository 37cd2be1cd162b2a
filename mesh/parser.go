package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// VertexFile is the on-disk form of a preprocessed mesh: a name and a flat
// row-major vertex buffer with three coordinates per vertex.
type VertexFile struct {
	Name     string    `json:"name,omitempty"`
	Vertices []float64 `json:"vertices"`
}

// PointSet validates the buffer and converts it.
func (vf *VertexFile) PointSet() (PointSet, error) {
	ps, err := PointSetFromBuffer(vf.Vertices)
	if err != nil {
		if vf.Name != "" {
			return PointSet{}, fmt.Errorf("mesh %q: %w", vf.Name, err)
		}
		return PointSet{}, err
	}
	return ps, nil
}

// NewVertexFile wraps a point set for writing.
func NewVertexFile(name string, ps PointSet) *VertexFile {
	return &VertexFile{Name: name, Vertices: ps.Buffer()}
}

// ParseVertexFile reads and parses a vertex buffer JSON file
func ParseVertexFile(path string) (*VertexFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	vf, err := ParseVertexJSON(data)
	if err != nil {
		return nil, err
	}
	if vf.Name == "" {
		vf.Name = filepath.Base(path)
	}
	return vf, nil
}

// ParseVertexJSON parses vertex buffer JSON data
func ParseVertexJSON(data []byte) (*VertexFile, error) {
	var vf VertexFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if len(vf.Vertices)%3 != 0 {
		return nil, invalidInputf("vertex buffer length %d is not a multiple of 3", len(vf.Vertices))
	}
	return &vf, nil
}

// LoadPointSet reads a vertex buffer file straight into a PointSet.
func LoadPointSet(path string) (PointSet, error) {
	vf, err := ParseVertexFile(path)
	if err != nil {
		return PointSet{}, err
	}
	return vf.PointSet()
}

// WriteVertexFile writes vf as JSON, creating parent directories.
func WriteVertexFile(path string, vf *VertexFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.Marshal(vf)
	if err != nil {
		return fmt.Errorf("marshaling vertex file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing vertex file: %w", err)
	}
	return nil
}

// ComparisonJob is the payload accepted over HTTP and MQTT: two meshes to
// compare, optionally with a name for the resulting report.
type ComparisonJob struct {
	Name      string     `json:"name,omitempty"`
	Reference VertexFile `json:"reference"`
	Query     VertexFile `json:"query"`
}

// ParseComparisonJob decodes and validates a job payload.
func ParseComparisonJob(data []byte) (*ComparisonJob, error) {
	var job ComparisonJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job JSON: %w", err)
	}
	return &job, nil
}

// PointSets converts both meshes.
func (j *ComparisonJob) PointSets() (reference, query PointSet, err error) {
	reference, err = j.Reference.PointSet()
	if err != nil {
		return PointSet{}, PointSet{}, fmt.Errorf("reference: %w", err)
	}
	query, err = j.Query.PointSet()
	if err != nil {
		return PointSet{}, PointSet{}, fmt.Errorf("query: %w", err)
	}
	return reference, query, nil
}

// Run converts the meshes, normalizes them when config.Preprocess asks for
// it and compares them. The applied frames are recorded on the report.
func (j *ComparisonJob) Run(ctx context.Context, config *Config) (*Report, error) {
	if config == nil {
		def := DefaultConfig()
		config = &def
	}

	reference, query, err := j.PointSets()
	if err != nil {
		return nil, err
	}

	var refFrame, queryFrame *Normalization
	if config.Preprocess.Normalize {
		var rn, qn Normalization
		if reference, rn, err = reference.Normalize(config.Preprocess.Extent); err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}
		if query, qn, err = query.Normalize(config.Preprocess.Extent); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		refFrame, queryFrame = &rn, &qn
		Logf("Normalized %q: reference scale %.6g, query scale %.6g", j.Name, rn.Scale, qn.Scale)
	}

	report, err := Compare(ctx, reference, query, config)
	if err != nil {
		return nil, err
	}
	report.Name = j.Name
	report.ReferenceFrame = refFrame
	report.QueryFrame = queryFrame
	return report, nil
}
