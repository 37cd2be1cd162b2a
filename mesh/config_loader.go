package mesh

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the unified configuration for comparisons and the service
// around them.
type Config struct {
	Preprocess        PreprocessConfig `yaml:"preprocess" json:"preprocess"`
	Alignment         ICPConfig        `yaml:"alignment" json:"alignment"`
	Deviation         DeviationConfig  `yaml:"deviation" json:"deviation"`
	Heatmap           HeatmapConfig    `yaml:"heatmap" json:"heatmap"`
	Grades            GradeThresholds  `yaml:"grades" json:"grades"`
	Workers           int              `yaml:"workers" json:"workers"`                     // 0 = GOMAXPROCS
	ParallelThreshold int              `yaml:"parallelThreshold" json:"parallelThreshold"` // Point count that triggers the worker split
	Preview           PreviewConfig    `yaml:"preview" json:"preview"`
	MQTT              MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	ReportCache       string           `yaml:"reportCache,omitempty" json:"reportCache,omitempty"` // JSON file for report history; empty disables
	ReportHistory     int              `yaml:"reportHistory" json:"reportHistory"`                 // Reports kept in memory
}

// PreprocessConfig controls the frame vertex files and jobs are compared in.
// With Normalize set, each mesh is centered on its bounding-box center and
// scaled so its largest side is Extent before alignment.
type PreprocessConfig struct {
	Normalize bool    `yaml:"normalize" json:"normalize"`
	Extent    float64 `yaml:"extent" json:"extent"`
}

// HeatmapConfig selects the color scheme.
type HeatmapConfig struct {
	Scheme ColorScheme `yaml:"scheme" json:"scheme"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// DefaultConfig returns a configuration with every documented default.
func DefaultConfig() Config {
	return Config{
		Preprocess:        PreprocessConfig{Normalize: true, Extent: DefaultNormalizedExtent},
		Alignment:         DefaultICPConfig(),
		Deviation:         DefaultDeviationConfig(),
		Heatmap:           HeatmapConfig{Scheme: Binary},
		Grades:            DefaultGradeThresholds(),
		ParallelThreshold: DefaultParallelThreshold,
		Preview:           DefaultPreviewConfig(),
		MQTT: MQTTConfig{
			PublishPrefix: "meshdiff",
			ClientID:      "meshdiff",
		},
		ReportHistory: 20,
	}
}

// Validate checks every section. Errors wrap ErrInvalidInput.
func (c *Config) Validate() error {
	if c.Preprocess.Normalize && (c.Preprocess.Extent <= 0 || !isFinite(c.Preprocess.Extent)) {
		return invalidInputf("preprocess.extent must be positive and finite, got %v", c.Preprocess.Extent)
	}
	if err := c.Alignment.Validate(); err != nil {
		return fmt.Errorf("alignment: %w", err)
	}
	if err := c.Deviation.Validate(); err != nil {
		return fmt.Errorf("deviation: %w", err)
	}
	if c.Heatmap.Scheme != Binary && c.Heatmap.Scheme != FiveBand {
		return invalidInputf("heatmap.scheme %v is not supported", c.Heatmap.Scheme)
	}
	if c.Grades.Excellent < 0 || c.Grades.Good < c.Grades.Excellent {
		return invalidInputf("grades must satisfy 0 <= excellent <= good, got %v/%v", c.Grades.Excellent, c.Grades.Good)
	}
	if c.Workers < 0 {
		return invalidInputf("workers must be >= 0, got %d", c.Workers)
	}
	if c.ParallelThreshold < 0 {
		return invalidInputf("parallelThreshold must be >= 0, got %d", c.ParallelThreshold)
	}
	if c.ReportHistory <= 0 {
		return invalidInputf("reportHistory must be > 0, got %d", c.ReportHistory)
	}
	if err := c.Preview.Validate(); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	return nil
}

// SearchOptions returns the worker settings shared by both search passes.
func (c *Config) SearchOptions() SearchOptions {
	return SearchOptions{Workers: c.Workers, ParallelThreshold: c.ParallelThreshold}
}

// ICPConfig returns the alignment section with worker settings applied.
func (c *Config) ICPConfig() ICPConfig {
	cfg := c.Alignment
	cfg.Search = c.SearchOptions()
	return cfg
}

// DeviationConfig returns the deviation section with worker settings applied.
func (c *Config) DeviationConfig() DeviationConfig {
	cfg := c.Deviation
	cfg.Search = c.SearchOptions()
	return cfg
}

// LoadConfig loads the configuration from a YAML file. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
