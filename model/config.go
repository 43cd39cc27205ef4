package model

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig enumerates the recognized pipeline options.
// Unknown options are rejected at load time by the YAML decoder.
type PipelineConfig struct {
	// ProjectID is the containment target for document edges.
	ProjectID string `yaml:"project_id"`

	// Entity resolution parameters
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	SemanticWeight      float64 `yaml:"semantic_weight"`
	// LinkThreshold is the stricter threshold used for cross-document
	// entity linking.
	LinkThreshold float64 `yaml:"link_threshold"`

	// Retry parameters
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`

	// OCR polling parameters
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`

	// Stalled document sweep parameters
	StallTimeout  time.Duration `yaml:"stall_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Cache TTLs
	StageResultTTL time.Duration `yaml:"stage_result_ttl"`
	PollResultTTL  time.Duration `yaml:"poll_result_ttl"`

	// Worker pool size for concurrent document advancement
	WorkerCount int `yaml:"worker_count"`
}

// DefaultPipelineConfig returns a sensible default configuration.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ProjectID:           "default",
		SimilarityThreshold: 0.8,
		SemanticWeight:      0.5,
		LinkThreshold:       0.92,
		MaxAttempts:         3,
		BaseBackoff:         2 * time.Second,
		PollInterval:        5 * time.Second,
		PollTimeout:         5 * time.Minute,
		StallTimeout:        15 * time.Minute,
		SweepInterval:       time.Minute,
		StageResultTTL:      time.Hour,
		PollResultTTL:       10 * time.Second,
		WorkerCount:         4,
	}
}

// Validate checks that all options are within their legal ranges.
func (c *PipelineConfig) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1], got %v", c.SimilarityThreshold)
	}
	if c.SemanticWeight < 0 || c.SemanticWeight > 1 {
		return fmt.Errorf("semantic weight must be in [0,1], got %v", c.SemanticWeight)
	}
	if c.LinkThreshold < 0 || c.LinkThreshold > 1 {
		return fmt.Errorf("link threshold must be in [0,1], got %v", c.LinkThreshold)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %v", c.MaxAttempts)
	}
	if c.BaseBackoff <= 0 {
		return fmt.Errorf("base backoff must be positive, got %v", c.BaseBackoff)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.PollTimeout < c.PollInterval {
		return fmt.Errorf("poll timeout must be at least the poll interval, got %v", c.PollTimeout)
	}
	if c.StallTimeout <= 0 {
		return fmt.Errorf("stall timeout must be positive, got %v", c.StallTimeout)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", c.SweepInterval)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %v", c.WorkerCount)
	}
	return nil
}

// pipelineConfigYAML mirrors PipelineConfig with string durations, so the
// file can use readable values like "5s" or "15m".
type pipelineConfigYAML struct {
	ProjectID           *string  `yaml:"project_id"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	SemanticWeight      *float64 `yaml:"semantic_weight"`
	LinkThreshold       *float64 `yaml:"link_threshold"`
	MaxAttempts         *int     `yaml:"max_attempts"`
	BaseBackoff         *string  `yaml:"base_backoff"`
	PollInterval        *string  `yaml:"poll_interval"`
	PollTimeout         *string  `yaml:"poll_timeout"`
	StallTimeout        *string  `yaml:"stall_timeout"`
	SweepInterval       *string  `yaml:"sweep_interval"`
	StageResultTTL      *string  `yaml:"stage_result_ttl"`
	PollResultTTL       *string  `yaml:"poll_result_ttl"`
	WorkerCount         *int     `yaml:"worker_count"`
}

// recognizedOptions are the option names accepted in a pipeline config
// file. Anything else is rejected at load time.
var recognizedOptions = map[string]bool{
	"project_id":           true,
	"similarity_threshold": true,
	"semantic_weight":      true,
	"link_threshold":       true,
	"max_attempts":         true,
	"base_backoff":         true,
	"poll_interval":        true,
	"poll_timeout":         true,
	"stall_timeout":        true,
	"sweep_interval":       true,
	"stage_result_ttl":     true,
	"poll_result_ttl":      true,
	"worker_count":         true,
}

// UnmarshalYAML fills only the options present in the document, leaving the
// rest untouched. Unknown options are rejected.
func (c *PipelineConfig) UnmarshalYAML(value *yaml.Node) error {
	for i := 0; i+1 < len(value.Content); i += 2 {
		if key := value.Content[i].Value; !recognizedOptions[key] {
			return fmt.Errorf("unrecognized pipeline option %q", key)
		}
	}

	raw := &pipelineConfigYAML{}
	if err := value.Decode(raw); err != nil {
		return err
	}

	if raw.ProjectID != nil {
		c.ProjectID = *raw.ProjectID
	}
	if raw.SimilarityThreshold != nil {
		c.SimilarityThreshold = *raw.SimilarityThreshold
	}
	if raw.SemanticWeight != nil {
		c.SemanticWeight = *raw.SemanticWeight
	}
	if raw.LinkThreshold != nil {
		c.LinkThreshold = *raw.LinkThreshold
	}
	if raw.MaxAttempts != nil {
		c.MaxAttempts = *raw.MaxAttempts
	}
	if raw.WorkerCount != nil {
		c.WorkerCount = *raw.WorkerCount
	}

	durations := []struct {
		raw    *string
		target *time.Duration
		name   string
	}{
		{raw.BaseBackoff, &c.BaseBackoff, "base_backoff"},
		{raw.PollInterval, &c.PollInterval, "poll_interval"},
		{raw.PollTimeout, &c.PollTimeout, "poll_timeout"},
		{raw.StallTimeout, &c.StallTimeout, "stall_timeout"},
		{raw.SweepInterval, &c.SweepInterval, "sweep_interval"},
		{raw.StageResultTTL, &c.StageResultTTL, "stage_result_ttl"},
		{raw.PollResultTTL, &c.PollResultTTL, "poll_result_ttl"},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
		*d.target = parsed
	}

	return nil
}

// LoadPipelineConfig reads a YAML configuration file, fills unset options
// with defaults and validates the result. Unknown options are rejected.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultPipelineConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing pipeline config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
