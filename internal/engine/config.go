package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/mend/internal/detector"
	"github.com/steveyegge/mend/internal/types"
)

// FileConfig is the engine configuration loaded from YAML.
type FileConfig struct {
	// Detector configures the heuristic detector suite
	Detector detector.Config `yaml:"detector"`

	// Correction holds the caps and toggles for the orchestration loop
	Correction types.CorrectionConfig `yaml:"correction"`

	// AttemptTimeout bounds a single corrector call, e.g. "30s"
	AttemptTimeout string `yaml:"attempt_timeout,omitempty"`

	// CorrectorRateLimit is the maximum corrector calls per second; zero
	// disables throttling
	CorrectorRateLimit float64 `yaml:"corrector_rate_limit,omitempty"`
}

// DefaultFileConfig returns the default engine configuration.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Detector:   detector.DefaultConfig(),
		Correction: types.DefaultCorrectionConfig(),
	}
}

// LoadConfig loads engine configuration from a YAML file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultFileConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if config.AttemptTimeout != "" {
		if _, err := time.ParseDuration(config.AttemptTimeout); err != nil {
			return nil, fmt.Errorf("invalid attempt_timeout %q: %w", config.AttemptTimeout, err)
		}
	}
	if err := config.Correction.Validate(); err != nil {
		return nil, fmt.Errorf("invalid correction config: %w", err)
	}
	if err := config.Detector.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}

	return config, nil
}

// Timeout returns the parsed attempt timeout, or zero when unset.
func (c *FileConfig) Timeout() time.Duration {
	if c.AttemptTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.AttemptTimeout)
	if err != nil {
		return 0
	}
	return d
}

// SaveDefaultConfig writes the default configuration to a file.
func SaveDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultFileConfig())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
