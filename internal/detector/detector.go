// Package detector implements heuristic defect detection over AI-generated
// content. Detectors are intentionally pattern-based: they collect textual
// evidence of likely defects without parsing or compiling anything, so
// false positives and negatives are expected and filtered by confidence.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/mend/internal/types"
)

// Detector is a single heuristic check over a content string.
// Implementations must be pure functions of their input: no side effects,
// and identical content yields identical findings.
type Detector interface {
	// Name returns the unique identifier for this detector.
	Name() string

	// Detect examines the content and returns discovered errors.
	Detect(content string) []types.DetectedError
}

// Config controls which sub-checks run and how findings are filtered.
// EnableLogicCheck and EnableStyleCheck are recognized for config
// compatibility but have no backing detector yet; incompleteness
// detection always runs and has no toggle.
type Config struct {
	EnableSyntaxCheck            bool    `yaml:"enable_syntax_check"`
	EnableTypeCheck              bool    `yaml:"enable_type_check"`
	EnableLogicCheck             bool    `yaml:"enable_logic_check"`
	EnableSecurityCheck          bool    `yaml:"enable_security_check"`
	EnableStyleCheck             bool    `yaml:"enable_style_check"`
	EnableHallucinationDetection bool    `yaml:"enable_hallucination_detection"`
	// MinConfidence drops findings below this threshold after all detectors run
	MinConfidence float64 `yaml:"min_confidence"`
	// Language is metadata only; it does not currently alter detection
	Language string `yaml:"language"`
}

// DefaultConfig returns a configuration with all implemented checks enabled.
func DefaultConfig() Config {
	return Config{
		EnableSyntaxCheck:            true,
		EnableTypeCheck:              true,
		EnableLogicCheck:             true,
		EnableSecurityCheck:          true,
		EnableStyleCheck:             true,
		EnableHallucinationDetection: true,
		MinConfidence:                0.5,
	}
}

// Validate checks if the configuration has valid field values
func (c *Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0.0 and 1.0 (got %f)", c.MinConfidence)
	}
	return nil
}

// Suite runs a fixed set of detectors over content and merges their findings.
type Suite struct {
	config    Config
	detectors []Detector
}

// NewSuite builds the detector suite for the given configuration.
// The incompleteness check always runs: truncated output is a defect
// regardless of which language-specific checks are enabled.
func NewSuite(config Config) (*Suite, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}

	var detectors []Detector
	if config.EnableSyntaxCheck {
		detectors = append(detectors, &syntaxDetector{})
	}
	if config.EnableTypeCheck {
		detectors = append(detectors, &typeMismatchDetector{})
	}
	if config.EnableHallucinationDetection {
		detectors = append(detectors, &hallucinationDetector{})
	}
	detectors = append(detectors, &incompletenessDetector{})
	if config.EnableSecurityCheck {
		detectors = append(detectors, &securityDetector{})
	}

	return &Suite{config: config, detectors: detectors}, nil
}

// Detect runs every enabled detector concurrently and returns the merged
// findings in stable detector order, filtered by MinConfidence. Detection
// is read-only: the same content and config always yield the same findings.
func (s *Suite) Detect(ctx context.Context, content string) ([]types.DetectedError, error) {
	results := make([][]types.DetectedError, len(s.detectors))

	g, ctx := errgroup.WithContext(ctx)
	for i, d := range s.detectors {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = d.Detect(content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("detection canceled: %w", err)
	}

	var findings []types.DetectedError
	for _, batch := range results {
		for _, e := range batch {
			if e.Confidence >= s.config.MinConfidence {
				findings = append(findings, e)
			}
		}
	}
	return findings, nil
}

// Detectors returns the names of the detectors this suite runs.
func (s *Suite) Detectors() []string {
	names := make([]string, len(s.detectors))
	for i, d := range s.detectors {
		names[i] = d.Name()
	}
	return names
}

// newError builds a DetectedError with a fresh id and timestamp.
func newError(errType types.ErrorType, severity types.ErrorSeverity, description string, confidence float64) types.DetectedError {
	return types.DetectedError{
		ID:          uuid.New().String(),
		Type:        errType,
		Severity:    severity,
		Description: description,
		Confidence:  confidence,
		CreatedAt:   time.Now(),
	}
}
