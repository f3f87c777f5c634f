// Package config defines the model configuration artifact shared between
// training, export and runtime inference. The JSON field names are part of
// the on-disk contract and must not change.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Standard artifact file names inside a model directory.
const (
	ModelConfigFile = "model_config.json"
	LabelsFile      = "labels.json"
)

// ModelConfig records the input and output shape of a trained classifier
// along with the ordered class labels. Index i of Labels is class i.
type ModelConfig struct {
	SequenceLength int      `json:"sequence_length"`
	NumFeatures    int      `json:"num_features"`
	NumClasses     int      `json:"num_classes"`
	Labels         []string `json:"labels"`
}

// Validate checks internal consistency.
func (c *ModelConfig) Validate() error {
	if c.SequenceLength <= 0 {
		return fmt.Errorf("sequence_length %d must be positive", c.SequenceLength)
	}
	if c.NumFeatures <= 0 {
		return fmt.Errorf("num_features %d must be positive", c.NumFeatures)
	}
	if c.NumClasses < 2 {
		return fmt.Errorf("num_classes %d must be at least 2", c.NumClasses)
	}
	if len(c.Labels) != c.NumClasses {
		return fmt.Errorf("%d labels for %d classes", len(c.Labels), c.NumClasses)
	}
	seen := make(map[string]bool, len(c.Labels))
	for _, l := range c.Labels {
		if l == "" {
			return fmt.Errorf("empty label")
		}
		if seen[l] {
			return fmt.Errorf("duplicate label %q", l)
		}
		seen[l] = true
	}
	return nil
}

// ClassIndex returns the class index of a label.
func (c *ModelConfig) ClassIndex(label string) (int, error) {
	for i, l := range c.Labels {
		if l == label {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown label %q", label)
}

// CheckFeatures verifies that the frame width produced by a feature extractor
// matches what the model was trained on.
func (c *ModelConfig) CheckFeatures(got int) error {
	if got != c.NumFeatures {
		return fmt.Errorf("extractor produces %d features but model expects %d", got, c.NumFeatures)
	}
	return nil
}

// Save writes model_config.json and labels.json into dir, creating it if
// needed.
func Save(dir string, c *ModelConfig) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid model config: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, ModelConfigFile), c); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, LabelsFile), c.Labels)
}

// Load reads and validates model_config.json from dir.
func Load(dir string) (*ModelConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, ModelConfigFile))
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}

	var c ModelConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	return &c, nil
}

// LoadLabels reads the bare labels.json catalog from dir.
func LoadLabels(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}

	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	return labels, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
