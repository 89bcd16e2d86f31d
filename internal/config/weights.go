package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quantprep/openprep/internal/scoring"
)

// WeightsFile holds one or more named weight sets plus the name of the set
// the pipeline should score with.
type WeightsFile struct {
	Active string              `yaml:"active"`
	Sets   []scoring.WeightSet `yaml:"sets"`
}

// LoadWeightSet reads a weights file and returns its active set, validated.
// A file with a single set may omit `active`.
func LoadWeightSet(path string) (scoring.WeightSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scoring.WeightSet{}, fmt.Errorf("failed to read weights file %s: %w", path, err)
	}

	var wf WeightsFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return scoring.WeightSet{}, fmt.Errorf("failed to parse weights file %s: %w", path, err)
	}
	if len(wf.Sets) == 0 {
		return scoring.WeightSet{}, fmt.Errorf("weights file %s contains no sets", path)
	}

	active := wf.Active
	if active == "" {
		if len(wf.Sets) > 1 {
			return scoring.WeightSet{}, fmt.Errorf("weights file %s has %d sets but no active name", path, len(wf.Sets))
		}
		active = wf.Sets[0].Name
	}

	for _, ws := range wf.Sets {
		if ws.Name != active {
			continue
		}
		if err := ws.Validate(); err != nil {
			return scoring.WeightSet{}, fmt.Errorf("weights file %s: %w", path, err)
		}
		return ws, nil
	}
	return scoring.WeightSet{}, fmt.Errorf("weights file %s has no set named %q", path, active)
}

// SaveWeights writes a weights file, validating every set first so a bad
// set never lands on disk.
func SaveWeights(path string, wf WeightsFile) error {
	if len(wf.Sets) == 0 {
		return fmt.Errorf("refusing to save empty weights file")
	}
	for _, ws := range wf.Sets {
		if err := ws.Validate(); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(&wf)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create weights directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write weights file %s: %w", path, err)
	}
	return nil
}
