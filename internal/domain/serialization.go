package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// calibrationSetDocument is the on-disk shape of a calibration set: a
// metadata block followed by the ordered sample list.
type calibrationSetDocument struct {
	Metadata map[string]any      `yaml:"metadata"`
	Samples  []CalibrationSample `yaml:"samples"`
}

// ToYAML serializes the set to a YAML document with top-level metadata and
// samples sections. The round trip through FromYAML is lossless.
func (cs *CalibrationSet) ToYAML() ([]byte, error) {
	doc := calibrationSetDocument{
		Metadata: cs.metadata,
		Samples:  cs.samples,
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal calibration set: %w", err)
	}
	return data, nil
}

// FromYAML parses a calibration set from a YAML document produced by ToYAML.
func FromYAML(data []byte) (*CalibrationSet, error) {
	var doc calibrationSetDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal calibration set: %w", err)
	}

	set := NewCalibrationSet(doc.Metadata)
	set.samples = doc.Samples
	return set, nil
}

// SaveFile writes the set to path as YAML with owner read/write permissions.
func (cs *CalibrationSet) SaveFile(path string) error {
	data, err := cs.ToYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write calibration set to %s: %w", path, err)
	}
	return nil
}

// LoadCalibrationSetFile reads a YAML calibration set from path.
func LoadCalibrationSetFile(path string) (*CalibrationSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration set from %s: %w", path, err)
	}
	return FromYAML(data)
}
