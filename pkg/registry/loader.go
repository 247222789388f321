package registry

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dukex/parley/pkg/models"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a definition authored as YAML or JSON. JSON parses as YAML.
func LoadFile(path string) (*models.WorkDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}

	def, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse definition file %s: %w", path, err)
	}

	return def, nil
}

// Decode parses one definition document, rejecting unknown fields.
func Decode(r io.Reader) (*models.WorkDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def models.WorkDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, err
	}

	return &def, nil
}
