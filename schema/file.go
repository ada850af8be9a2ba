// Schema file loading for CLI use.
//
// Descriptors can be authored as YAML or JSON files. The format is
// chosen by file extension, with YAML as the fallback since JSON is a
// YAML subset.

package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a Descriptor from a YAML or JSON file and validates
// it structurally before returning.
func LoadFile(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to read schema file: %w", err)
	}

	var d Descriptor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &d); err != nil {
			return Descriptor{}, fmt.Errorf("failed to parse schema file %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &d); err != nil {
			return Descriptor{}, fmt.Errorf("failed to parse schema file %s: %w", path, err)
		}
	}

	if err := d.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("invalid schema in %s: %w", path, err)
	}
	return d, nil
}
