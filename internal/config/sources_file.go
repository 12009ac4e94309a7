package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadSourcesFile reads a JSON array of source definitions, the format used
// by feeds.json.
func LoadSourcesFile(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var sources []SourceConfig
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}

	return sources, nil
}
