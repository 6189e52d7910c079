// internal/config/load.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadGateway reads and decodes a gateway configuration file. Validation
// and normalization are separate phases.
func LoadGateway(path string) (*GatewayConfig, error) {
	var file GatewayFile
	if err := load(path, &file); err != nil {
		return nil, err
	}
	return &file.Gateway, nil
}

// LoadArchive reads and decodes a sensorsdb configuration file.
func LoadArchive(path string) (*ArchiveConfig, error) {
	var file ArchiveFile
	if err := load(path, &file); err != nil {
		return nil, err
	}
	return &file.Archive, nil
}

func load(path string, into interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return nil
}
