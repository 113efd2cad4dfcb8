package market

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Metadata is the broker metadata file shape.
type Metadata struct {
	Allowlist        []string             `yaml:"allowlist"`
	Aliases          map[string]string    `yaml:"aliases"`
	Suffix           string               `yaml:"suffix"`
	SundayOpenUTC    int                  `yaml:"sunday_open_utc"`
	FridayCloseUTC   int                  `yaml:"friday_close_utc"`
	RolloverStartMin int                  `yaml:"rollover_start_min"`
	RolloverEndMin   int                  `yaml:"rollover_end_min"`
	EnforceSessions  bool                 `yaml:"enforce_sessions"`
	BlockRollover    bool                 `yaml:"block_rollover"`
	Precisions       map[string]Precision `yaml:"precisions"`
}

// LoadMetadata reads broker metadata from a YAML file.
func LoadMetadata(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, fmt.Errorf("read market rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse market rules: %w", err)
	}
	return meta, nil
}

// DefaultMetadata is used when no rules file is present.
func DefaultMetadata(pairs []string) Metadata {
	return Metadata{
		Allowlist:       pairs,
		EnforceSessions: true,
		BlockRollover:   true,
	}
}
