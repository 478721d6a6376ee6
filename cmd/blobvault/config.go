package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mizunoh/blobvault/pkg/blob"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// Config holds vault-local settings persisted next to the blob regions.
// The file carries no secrets: region geometry is observable from the
// blob files anyway.
type Config struct {
	RegionSize    int64 `yaml:"region_size"`
	WipeChunkSize int64 `yaml:"wipe_chunk_size"`
	// ShareChunkSize is the upload chunk size used by share ranges.
	ShareChunkSize int64 `yaml:"share_chunk_size"`
}

func defaultConfig() Config {
	return Config{
		RegionSize:     blob.DefaultRegionSize,
		WipeChunkSize:  blob.DefaultWipeChunkSize,
		ShareChunkSize: 4 * 1024 * 1024,
	}
}

func configPath(dir string) string {
	return filepath.Join(dir, configFileName)
}

// loadConfig reads config.yaml, falling back to defaults when absent.
func loadConfig(dir string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(configPath(dir))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.RegionSize <= 0 {
		cfg.RegionSize = blob.DefaultRegionSize
	}
	if cfg.WipeChunkSize <= 0 {
		cfg.WipeChunkSize = blob.DefaultWipeChunkSize
	}
	if cfg.ShareChunkSize <= 0 {
		cfg.ShareChunkSize = 4 * 1024 * 1024
	}
	return cfg, nil
}

// saveConfig writes config.yaml with owner-only permissions.
func saveConfig(dir string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath(dir), data, blob.FileMode); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
