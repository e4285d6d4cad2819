package commands

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk CLI configuration, loaded from fdstore.yaml.
type FileConfig struct {
	DirPath      string `yaml:"dir_path"`
	MaxOpenFiles int    `yaml:"max_open_files"`
	Logging      string `yaml:"logging"` // trace, debug, info, warn, off
}

// ApplyDefaults fills zero-value fields with their defaults.
func (cfg *FileConfig) ApplyDefaults() {
	if cfg.MaxOpenFiles == 0 {
		cfg.MaxOpenFiles = 128
	}
}

// defaultConfigPath is checked when --config is not given.
const defaultConfigPath = "fdstore.yaml"

// LoadFileConfig loads the CLI config from path, or from ./fdstore.yaml when
// path is empty. A missing file yields defaults; an explicit --config that
// does not exist is an error.
func LoadFileConfig(path string) (*FileConfig, error) {
	explicit := path != ""
	if path == "" {
		path = defaultConfigPath
	}

	var cfg FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			cfg.ApplyDefaults()
			return &cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
