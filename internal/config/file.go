package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file at path and overlays it onto Defaults(),
// then applies IMGLOADD_* environment overrides. A missing file is not an
// error: Load simply returns the env-overlaid defaults.
func Load(path string) (PipelineConfig, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return PipelineConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// no file at path: defaults + env only
		default:
			return PipelineConfig{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return ApplyEnv(cfg), nil
}
