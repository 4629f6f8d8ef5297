package app

import "errors"

// Config holds the CLI-level configuration for an App instance.
type Config struct {
	ConfigPaths []string // hcl files or directories
	// Integration overrides run.integration from the HCL configuration.
	Integration string
	// WorkingDir overrides run.working_dir.
	WorkingDir string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ConfigPaths) == 0 && cfg.Integration == "" {
		return nil, errors.New("either a configuration path or an integration name is required")
	}
	return &cfg, nil
}
