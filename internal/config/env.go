package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvOverrides holds settings read from WELDTRACK_* environment variables.
type EnvOverrides struct {
	DBPath          string `env:"WELDTRACK_DB_PATH"`
	ConfigPath      string `env:"WELDTRACK_CONFIG"`
	LogLevel        string `env:"WELDTRACK_LOG_LEVEL"`
	HTTPBind        string `env:"WELDTRACK_HTTP_BIND"`
	ImportBatchSize int    `env:"WELDTRACK_IMPORT_BATCH_SIZE"`
	BaselineFile    string `env:"WELDTRACK_BASELINE_FILE"`
	AppName         string `env:"WELDTRACK_APP_NAME"`
	DevMode         string `env:"WELDTRACK_DEV_MODE"`
}

// ParseEnv loads overrides from the process environment.
func ParseEnv() (EnvOverrides, error) {
	var out EnvOverrides
	if err := env.Parse(&out); err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return out, nil
}

// ParseEnvFrom loads overrides from an explicit environment map.
func ParseEnvFrom(environ map[string]string) (EnvOverrides, error) {
	var out EnvOverrides
	if err := env.ParseWithOptions(&out, env.Options{Environment: environ}); err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return out, nil
}

// Apply overlays set values onto cfg and re-validates it.
func (o EnvOverrides) Apply(cfg Config) (Config, error) {
	if v := strings.TrimSpace(o.DBPath); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(o.HTTPBind); v != "" {
		cfg.Server.HTTPBind = v
	}
	if o.ImportBatchSize != 0 {
		cfg.Import.BatchSize = o.ImportBatchSize
	}
	if v := strings.TrimSpace(o.BaselineFile); v != "" {
		cfg.Efficiency.BaselineFile = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("apply env overrides: %w", err)
	}
	return cfg, nil
}
