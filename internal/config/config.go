package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Defaults applied by Default.
const (
	DefaultLogLevel        = "info"
	DefaultDevLogDir       = ".weldtrack/log"
	DefaultImportBatchSize = 50
	DefaultPageSize        = 500
	DefaultHTTPBind        = "127.0.0.1:8080"
	DefaultAPIEndpoint     = "/api/v1"
	DefaultMCPEndpoint     = "/mcp"
)

// logLevels lists the accepted logging.level values.
var logLevels = []string{"debug", "info", "warn", "error", "fatal"}

type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Logging    LoggingConfig    `toml:"logging"`
	Import     ImportConfig     `toml:"import"`
	Storage    StorageConfig    `toml:"storage"`
	Server     ServerConfig     `toml:"server"`
	Efficiency EfficiencyConfig `toml:"efficiency"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the logfmt file sink written in dev mode.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ImportConfig struct {
	BatchSize int `toml:"batch_size"`
}

type StorageConfig struct {
	PageSize int `toml:"page_size"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// EfficiencyConfig holds baseline person-hours per diameter unit, keyed by material id or label.
// Inline baselines win over the same material in BaselineFile.
type EfficiencyConfig struct {
	BaselineFile string             `toml:"baseline_file"`
	Baselines    map[string]float64 `toml:"baselines"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     DefaultDevLogDir,
			},
		},
		Import: ImportConfig{
			BatchSize: DefaultImportBatchSize,
		},
		Storage: StorageConfig{
			PageSize: DefaultPageSize,
		},
		Server: ServerConfig{
			HTTPBind:    DefaultHTTPBind,
			APIEndpoint: DefaultAPIEndpoint,
			MCPEndpoint: DefaultMCPEndpoint,
		},
		Efficiency: EfficiencyConfig{
			Baselines: map[string]float64{},
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	if file := strings.TrimSpace(cfg.Efficiency.BaselineFile); file != "" && !filepath.IsAbs(file) {
		cfg.Efficiency.BaselineFile = filepath.Join(filepath.Dir(path), file)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	level := strings.TrimSpace(strings.ToLower(c.Logging.Level))
	if !slices.Contains(logLevels, level) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if c.Import.BatchSize < 1 {
		return fmt.Errorf("import.batch_size must be >= 1, got %d", c.Import.BatchSize)
	}
	if c.Storage.PageSize < 1 {
		return fmt.Errorf("storage.page_size must be >= 1, got %d", c.Storage.PageSize)
	}

	api := normalizeEndpoint(c.Server.APIEndpoint)
	mcp := normalizeEndpoint(c.Server.MCPEndpoint)
	if api != "" && api == mcp {
		return fmt.Errorf("server.api_endpoint and server.mcp_endpoint must differ: %q", api)
	}

	if _, err := parseBaselines(c.Efficiency.Baselines, "efficiency.baselines"); err != nil {
		return err
	}
	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// normalizeEndpoint trims slashes so "/mcp/" and "mcp" compare equal.
func normalizeEndpoint(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return ""
	}
	return "/" + path
}
