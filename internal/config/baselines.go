package config

import (
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hylla/weldtrack/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// baselineFile is the document shape of an external baseline file.
type baselineFile struct {
	Baselines map[string]float64 `yaml:"baselines" toml:"baselines"`
}

// BaselineRates resolves the configured baselines: the external file first, then inline entries.
func (c Config) BaselineRates() (map[domain.MaterialClass]float64, error) {
	out := map[domain.MaterialClass]float64{}
	if path := strings.TrimSpace(c.Efficiency.BaselineFile); path != "" {
		fromFile, err := LoadBaselineFile(path)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, fromFile)
	}
	inline, err := parseBaselines(c.Efficiency.Baselines, "efficiency.baselines")
	if err != nil {
		return nil, err
	}
	maps.Copy(out, inline)
	return out, nil
}

// LoadBaselineFile reads a .yaml, .yml or .toml baseline file.
func LoadBaselineFile(path string) (map[domain.MaterialClass]float64, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read baseline file: %w", err)
	}

	var doc baselineFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("decode baseline yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("decode baseline toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported baseline file extension %q", ext)
	}
	return parseBaselines(doc.Baselines, path)
}

// parseBaselines resolves material keys and checks rates.
func parseBaselines(raw map[string]float64, source string) (map[domain.MaterialClass]float64, error) {
	out := make(map[domain.MaterialClass]float64, len(raw))
	for key, rate := range raw {
		material, err := domain.ParseMaterialClass(key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return nil, fmt.Errorf("%s: rate for %s must be a finite number >= 0", source, material)
		}
		if _, dup := out[material]; dup {
			return nil, fmt.Errorf("%s: material %s listed twice", source, material)
		}
		out[material] = rate
	}
	return out, nil
}
