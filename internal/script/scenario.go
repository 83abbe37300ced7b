package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/orderdesk/ttlcache/internal/cache"
	"gopkg.in/yaml.v3"
)

// Scenario is a named script plus optional cache settings.
type Scenario struct {
	Name            string   `yaml:"name"`
	MaxSize         int      `yaml:"max_size"`
	DefaultTTL      string   `yaml:"default_ttl"`
	CleanupInterval string   `yaml:"cleanup_interval"`
	Steps           []string `yaml:"steps"`

	Ops []Op `yaml:"-"`
}

// ParseScenario decodes a YAML scenario and parses its steps. Step line
// numbers are 1-based positions in the steps list.
func ParseScenario(r io.Reader) (*Scenario, error) {
	var sc Scenario
	if err := yaml.NewDecoder(r).Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return &sc, nil
		}
		return nil, fmt.Errorf("unable to decode scenario: %w", err)
	}

	for i, step := range sc.Steps {
		op, ok, err := ParseLine(step, i+1)
		if err != nil {
			return nil, err
		}
		if ok {
			sc.Ops = append(sc.Ops, op)
		}
	}
	return &sc, nil
}

// Load reads a scenario from path. Files ending in .yml or .yaml are decoded
// as YAML scenarios; anything else is a line script. A path of "-" reads a
// line script from stdin.
func Load(path string) (*Scenario, error) {
	if path == "-" {
		ops, err := Parse(os.Stdin)
		if err != nil {
			return nil, err
		}
		return &Scenario{Name: "stdin", Ops: ops}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open script: %w", err)
	}
	defer f.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		sc, err := ParseScenario(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if sc.Name == "" {
			sc.Name = filepath.Base(path)
		}
		return sc, nil
	default:
		ops, err := Parse(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &Scenario{Name: filepath.Base(path), Ops: ops}, nil
	}
}

// Config returns base with the scenario's overrides applied. base is not
// modified.
func (sc *Scenario) Config(base *cache.Config) (*cache.Config, error) {
	if base == nil {
		base = cache.DefaultConfig()
	}
	cfg := *base

	if sc.MaxSize != 0 {
		cfg.MaxSize = sc.MaxSize
	}
	if sc.DefaultTTL != "" {
		d, err := ParseDuration(sc.DefaultTTL)
		if err != nil {
			return nil, fmt.Errorf("default_ttl: %w", err)
		}
		cfg.DefaultTTL = d
	}
	if sc.CleanupInterval != "" {
		d, err := ParseDuration(sc.CleanupInterval)
		if err != nil {
			return nil, fmt.Errorf("cleanup_interval: %w", err)
		}
		cfg.CleanupInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
