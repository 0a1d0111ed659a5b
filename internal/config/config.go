package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DefaultProvider string              `yaml:"default_provider"`
	TimeoutSeconds  int                 `yaml:"timeout_seconds"`
	Providers       []ProviderConfig    `yaml:"providers"`
	Operations      map[string]OpConfig `yaml:"operations"`
	History         HistoryConfig       `yaml:"history"`
	Cache           CacheConfig         `yaml:"cache"`
	Probes          ProbeConfig         `yaml:"probes"`
}

type ProviderConfig struct {
	ID       string   `yaml:"id"`
	Command  []string `yaml:"command"`
	Enabled  *bool    `yaml:"enabled"` // nil means enabled
	Priority int      `yaml:"priority"`
}

func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// OpConfig defines or overrides one operation. Instruction is a template
// with {name} placeholders; Script points at a Lua preparer instead.
type OpConfig struct {
	Instruction string `yaml:"instruction"`
	Script      string `yaml:"script"`
}

type HistoryConfig struct {
	DataDir string `yaml:"data_dir"`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	TTL     string `yaml:"ttl"`
}

func (c CacheConfig) ParseTTL() (time.Duration, error) {
	if c.TTL == "" {
		return 10 * time.Minute, nil
	}
	return time.ParseDuration(c.TTL)
}

type ProbeConfig struct {
	Schedule  string   `yaml:"schedule"`
	Providers []string `yaml:"providers"`
	Listen    string   `yaml:"listen"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandEnvInCommands(cfg *Config) {
	for i, p := range cfg.Providers {
		for j, arg := range p.Command {
			cfg.Providers[i].Command[j] = expandEnv(arg)
		}
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandEnvInCommands(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.Probes.Schedule == "" {
		cfg.Probes.Schedule = "@every 30m"
	}
	if cfg.Probes.Listen == "" {
		cfg.Probes.Listen = ":9377"
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.ID == "" {
			return fmt.Errorf("config: provider with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate provider %q", p.ID)
		}
		seen[p.ID] = true
		if len(p.Command) == 0 {
			return fmt.Errorf("config: provider %q has no command", p.ID)
		}
	}
	if cfg.DefaultProvider != "" && !seen[cfg.DefaultProvider] {
		return fmt.Errorf("config: default provider %q is not defined", cfg.DefaultProvider)
	}
	for name, op := range cfg.Operations {
		if name == "" {
			return fmt.Errorf("config: operation with empty name")
		}
		if op.Instruction != "" && op.Script != "" {
			return fmt.Errorf("config: operation %q sets both instruction and script", name)
		}
	}
	return nil
}

// Timeout returns the per-provider invocation deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
