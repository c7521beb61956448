package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/teyk0o/simsforge/internal/domain"
)

// Config holds operator-tunable settings that are not part of the core's
// transactional state (cache/profile indices), loaded from a plain YAML
// file so it remains hand-editable.
type Config struct {
	DefaultLinkMethod domain.LinkMethod `yaml:"-"`
	LinkMethodStr     string            `yaml:"default_link_method"`
	LogLevel          string            `yaml:"log_level"`
	LogFormat         string            `yaml:"log_format"`
	DownloadTimeoutS  int               `yaml:"download_timeout_seconds"`
	StallTimeoutS     int               `yaml:"stall_timeout_seconds"`
	MaxRedirects      int               `yaml:"max_redirects"`
	FakeScoreConfig   FakeScoreConfig   `yaml:"fake_score"`
}

// FakeScoreConfig parameterizes the creator warned-ratio rule, whose
// denominator the distilled design left an Open Question.
type FakeScoreConfig struct {
	WarnedRatioSampleSize int `yaml:"warned_ratio_sample_size"`
}

// Default returns the configuration used when no config.yaml exists yet.
func Default() *Config {
	return &Config{
		DefaultLinkMethod: domain.LinkSymlink,
		LogLevel:          "info",
		LogFormat:         "text",
		DownloadTimeoutS:  60,
		StallTimeoutS:     30,
		MaxRedirects:      5,
		FakeScoreConfig:   FakeScoreConfig{WarnedRatioSampleSize: 10},
	}
}

// Load reads config.yaml from configPath, returning defaults if absent.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.LinkMethodStr != "" {
		cfg.DefaultLinkMethod = domain.ParseLinkMethod(cfg.LinkMethodStr)
	}
	if cfg.FakeScoreConfig.WarnedRatioSampleSize <= 0 {
		cfg.FakeScoreConfig.WarnedRatioSampleSize = 10
	}

	return cfg, nil
}

// Save writes c to configPath as YAML.
func (c *Config) Save(configPath string) error {
	c.LinkMethodStr = c.DefaultLinkMethod.String()

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
