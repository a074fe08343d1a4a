// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the proxy's YAML configuration file and applies
// VCR_-prefixed environment overrides on top of it, following the
// teacher's own load-then-validate pattern for options structs
// (genai.Options.Validate, applied here after the env merge rather than
// before it).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nurikk/vcrproxy/internal/normalize"
	"github.com/nurikk/vcrproxy/internal/vcrerr"
)

// Cassettes configures the on-disk cassette store.
type Cassettes struct {
	Dir       string `yaml:"dir"`
	Overwrite bool   `yaml:"overwrite"`
}

// Matching configures the global normalization policy.
type Matching struct {
	AlwaysIgnoreHeaders []string `yaml:"always_ignore_headers"`
}

// Logging configures the process-wide slog.Logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration that accepts either a Go duration string
// ("30s", "2m") or a plain integer of nanoseconds in YAML, since plain
// yaml.v3 unmarshals a scalar string into an int64-kind field with an
// error rather than calling time.ParseDuration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for the extended accepted forms.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			// yaml.v3 also decodes an integer scalar into a string, so a plain
			// nanosecond count arrives here rather than in the int64 branch.
			ns, intErr := strconv.ParseInt(s, 10, 64)
			if intErr != nil {
				return fmt.Errorf("invalid duration %q: %w", s, err)
			}
			parsed = time.Duration(ns)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level shape of vcr-proxy.yaml (spec.md §6.4).
type Config struct {
	Mode         string            `yaml:"mode"`
	Port         int               `yaml:"port"`
	AdminPort    int               `yaml:"admin_port"`
	Targets      map[string]string `yaml:"targets"`
	Cassettes    Cassettes         `yaml:"cassettes"`
	Matching     Matching          `yaml:"matching"`
	ProxyTimeout Duration          `yaml:"proxy_timeout"`
	Logging      Logging           `yaml:"logging"`
}

// Default returns a Config with every field the proxy needs to run
// out-of-the-box: record mode, the spec's default always-ignored header
// set, and a 30s upstream timeout.
func Default() Config {
	return Config{
		Mode:      "record",
		Port:      8080,
		AdminPort: 8081,
		Targets:   map[string]string{},
		Cassettes: Cassettes{
			Dir:       "./cassettes",
			Overwrite: false,
		},
		Matching: Matching{
			AlwaysIgnoreHeaders: normalize.DefaultAlwaysIgnoreHeaders(),
		},
		ProxyTimeout: Duration(30 * time.Second),
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (if it exists; a missing file is not an error, matching
// the teacher's CLI tools which run entirely off flags/env when no config
// file is present), merges VCR_-prefixed environment overrides, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, vcrerr.Wrap(vcrerr.ConfigInvalid, "config.Load", fmt.Errorf("%s: %w", path, err))
		}
	} else if !os.IsNotExist(err) {
		return Config{}, vcrerr.Wrap(vcrerr.ConfigInvalid, "config.Load", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides cfg field-by-field from VCR_-prefixed environment
// variables, spec.md §6.4.
func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("VCR_MODE"); ok {
		cfg.Mode = v
	}
	if v, ok := os.LookupEnv("VCR_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return vcrerr.Wrap(vcrerr.ConfigInvalid, "config.applyEnv", fmt.Errorf("VCR_PORT: %w", err))
		}
		cfg.Port = n
	}
	if v, ok := os.LookupEnv("VCR_ADMIN_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return vcrerr.Wrap(vcrerr.ConfigInvalid, "config.applyEnv", fmt.Errorf("VCR_ADMIN_PORT: %w", err))
		}
		cfg.AdminPort = n
	}
	if v, ok := os.LookupEnv("VCR_TARGET"); ok {
		cfg.Targets = map[string]string{"/": v}
	}
	if v, ok := os.LookupEnv("VCR_CASSETTES_DIR"); ok {
		cfg.Cassettes.Dir = v
	}
	if v, ok := os.LookupEnv("VCR_PROXY_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return vcrerr.Wrap(vcrerr.ConfigInvalid, "config.applyEnv", fmt.Errorf("VCR_PROXY_TIMEOUT: %w", err))
		}
		cfg.ProxyTimeout = Duration(d)
	}
	if v, ok := os.LookupEnv("VCR_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("VCR_LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	return nil
}

// Validate checks invariants Load can't express structurally.
func (c Config) Validate() error {
	switch c.Mode {
	case "record", "replay", "spy":
	default:
		return vcrerr.New(vcrerr.ModeInvalid, "config.Validate")
	}
	if len(c.Targets) == 0 {
		return vcrerr.New(vcrerr.ConfigInvalid, "config.Validate")
	}
	if c.Cassettes.Dir == "" {
		return vcrerr.New(vcrerr.ConfigInvalid, "config.Validate")
	}
	if c.Port == 0 || c.AdminPort == 0 || c.Port == c.AdminPort {
		return vcrerr.New(vcrerr.ConfigInvalid, "config.Validate")
	}
	return nil
}
