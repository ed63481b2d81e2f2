// Copyright 2025 Longwave Instruments
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the daemon's runtime configuration from a YAML file,
// applying defaults for anything unset. CLI flags override the loaded values
// in main; environment variables are handled by internal/log only.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// DefaultPath is where the daemon looks for its configuration when --config
// is not given.
const DefaultPath = "/etc/seriallogd/config.yaml"

// Config represents the complete daemon configuration.
type Config struct {
	// Device is the primary serial device path.
	// Default: /dev/ttyS0
	Device string `yaml:"device,omitempty"`

	// BaudRate is recorded for the boot scripts that configure the tty;
	// the daemon itself reads the device as already configured.
	// Default: 57600
	BaudRate int `yaml:"baudrate,omitempty"`

	// LogDir is the directory record and diagnostic logs are written to.
	// Default: /var/log/seriallogd
	LogDir string `yaml:"logdir,omitempty"`

	// Sources are additional device paths supervised alongside Device.
	Sources []string `yaml:"sources,omitempty"`

	// PollInterval is the supervisor's source poll cadence.
	// Default: 1s
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// LoggingConfig is an optional YAML logging configuration file applied
	// on top of the default handler; handler file paths are rebased onto
	// LogDir.
	LoggingConfig string `yaml:"logging_config,omitempty"`

	// Sink configures record persistence.
	Sink SinkConfig `yaml:"sink,omitempty"`

	// Metrics configures the optional Prometheus listener.
	Metrics MetricsConfig `yaml:"metrics,omitempty"`

	// Plugins maps plugin names to their startup options. Every named
	// plugin is loaded and registered at startup; an unknown name is a
	// startup error.
	Plugins map[string]map[string]any `yaml:"plugins,omitempty"`
}

// SinkConfig configures the record sink backend.
type SinkConfig struct {
	// Backend selects the persistence implementation: "file" or "sqlite".
	// Default: file
	Backend string `yaml:"backend,omitempty"`

	// Dir is the file backend's directory. Defaults to LogDir.
	Dir string `yaml:"dir,omitempty"`

	// Path is the sqlite backend's database file. Defaults to
	// LogDir/records.db.
	Path string `yaml:"path,omitempty"`
}

// MetricsConfig configures the /metrics listener.
type MetricsConfig struct {
	// Enabled activates the listener.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address.
	// Default: 127.0.0.1:9100
	Addr string `yaml:"addr,omitempty"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Device:       "/dev/ttyS0",
		BaudRate:     57600,
		LogDir:       "/var/log/seriallogd",
		PollInterval: time.Second,
		Sink: SinkConfig{
			Backend: "file",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
	}
}

// Load reads the configuration at path, layered over Default. A missing file
// is not an error when path is the default location: the daemon runs on
// defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			cfg.applyDerivedDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDerivedDefaults()
	return cfg, nil
}

// Validate checks invariants the rest of the system assumes.
func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("%w: device must not be empty", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	}
	switch c.Sink.Backend {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("%w: unknown sink backend %q", ErrInvalidConfig, c.Sink.Backend)
	}
	return nil
}

// applyDerivedDefaults fills in values that depend on other fields.
func (c *Config) applyDerivedDefaults() {
	if c.Sink.Backend == "" {
		c.Sink.Backend = "file"
	}
	if c.Sink.Dir == "" {
		c.Sink.Dir = c.LogDir
	}
	if c.Sink.Path == "" {
		c.Sink.Path = filepath.Join(c.LogDir, "records.db")
	}
}
