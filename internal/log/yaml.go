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

package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HandlerConfig describes one log destination in the YAML logging file.
type HandlerConfig struct {
	// Level is the minimum severity this handler records.
	Level string `yaml:"level"`

	// Format selects json or text output. Defaults to text.
	Format Format `yaml:"format"`

	// Filename, if set, routes this handler to a file. Only the base name
	// is honored: paths are rebased onto the configured log directory so a
	// config written for one host works unchanged on another.
	Filename string `yaml:"filename"`
}

// YAMLConfig is the on-disk logging configuration.
type YAMLConfig struct {
	Handlers map[string]HandlerConfig `yaml:"handlers"`
}

// LoadYAML reads a YAML logging configuration and builds a logger fanning
// out to every configured handler. File handlers are opened under logdir,
// which is created if missing. The returned closers must be closed at
// shutdown.
func LoadYAML(path, logdir string) (*slog.Logger, []io.Closer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading logging config: %w", err)
	}

	var cfg YAMLConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing logging config: %w", err)
	}

	if err := os.MkdirAll(logdir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	var (
		handlers []slog.Handler
		closers  []io.Closer
	)
	for name, hc := range cfg.Handlers {
		var out io.Writer = os.Stderr
		if hc.Filename != "" {
			// Rebase onto logdir, keeping only the base name.
			p := filepath.Join(logdir, filepath.Base(hc.Filename))
			f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				closeAll(closers)
				return nil, nil, fmt.Errorf("opening log file for handler %s: %w", name, err)
			}
			out = f
			closers = append(closers, f)
		}

		opts := &slog.HandlerOptions{Level: ParseLevel(hc.Level)}
		switch hc.Format {
		case FormatJSON:
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		default:
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	if len(handlers) == 0 {
		return New(DefaultConfig()), nil, nil
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closers, nil
	}
	return slog.New(NewMultiHandler(handlers...)), closers, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
