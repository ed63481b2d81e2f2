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

// Package sink persists every message the dispatcher routes. The dispatcher
// calls Log synchronously before fan-out; a Log failure is fatal to the run,
// because silently skipping persistence is a correctness violation.
package sink

import (
	"context"
	"fmt"

	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/internal/metrics"
)

// Sink is the appendable record store.
type Sink interface {
	// Open prepares the sink for writing.
	Open(ctx context.Context) error

	// Log appends one message. Data records are persisted verbatim;
	// a SIGHUP command triggers rotation in the same ordering domain as
	// the surrounding records.
	Log(msg message.Message) error

	// Rotate closes the active store and starts a fresh one.
	Rotate() error

	// Close flushes and releases the sink.
	Close() error
}

// Config selects and parameterizes a sink backend.
type Config struct {
	// Backend is "file" (default) or "sqlite".
	Backend string `yaml:"backend"`

	// Dir is the directory for file-backed records.
	Dir string `yaml:"dir"`

	// Path is the database file for the sqlite backend. Defaults to
	// records.db under Dir.
	Path string `yaml:"path"`
}

// New builds the configured sink backend.
func New(cfg Config, m *metrics.Metrics) (Sink, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileSink(cfg.Dir, m), nil
	case "sqlite":
		return NewSQLiteSink(cfg, m)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Backend)
	}
}
