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
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"critical", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, "error"},
		{1, "warn"},
		{2, "info"},
		{3, "debug"},
		{7, "debug"},
		{-1, "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromVerbosity(tt.count))
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatText, Output: &buf})

	logger.Info("ignored")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "ignored")
	assert.Contains(t, out, "kept")
}

func TestMultiHandlerLevels(t *testing.T) {
	var debugBuf, errBuf bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h)

	logger.Debug("fine detail")
	logger.Error("boom")

	assert.Contains(t, debugBuf.String(), "fine detail")
	assert.Contains(t, debugBuf.String(), "boom")
	assert.NotContains(t, errBuf.String(), "fine detail")
	assert.Contains(t, errBuf.String(), "boom")
}

func TestLoadYAMLRebasesFilenames(t *testing.T) {
	dir := t.TempDir()
	logdir := filepath.Join(dir, "logs")

	cfgPath := filepath.Join(dir, "logging.yaml")
	cfg := strings.Join([]string{
		"handlers:",
		"  console:",
		"    level: error",
		"  applog:",
		"    level: debug",
		"    filename: /var/log/elsewhere/app.log",
	}, "\n")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	logger, closers, err := LoadYAML(cfgPath, logdir)
	require.NoError(t, err)
	defer closeAll(closers)

	logger.Info("hello from test")

	// The file handler must land under logdir regardless of the
	// configured absolute path.
	data, err := os.ReadFile(filepath.Join(logdir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestLoadYAMLMissingFile(t *testing.T) {
	_, _, err := LoadYAML(filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
	require.Error(t, err)
}

func TestFieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatText, Output: &buf})

	WithSource(WithComponent(logger, "source"), "/dev/ttyS0").Warn("read failed",
		Error(assert.AnError),
		String(PathKey, "/var/log/seriallogd"),
		Int("attempt", 2),
		Bool("final", false))

	out := buf.String()
	assert.Contains(t, out, "component=source")
	assert.Contains(t, out, "source=/dev/ttyS0")
	assert.Contains(t, out, `error="assert.AnError`)
	assert.Contains(t, out, "path=/var/log/seriallogd")
	assert.Contains(t, out, "attempt=2")
	assert.Contains(t, out, "final=false")
}

func TestFromEnvDebug(t *testing.T) {
	t.Setenv("SERIALLOGD_DEBUG", "1")
	cfg := FromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.AddSource)
}
