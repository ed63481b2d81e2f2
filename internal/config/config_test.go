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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err, "an explicitly named missing file is an error")

	// The default location missing is not an error; note this assumes
	// /etc/seriallogd/config.yaml does not exist on the test host.
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS0", cfg.Device)
	assert.Equal(t, 57600, cfg.BaudRate)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, "file", cfg.Sink.Backend)
	assert.Equal(t, cfg.LogDir, cfg.Sink.Dir)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
device: /dev/ttyAMA0
logdir: /data/records
poll_interval: 250ms
sources:
  - /dev/ttyUSB0
sink:
  backend: sqlite
metrics:
  enabled: true
  addr: ":9200"
plugins:
  gpio:
    data_led: 16
  usbutils: {}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyAMA0", cfg.Device)
	assert.Equal(t, "/data/records", cfg.LogDir)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, []string{"/dev/ttyUSB0"}, cfg.Sources)
	assert.Equal(t, "sqlite", cfg.Sink.Backend)
	assert.Equal(t, filepath.Join("/data/records", "records.db"), cfg.Sink.Path)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)

	require.Contains(t, cfg.Plugins, "gpio")
	assert.Equal(t, 16, cfg.Plugins["gpio"]["data_led"])
	assert.Contains(t, cfg.Plugins, "usbutils")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty device", "device: \"\""},
		{"bad backend", "sink:\n  backend: redis"},
		{"negative interval", "poll_interval: -1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "device: [unclosed"))
	require.Error(t, err)
}
