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

// Package plugins assembles the compiled-in plugin catalog. Configuration
// refers to plugins by these names; anything not in the catalog is a startup
// error.
package plugins

import (
	"log/slog"

	"github.com/longwave/seriallogd/internal/plugins/gpio"
	"github.com/longwave/seriallogd/internal/plugins/usb"
	"github.com/longwave/seriallogd/pkg/plugin"
)

// Catalog builds the loader with every builtin plugin. logdir is the record
// directory the usb copy daemon transfers from.
func Catalog(logdir string, logger *slog.Logger) (*plugin.Loader, error) {
	l := plugin.NewLoader(logger)

	if err := l.Add(gpio.Name, plugin.Entry{Worker: gpio.Factory}); err != nil {
		return nil, err
	}
	if err := l.Add(usb.PollerName, plugin.Entry{Worker: usb.PollerFactory}); err != nil {
		return nil, err
	}
	copySpec := usb.NewCopySpec(logdir, logger)
	if err := l.Add(usb.CopyClassID, plugin.Entry{Daemon: &copySpec}); err != nil {
		return nil, err
	}

	return l, nil
}
