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

// Package usb implements removable-storage handling: a poller worker that
// announces media insertion and a copy daemon that transfers the record
// files onto the media.
package usb

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/pkg/plugin"
)

// PollerName is the poller worker's class identifier.
const PollerName = "usbutils"

// DefaultMount is where the system's automounter places removable media.
const DefaultMount = "/media/usb1"

// defaultPollInterval is the fallback poll cadence used alongside fsnotify;
// mount events do not always surface as filesystem events on the mount
// point's parent.
const defaultPollInterval = time.Second

// mountsFile is read to decide whether a path is a live mount point. A
// variable so tests can substitute a fixture.
var mountsFile = "/proc/mounts"

// Poller watches the mount point and emits one UsbDetected command per media
// insertion. It consumes no message kinds; it is a pure producer that the
// dispatcher runs like any other worker.
type Poller struct {
	*plugin.Base
	mount    string
	interval time.Duration
	present  bool
}

// NewPoller creates a poller for the default mount point.
func NewPoller() *Poller {
	return &Poller{
		Base:     plugin.NewBase(PollerName),
		mount:    DefaultMount,
		interval: defaultPollInterval,
	}
}

// PollerFactory constructs a fresh instance for the plugin catalog.
func PollerFactory() plugin.Worker { return NewPoller() }

// Configure applies the mount point and poll cadence.
func (p *Poller) Configure(options map[string]any) error {
	return p.ApplyOptions(options, plugin.OptionTable{
		"mount":         {Type: plugin.StringOption, Set: func(v any) { p.mount = v.(string) }},
		"poll_interval": {Type: plugin.DurationOption, Set: func(v any) { p.interval = v.(time.Duration) }},
	})
}

// Run watches for insertions until exit. fsnotify on the mount parent gives
// prompt reaction where it works; the ticker catches everything else.
func (p *Poller) Run(ctx context.Context) error {
	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(p.mount)); err == nil {
			events = make(chan fsnotify.Event)
			go func() {
				for ev := range watcher.Events {
					select {
					case events <- ev:
					case <-p.ExitSignal():
						return
					}
				}
			}()
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check()
	for {
		select {
		case <-p.ExitSignal():
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.check()
		case <-events:
			p.check()
		}
	}
}

// check fires the detection command on the rising edge of the mount state.
func (p *Poller) check() {
	mounted := isMounted(p.mount)
	if mounted && !p.present {
		p.Logger().Info("removable media detected")
		p.Context().Put(message.Command{
			Payload: message.UsbState{Stage: message.UsbDetected, Mount: p.mount},
		})
	}
	p.present = mounted
}

// isMounted reports whether path appears as a mount point in mountsFile.
func isMounted(path string) bool {
	f, err := os.Open(mountsFile)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == path {
			return true
		}
	}
	return false
}
