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

// Package gpio implements the hardware-signal worker: it consumes Command
// messages carrying Blink and UsbState payloads and drives status LEDs via
// the sysfs GPIO interface. On hosts without that interface the worker is
// constructed with a no-op controller so the rest of the system is
// unaffected.
package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// LEDController abstracts the pin-level operations the worker needs.
type LEDController interface {
	// Setup claims a pin and configures it as an output.
	Setup(pin int) error
	// Set drives the pin high or low.
	Set(pin int, on bool) error
	// Close releases every claimed pin.
	Close() error
}

// sysfsRoot is the GPIO class directory; a variable so tests can point it at
// a temp dir.
var sysfsRoot = "/sys/class/gpio"

// Available reports whether the sysfs GPIO interface exists on this host.
func Available() bool {
	_, err := os.Stat(sysfsRoot)
	return err == nil
}

// SysfsController drives pins through /sys/class/gpio.
type SysfsController struct {
	mu      sync.Mutex
	claimed map[int]bool
}

// NewSysfsController creates a controller backed by the sysfs interface.
func NewSysfsController() *SysfsController {
	return &SysfsController{claimed: make(map[int]bool)}
}

// Setup implements LEDController.
func (c *SysfsController) Setup(pin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed[pin] {
		return nil
	}

	pinDir := filepath.Join(sysfsRoot, fmt.Sprintf("gpio%d", pin))
	if _, err := os.Stat(pinDir); err != nil {
		export := filepath.Join(sysfsRoot, "export")
		if err := os.WriteFile(export, []byte(strconv.Itoa(pin)), 0o200); err != nil {
			return fmt.Errorf("gpio: exporting pin %d: %w", pin, err)
		}
	}
	direction := filepath.Join(pinDir, "direction")
	if err := os.WriteFile(direction, []byte("out"), 0o644); err != nil {
		return fmt.Errorf("gpio: configuring pin %d: %w", pin, err)
	}
	c.claimed[pin] = true
	return nil
}

// Set implements LEDController.
func (c *SysfsController) Set(pin int, on bool) error {
	value := filepath.Join(sysfsRoot, fmt.Sprintf("gpio%d", pin), "value")
	b := []byte("0")
	if on {
		b = []byte("1")
	}
	if err := os.WriteFile(value, b, 0o644); err != nil {
		return fmt.Errorf("gpio: setting pin %d: %w", pin, err)
	}
	return nil
}

// Close implements LEDController. Pins are driven low and unexported.
func (c *SysfsController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	unexport := filepath.Join(sysfsRoot, "unexport")
	for pin := range c.claimed {
		_ = c.Set(pin, false)
		_ = os.WriteFile(unexport, []byte(strconv.Itoa(pin)), 0o200)
		delete(c.claimed, pin)
	}
	return nil
}

// NopController satisfies LEDController on hosts without GPIO hardware.
type NopController struct{}

// Setup implements LEDController.
func (NopController) Setup(pin int) error { return nil }

// Set implements LEDController.
func (NopController) Set(pin int, on bool) error { return nil }

// Close implements LEDController.
func (NopController) Close() error { return nil }
