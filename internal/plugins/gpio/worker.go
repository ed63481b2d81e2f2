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

package gpio

import (
	"context"
	"sync"
	"time"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/pkg/plugin"
)

// Name is the worker's class identifier in the plugin catalog.
const Name = "gpio"

// Default pin assignments, matching the standard carrier-board wiring.
const (
	defaultDataPin = 16
	defaultUsbPin  = 18
	defaultAuxPin  = 15
)

// defaultPulse is the pulse width used when a blink request carries no
// frequency.
const defaultPulse = 40 * time.Millisecond

// Worker drives status LEDs from Command traffic. Each pin gets its own
// blinker goroutine so a continuous blink never delays message handling.
type Worker struct {
	*plugin.Base
	ctrl LEDController
	pins map[string]int

	mu       sync.Mutex
	blinkers map[int]*blinker
	wg       sync.WaitGroup
}

// New creates the worker with the given controller. A nil controller selects
// sysfs when available and otherwise a logged no-op, so construction never
// fails on hardware-less hosts.
func New(ctrl LEDController) *Worker {
	w := &Worker{
		Base: plugin.NewBase(Name, message.KindCommand),
		ctrl: ctrl,
		pins: map[string]int{
			"data": defaultDataPin,
			"usb":  defaultUsbPin,
			"aux":  defaultAuxPin,
		},
		blinkers: make(map[int]*blinker),
	}
	if w.ctrl == nil {
		if Available() {
			w.ctrl = NewSysfsController()
		} else {
			w.Logger().Warn("gpio interface unavailable, LED signals disabled")
			w.ctrl = NopController{}
		}
	}
	return w
}

// Factory constructs a fresh instance for the plugin catalog.
func Factory() plugin.Worker { return New(nil) }

// Configure applies pin assignments and claims the pins. A pin that cannot
// be claimed disables the controller rather than failing the worker.
func (w *Worker) Configure(options map[string]any) error {
	_ = w.ApplyOptions(options, plugin.OptionTable{
		"data_led": {Type: plugin.IntOption, Set: func(v any) { w.pins["data"] = v.(int) }},
		"usb_led":  {Type: plugin.IntOption, Set: func(v any) { w.pins["usb"] = v.(int) }},
		"aux_led":  {Type: plugin.IntOption, Set: func(v any) { w.pins["aux"] = v.(int) }},
	})

	for name, pin := range w.pins {
		if err := w.ctrl.Setup(pin); err != nil {
			w.Logger().Warn("unable to claim LED pin, LED signals disabled",
				log.String("led", name),
				log.Int("pin", pin),
				log.Error(err))
			w.ctrl = NopController{}
			break
		}
	}
	return nil
}

// Run processes commands until exit.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, ok := w.Next(plugin.PollInterval)
		if ok {
			w.handle(msg)
			continue
		}
		if w.Exiting() || ctx.Err() != nil {
			w.wg.Wait()
			return w.ctrl.Close()
		}
	}
}

func (w *Worker) handle(msg message.Message) {
	cmd, ok := msg.(message.Command)
	if !ok {
		return
	}
	switch p := cmd.Payload.(type) {
	case message.Blink:
		w.request(p)
	case message.UsbState:
		w.handleUsb(p)
	}
}

// handleUsb maps copy-cycle transitions onto the usb LED: a steady blink
// while copying, off when done, a slow attention blink on error (cleared by
// the next detection).
func (w *Worker) handleUsb(st message.UsbState) {
	switch st.Stage {
	case message.UsbDetected:
		w.request(message.Blink{LED: "usb", Frequency: 0.03})
	case message.UsbCopying:
		w.request(message.Blink{LED: "usb", Frequency: 0.1, Continuous: true})
	case message.UsbDone:
		w.stop("usb")
	case message.UsbError:
		w.request(message.Blink{LED: "usb", Frequency: 0.5, Continuous: true})
	}
}

// request forwards a blink to the target pin's blinker, creating it on first
// use. Requests against unknown LED names are dropped with a warning.
func (w *Worker) request(b message.Blink) {
	pin, ok := w.pins[b.LED]
	if !ok {
		w.Logger().Warn("blink for unknown LED", log.String("led", b.LED))
		return
	}
	w.blinker(pin).offer(blinkReq{
		period:     pulsePeriod(b.Frequency),
		continuous: b.Continuous,
		priority:   b.Priority,
	})
}

func (w *Worker) stop(led string) {
	pin, ok := w.pins[led]
	if !ok {
		return
	}
	w.blinker(pin).offer(blinkReq{stop: true})
}

func (w *Worker) blinker(pin int) *blinker {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.blinkers[pin]
	if !ok {
		b = newBlinker()
		w.blinkers[pin] = b
		w.wg.Add(1)
		go b.run(w.ctrl, pin, w.ExitSignal(), &w.wg)
	}
	return b
}

func pulsePeriod(freq float64) time.Duration {
	if freq <= 0 {
		return defaultPulse
	}
	return time.Duration(freq * float64(time.Second))
}

// blinkReq is one unit of work for a blinker goroutine.
type blinkReq struct {
	period     time.Duration
	continuous bool
	priority   int
	stop       bool
}

// blinker serializes the pulses of one pin. While a continuous blink is
// active, one-shot requests are absorbed and a competing continuous request
// only takes over at equal or higher priority (lower number).
type blinker struct {
	requests chan blinkReq
}

func newBlinker() *blinker {
	return &blinker{requests: make(chan blinkReq, 16)}
}

// offer never blocks; excess pulses are dropped, which is fine for an
// activity indicator.
func (b *blinker) offer(req blinkReq) {
	select {
	case b.requests <- req:
	default:
	}
}

func (b *blinker) run(ctrl LEDController, pin int, exit <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	defer ctrl.Set(pin, false)

	var (
		continuous bool
		priority   int
		period     = defaultPulse
		lit        bool
	)

	apply := func(req blinkReq) bool {
		if req.stop {
			continuous = false
			lit = false
			_ = ctrl.Set(pin, false)
			return false
		}
		if req.continuous {
			if continuous && req.priority > priority {
				return false
			}
			continuous = true
			priority = req.priority
			period = req.period
			lit = true
			_ = ctrl.Set(pin, true)
			return false
		}
		return !continuous
	}

	for {
		if continuous {
			select {
			case req := <-b.requests:
				apply(req)
			case <-exit:
				return
			case <-time.After(period):
				lit = !lit
				_ = ctrl.Set(pin, lit)
			}
			continue
		}

		select {
		case req := <-b.requests:
			if !apply(req) {
				continue
			}
			_ = ctrl.Set(pin, true)
			select {
			case <-time.After(req.period):
			case <-exit:
				return
			}
			_ = ctrl.Set(pin, false)
		case <-exit:
			return
		}
	}
}
