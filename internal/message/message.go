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

// Package message defines the closed set of message kinds that flow through
// the dispatcher. Messages are immutable once constructed; routing is by
// Kind only, payload contents are opaque to the dispatch core.
package message

import "time"

// Kind tags a message for routing purposes.
type Kind int

const (
	// KindData is a line-oriented record read from a physical source.
	KindData Kind = iota
	// KindCommand is a system signal or an arbitrary control payload.
	KindCommand
)

// String returns the routing tag name.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Signal enumerates system-level events routed through the main queue.
type Signal int

const (
	// SIGNONE is the zero value; a Command carrying SIGNONE is a pure
	// payload command.
	SIGNONE Signal = iota
	// SIGHUP requests a record sink rotation.
	SIGHUP
	// SIGUSR1 is reserved for plugin-defined events.
	SIGUSR1
	// SIGTERM notifies subscribers that the process is shutting down.
	SIGTERM
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case SIGHUP:
		return "SIGHUP"
	case SIGUSR1:
		return "SIGUSR1"
	case SIGTERM:
		return "SIGTERM"
	default:
		return "SIGNONE"
	}
}

// Message is implemented by every value routed by the dispatcher.
// Implementations must be safe to share between goroutines without copying,
// which in practice means immutable value types.
type Message interface {
	Kind() Kind
}

// DataRecord is one line received from a physical data source.
type DataRecord struct {
	// Source is the identifier of the ingestion endpoint the line came from.
	Source string
	// Text is the raw line without its trailing newline.
	Text string
	// Received is the local arrival time.
	Received time.Time
}

// NewDataRecord stamps a raw line with its source and arrival time.
func NewDataRecord(source, text string) DataRecord {
	return DataRecord{Source: source, Text: text, Received: time.Now()}
}

// Kind implements Message.
func (DataRecord) Kind() Kind { return KindData }

// Command carries either a system Signal or an arbitrary payload such as a
// Blink request. A command with both fields set is routed once; consumers
// inspect whichever field they care about.
type Command struct {
	Signal  Signal
	Payload any
}

// Kind implements Message.
func (Command) Kind() Kind { return KindCommand }

// Blink asks the hardware-signal worker to flash an LED.
type Blink struct {
	// LED is a symbolic name ("data", "usb", "aux") resolved to a pin by
	// the gpio worker's configuration.
	LED string
	// Priority orders competing blink requests; lower wins.
	Priority int
	// Frequency is the toggle period in seconds.
	Frequency float64
	// Continuous blinks until superseded by a non-continuous request for
	// the same LED or until shutdown.
	Continuous bool
}

// UsbStage enumerates the bulk-copy collaborator's state transitions.
type UsbStage int

const (
	// UsbDetected fires when a removable filesystem appears at the mount
	// point. It is the trigger condition for the copy daemon.
	UsbDetected UsbStage = iota
	// UsbCopying is emitted while files are being transferred.
	UsbCopying
	// UsbDone is emitted after a copy cycle completes.
	UsbDone
	// UsbError is emitted when a copy cycle aborts, for example on
	// insufficient free space.
	UsbError
)

// String returns the stage name.
func (s UsbStage) String() string {
	switch s {
	case UsbDetected:
		return "detected"
	case UsbCopying:
		return "copying"
	case UsbDone:
		return "done"
	case UsbError:
		return "error"
	default:
		return "unknown"
	}
}

// UsbState is the usb_signal payload consumed by the hardware-signal worker.
type UsbState struct {
	Stage UsbStage
	Mount string
}
