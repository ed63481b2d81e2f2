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

// Package plugin defines the subscriber contracts of the dispatch engine.
//
// A Regular worker is instantiated once per dispatcher run, owns a private
// inbound queue, and processes messages until told to exit. A Daemon is
// instantiated conditionally, whenever its predicate fires against the
// message currently being routed and no instance of its class is alive; it
// runs once to completion and is pruned.
package plugin

import (
	"context"

	"github.com/longwave/seriallogd/internal/message"
)

// Context is the narrow handle every worker and daemon receives for
// enqueueing synthetic commands without depending on dispatcher internals.
type Context interface {
	// Put enqueues a message onto the dispatcher's main queue without
	// blocking. If the queue is full the message is dropped with a warning.
	Put(msg message.Message)

	// Blink requests a single flash of the named LED.
	Blink(led string, freq float64)

	// BlinkUntil requests a continuous blink of the named LED, sustained
	// until superseded.
	BlinkUntil(led string, freq float64)

	// LogRotate requests a record sink rotation.
	LogRotate()
}

// Worker is the Regular plugin contract. Implementations usually embed
// *Base, which provides the queue, exit signaling, and kind filtering.
type Worker interface {
	// Name is the worker's class identifier, unique per registry.
	Name() string

	// ConsumerKinds declares the message kinds this worker accepts.
	ConsumerKinds() []message.Kind

	// Configure applies startup options. It validates each option's
	// declared type before assignment, skipping and logging invalid ones,
	// and is idempotent.
	Configure(options map[string]any) error

	// SetContext hands the worker its dispatcher handle. Called once,
	// before Run.
	SetContext(pctx Context)

	// Put offers a message. Messages whose kind is not in the accepted
	// set are silently dropped.
	Put(msg message.Message)

	// Run is the worker's processing loop. It blocks on the private
	// queue with a short timeout so the exit signal is observed promptly,
	// and returns when exiting. A returned error is logged by the
	// dispatcher; it never ends the run.
	Run(ctx context.Context) error

	// Exit sets the exit signal. With join, it first waits for the
	// private queue to drain.
	Exit(join bool)
}

// WorkerFactory constructs a fresh Worker instance. The dispatcher invokes
// factories at run start, once per registered Regular class.
type WorkerFactory func() Worker

// DaemonRunner is one ephemeral daemon instance. Run executes to completion;
// the dispatcher prunes the instance once it returns.
type DaemonRunner interface {
	Run(ctx context.Context) error
}

// DaemonFunc adapts a bare function to DaemonRunner.
type DaemonFunc func(ctx context.Context) error

// Run implements DaemonRunner.
func (f DaemonFunc) Run(ctx context.Context) error { return f(ctx) }

// DaemonSpec describes a Daemon plugin class.
type DaemonSpec struct {
	// ClassID identifies the daemon class. At most one live instance per
	// ClassID exists at any time.
	ClassID string

	// Condition is a pure predicate over the message currently being
	// routed. It is consulted only while no instance of this class is
	// alive, and must tolerate a nil message (poll tick).
	Condition func(msg message.Message) bool

	// New constructs an instance for the triggering message. Construction
	// failure is logged by the dispatcher and never crashes the run.
	New func(pctx Context, trigger message.Message) (DaemonRunner, error)

	// Configure is an optional static hook invoked once at registration
	// with the class's startup options. Failure is reported, not raised.
	Configure func(options map[string]any) error
}
