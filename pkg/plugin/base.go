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

package plugin

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/message"
)

// DefaultQueueSize is the capacity of a worker's private inbound queue.
const DefaultQueueSize = 256

// PollInterval is the bounded wait workers use on their private queue so the
// exit signal is observed promptly.
const PollInterval = 100 * time.Millisecond

// drainInterval is how often Exit(join) re-checks the private queue.
const drainInterval = 10 * time.Millisecond

// Base provides the common worker machinery: a private inbound queue
// filtered by accepted kinds, cooperative exit signaling, and configuration
// state. Concrete workers embed *Base and implement Configure and Run.
type Base struct {
	name  string
	kinds map[message.Kind]struct{}

	queue    chan message.Message
	exitCh   chan struct{}
	exitOnce sync.Once

	pctx       Context
	configured atomic.Bool
	logger     *slog.Logger
}

// NewBase creates the shared machinery for a worker named name that accepts
// the given message kinds.
func NewBase(name string, kinds ...message.Kind) *Base {
	accepted := make(map[message.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		accepted[k] = struct{}{}
	}
	return &Base{
		name:   name,
		kinds:  accepted,
		queue:  make(chan message.Message, DefaultQueueSize),
		exitCh: make(chan struct{}),
		logger: slog.Default().With(log.String(log.PluginKey, name)),
	}
}

// Name returns the worker's class identifier.
func (b *Base) Name() string { return b.name }

// ConsumerKinds returns the declared accepted kinds.
func (b *Base) ConsumerKinds() []message.Kind {
	kinds := make([]message.Kind, 0, len(b.kinds))
	for k := range b.kinds {
		kinds = append(kinds, k)
	}
	return kinds
}

// Accepts reports whether the worker subscribed to the given kind.
func (b *Base) Accepts(k message.Kind) bool {
	_, ok := b.kinds[k]
	return ok
}

// SetContext stores the dispatcher handle. Called once before Run starts.
func (b *Base) SetContext(pctx Context) { b.pctx = pctx }

// Context returns the dispatcher handle.
func (b *Base) Context() Context { return b.pctx }

// Logger returns the worker's scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Put offers a message to the worker. Messages whose kind is not in the
// accepted set are dropped silently; this is defense against mis-routing,
// the dispatcher already filters by kind. A full queue drops with a warning
// rather than blocking the routing loop.
func (b *Base) Put(msg message.Message) {
	if msg == nil || !b.Accepts(msg.Kind()) {
		return
	}
	select {
	case b.queue <- msg:
	default:
		b.logger.Warn("inbound queue full, dropping message",
			log.String(log.KindKey, msg.Kind().String()))
	}
}

// Next blocks up to timeout for the next message. ok is false on timeout or
// when the exit signal is set; callers distinguish via Exiting.
func (b *Base) Next(timeout time.Duration) (msg message.Message, ok bool) {
	select {
	case m := <-b.queue:
		return m, true
	case <-b.exitCh:
		return nil, false
	case <-time.After(timeout):
		return nil, false
	}
}

// Exiting reports whether the exit signal has been set.
func (b *Base) Exiting() bool {
	select {
	case <-b.exitCh:
		return true
	default:
		return false
	}
}

// ExitSignal exposes the exit channel for select loops.
func (b *Base) ExitSignal() <-chan struct{} { return b.exitCh }

// Exit sets the exit signal. With join it first waits for the private queue
// to drain; a worker stuck on one message can therefore delay a joining
// shutdown indefinitely, which is a documented risk of the cooperative
// cancellation model.
func (b *Base) Exit(join bool) {
	if join {
		for len(b.queue) > 0 {
			time.Sleep(drainInterval)
		}
	}
	b.exitOnce.Do(func() { close(b.exitCh) })
}

// MarkConfigured records that Configure ran.
func (b *Base) MarkConfigured() { b.configured.Store(true) }

// Configured reports whether Configure ran.
func (b *Base) Configured() bool { return b.configured.Load() }

// Pending returns the number of queued, unprocessed messages.
func (b *Base) Pending() int { return len(b.queue) }
