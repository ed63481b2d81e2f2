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

package dispatcher

import (
	"log/slog"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/internal/metrics"
)

// AppContext is the narrow handle exposed to workers and sources. It can
// enqueue onto the main queue and synthesize the small set of commands the
// system supports; it deliberately exposes no dispatcher state.
type AppContext struct {
	queue   chan<- message.Message
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func newAppContext(queue chan<- message.Message, m *metrics.Metrics, logger *slog.Logger) *AppContext {
	return &AppContext{queue: queue, metrics: m, logger: logger}
}

// Put enqueues onto the main queue without blocking. When the queue is full
// the message is dropped, counted, and logged; producers are never stalled
// by a slow consumer.
func (c *AppContext) Put(msg message.Message) {
	if msg == nil {
		return
	}
	select {
	case c.queue <- msg:
	default:
		c.metrics.IncQueueDrop(msg.Kind().String())
		c.logger.Warn("main queue full, dropping message",
			log.String(log.KindKey, msg.Kind().String()))
	}
}

// Blink enqueues a one-shot LED pulse command.
func (c *AppContext) Blink(led string, frequency float64) {
	c.Put(message.Command{Payload: message.Blink{
		LED:       led,
		Frequency: frequency,
	}})
}

// BlinkUntil enqueues a continuous LED blink command. The blink runs until
// a later command replaces or cancels it.
func (c *AppContext) BlinkUntil(led string, frequency float64) {
	c.Put(message.Command{Payload: message.Blink{
		LED:        led,
		Frequency:  frequency,
		Continuous: true,
	}})
}

// LogRotate enqueues a rotation command. It flows through the sink like any
// other command, so rotation is serialized with record persistence.
func (c *AppContext) LogRotate() {
	c.Put(message.Command{Signal: message.SIGHUP})
}
