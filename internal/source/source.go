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

// Package source turns a transport endpoint into a stream of data records
// on the dispatcher's main queue. One Reader runs per live endpoint; the
// supervisor owns spawning and respawning, a Reader simply reads until its
// endpoint fails or its context is cancelled.
package source

import (
	"context"
	"log/slog"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/internal/metrics"
	"github.com/longwave/seriallogd/internal/transport"
	"github.com/longwave/seriallogd/pkg/errors"
	"github.com/longwave/seriallogd/pkg/plugin"
)

// dataLED is the LED pulsed once per received line.
const dataLED = "data"

// blinkFrequency is the pulse period in seconds, fast enough to read as
// activity without saturating the command path.
const blinkFrequency = 0.04

// Reader pumps lines from one endpoint into the main queue.
type Reader struct {
	tr      transport.Transport
	pctx    plugin.Context
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReader creates a reader for the given endpoint. metrics may be nil.
func NewReader(tr transport.Transport, pctx plugin.Context, m *metrics.Metrics, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		tr:      tr,
		pctx:    pctx,
		metrics: m,
		logger: log.WithSource(log.WithComponent(logger, "source"), tr.Name()),
	}
}

// Run opens the endpoint and reads lines until failure or cancellation.
// It never retries: a failed endpoint is reported upward and the supervisor
// decides whether a replacement is spawned.
func (r *Reader) Run(ctx context.Context) error {
	if err := r.tr.Open(ctx); err != nil {
		return errors.Wrapf(err, "opening transport %s", r.tr.Name())
	}
	defer r.tr.Close()

	r.logger.Info("source online")
	for {
		line, err := r.tr.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("source stopped")
				return nil
			}
			r.logger.Warn("source failed", log.Error(err))
			return err
		}
		if line == "" {
			continue
		}

		r.pctx.Put(message.NewDataRecord(r.tr.Name(), line))
		r.pctx.Blink(dataLED, blinkFrequency)
		r.metrics.IncLines(r.tr.Name())
	}
}
