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

// Package supervisor keeps one ingestion goroutine alive per present data
// source. It polls on a fixed cadence, prunes slots whose goroutine has
// terminated, and spawns replacements for sources that are expected but have
// no live goroutine. It never terminates a live goroutine because a source
// stopped being enumerated; endpoints decide for themselves when they fail.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/metrics"
	"github.com/longwave/seriallogd/pkg/errors"
)

// DefaultInterval is the poll cadence.
const DefaultInterval = time.Second

// RunFunc is the body of one ingestion goroutine. It blocks until the
// source fails or the context is cancelled.
type RunFunc func(ctx context.Context, name string) error

// EnumerateFunc reports the source endpoints currently present on the
// system, excluding the primary (which is always expected).
type EnumerateFunc func() []string

// Supervisor maintains the live ingestion goroutine set.
type Supervisor struct {
	primary   string
	enumerate EnumerateFunc
	run       RunFunc

	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	slots    map[string]*slot
	limiters map[string]*rate.Limiter
	spawned  map[string]bool
}

// slot tracks one live ingestion goroutine.
type slot struct {
	name string
	done chan struct{}
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithInterval overrides the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.interval = d }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// New creates a supervisor for the primary source plus whatever enumerate
// discovers. enumerate may be nil when only the primary exists.
func New(primary string, enumerate EnumerateFunc, run RunFunc, opts ...Option) *Supervisor {
	s := &Supervisor{
		primary:   primary,
		enumerate: enumerate,
		run:       run,
		interval:  DefaultInterval,
		logger:    log.WithComponent(slog.Default(), "supervisor"),
		slots:     make(map[string]*slot),
		limiters:  make(map[string]*rate.Limiter),
		spawned:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Live returns the number of live ingestion goroutines. Only safe to call
// from tests after Run has returned or between synchronization points.
func (s *Supervisor) Live() int {
	n := 0
	for _, sl := range s.slots {
		select {
		case <-sl.done:
		default:
			n++
		}
	}
	return n
}

// Run polls until the context is cancelled, then joins every live
// goroutine before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	s.spawnMissing(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopping",
				log.Int("live", s.Live()))
			for _, sl := range s.slots {
				<-sl.done
			}
			return nil
		case <-ticker.C:
			s.prune()
			s.spawnMissing(ctx)
		}
	}
}

// desired is the endpoint set that should have a live goroutine: the primary
// plus everything currently enumerable, deduplicated.
func (s *Supervisor) desired() []string {
	seen := map[string]struct{}{s.primary: {}}
	out := []string{s.primary}
	if s.enumerate != nil {
		for _, name := range s.enumerate() {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// prune removes slots whose goroutine has terminated so their endpoint
// becomes spawnable again.
func (s *Supervisor) prune() {
	for name, sl := range s.slots {
		select {
		case <-sl.done:
			delete(s.slots, name)
		default:
		}
	}
}

// spawnMissing starts a goroutine for every desired endpoint without a live
// slot. Respawns are rate limited per endpoint so a flapping device cannot
// spin the loop; the limiter refills well within one poll interval, so a
// single honest failure is replaced on the next poll.
func (s *Supervisor) spawnMissing(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	for _, name := range s.desired() {
		if _, alive := s.slots[name]; alive {
			continue
		}

		lim, ok := s.limiters[name]
		if !ok {
			lim = rate.NewLimiter(rate.Every(s.interval/2), 1)
			s.limiters[name] = lim
		}
		if !lim.Allow() {
			continue
		}

		sl := &slot{name: name, done: make(chan struct{})}
		s.slots[name] = sl
		if s.spawned[name] {
			s.metrics.IncRespawn(name)
			s.logger.Info("respawning source", log.String(log.SourceKey, name))
		} else {
			s.spawned[name] = true
			s.logger.Info("starting source", log.String(log.SourceKey, name))
		}

		go func(sl *slot) {
			defer close(sl.done)
			err := s.run(ctx, sl.name)
			if err == nil {
				return
			}
			// Retryable failures are routine here: the next poll respawns
			// the slot. Anything else deserves attention.
			if errors.IsRetryable(err) {
				s.logger.Warn("source terminated",
					log.String(log.SourceKey, sl.name),
					log.Error(err))
			} else {
				s.logger.Error("source terminated",
					log.String(log.SourceKey, sl.name),
					log.Error(err))
			}
		}(sl)
	}
}
