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

// Package metrics exposes the logger's operational counters. All recording
// methods are nil-safe so components can run without a collector.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/longwave/seriallogd/internal/log"
)

// Metrics holds the prometheus collectors for the dispatch engine.
type Metrics struct {
	registry *prometheus.Registry

	dispatched   *prometheus.CounterVec
	daemonSpawns *prometheus.CounterVec
	respawns     *prometheus.CounterVec
	linesRead    *prometheus.CounterVec
	queueDrops   *prometheus.CounterVec
	sinkRecords  prometheus.Counter
	sinkErrors   prometheus.Counter
	queueDepth   prometheus.Gauge
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seriallogd_messages_dispatched_total",
			Help: "Messages routed by the dispatcher, by kind.",
		}, []string{"kind"}),
		daemonSpawns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seriallogd_daemon_spawns_total",
			Help: "Daemon instances spawned, by class.",
		}, []string{"class"}),
		respawns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seriallogd_source_respawns_total",
			Help: "Ingestion goroutines respawned by the supervisor, by source.",
		}, []string{"source"}),
		linesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seriallogd_lines_read_total",
			Help: "Lines read from physical sources.",
		}, []string{"source"}),
		queueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seriallogd_queue_drops_total",
			Help: "Messages dropped because the main queue was full, by kind.",
		}, []string{"kind"}),
		sinkRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seriallogd_sink_records_total",
			Help: "Records written to the record sink.",
		}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seriallogd_sink_errors_total",
			Help: "Record sink failures.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seriallogd_queue_depth",
			Help: "Messages waiting on the dispatcher's main queue.",
		}),
	}

	reg.MustRegister(
		m.dispatched, m.daemonSpawns, m.respawns, m.linesRead,
		m.queueDrops, m.sinkRecords, m.sinkErrors, m.queueDepth,
	)
	return m
}

// IncDispatched counts one routed message of the given kind.
func (m *Metrics) IncDispatched(kind string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(kind).Inc()
}

// IncDaemonSpawn counts one daemon instantiation.
func (m *Metrics) IncDaemonSpawn(class string) {
	if m == nil {
		return
	}
	m.daemonSpawns.WithLabelValues(class).Inc()
}

// IncRespawn counts one supervisor-driven source respawn.
func (m *Metrics) IncRespawn(source string) {
	if m == nil {
		return
	}
	m.respawns.WithLabelValues(source).Inc()
}

// IncQueueDrop counts one message discarded at the main queue. Drops mean
// data loss; the counter makes a stalled sink observable before an operator
// notices gaps in the records.
func (m *Metrics) IncQueueDrop(kind string) {
	if m == nil {
		return
	}
	m.queueDrops.WithLabelValues(kind).Inc()
}

// IncLines counts lines ingested from a source.
func (m *Metrics) IncLines(source string) {
	if m == nil {
		return
	}
	m.linesRead.WithLabelValues(source).Inc()
}

// IncSinkRecord counts one persisted record.
func (m *Metrics) IncSinkRecord() {
	if m == nil {
		return
	}
	m.sinkRecords.Inc()
}

// IncSinkError counts one sink failure.
func (m *Metrics) IncSinkError() {
	if m == nil {
		return
	}
	m.sinkErrors.Inc()
}

// SetQueueDepth records the main queue's current depth.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Handler serves the metrics in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics listener on addr until ctx is cancelled. Failures are
// logged, never fatal: metrics are an observability convenience, not part of
// the dispatch contract.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics listener failed", log.Error(err))
	}
}
