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

// Package registry catalogs plugin classes and their startup configuration.
//
// The Registry is an explicit object constructed once at process start and
// passed by reference to the dispatcher and to plugin-loading code; there is
// no package-global state. It owns the run-lock: the mutual-exclusion guard
// ensuring only one dispatcher run and no concurrent registration mutation
// happen at once.
package registry

import (
	"log/slog"
	"sync"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/pkg/errors"
	"github.com/longwave/seriallogd/pkg/plugin"
)

// ErrRunActive is returned when a second dispatcher run is attempted while
// one is already holding the run-lock. Reentrancy is not supported.
var ErrRunActive = errors.New("a dispatcher run is already active")

// Descriptor pairs a Regular plugin class with its startup configuration.
// Descriptors are immutable after registration and live for the process
// lifetime.
type Descriptor struct {
	ClassID string
	Factory plugin.WorkerFactory
	Config  map[string]any
}

// DaemonDescriptor pairs a Daemon plugin class with its startup
// configuration.
type DaemonDescriptor struct {
	Spec   plugin.DaemonSpec
	Config map[string]any
}

// Registry holds the registered plugin classes. Registration is the only
// mutator; reads return stable snapshots taken at dispatcher-start time.
type Registry struct {
	// runLock serializes registration against dispatcher runs. It is
	// held for the duration of each registration and for the duration of
	// a whole run.
	runLock sync.Mutex

	// mu guards the catalogs so snapshots can be taken while the
	// run-lock is held by a running dispatcher.
	mu      sync.Mutex
	workers map[string]Descriptor
	daemons map[string]DaemonDescriptor
	order   []string // worker insertion order, for deterministic startup

	logger *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		workers: make(map[string]Descriptor),
		daemons: make(map[string]DaemonDescriptor),
		logger:  log.WithComponent(logger, "registry"),
	}
}

// RegisterWorker registers a Regular plugin class. Re-registration of an
// existing class id is a no-op logged as informational; the first
// registration wins. Safe to call from multiple initialization goroutines.
func (r *Registry) RegisterWorker(classID string, factory plugin.WorkerFactory, config map[string]any) {
	r.runLock.Lock()
	defer r.runLock.Unlock()

	if factory == nil {
		r.logger.Warn("ignoring worker registration without factory",
			log.String(log.PluginKey, classID))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[classID]; exists {
		r.logger.Info("class is already registered",
			log.String(log.PluginKey, classID))
		return
	}

	r.workers[classID] = Descriptor{ClassID: classID, Factory: factory, Config: config}
	r.order = append(r.order, classID)
	r.logger.Debug("registered regular plugin", log.String(log.PluginKey, classID))
}

// RegisterDaemon registers a Daemon plugin class and immediately invokes the
// class's static configuration hook with config, reporting failure as a
// warning rather than raising it. Re-registration is an informational no-op.
func (r *Registry) RegisterDaemon(spec plugin.DaemonSpec, config map[string]any) {
	r.runLock.Lock()
	defer r.runLock.Unlock()

	if spec.ClassID == "" || spec.Condition == nil || spec.New == nil {
		r.logger.Warn("ignoring incomplete daemon registration",
			log.String(log.DaemonKey, spec.ClassID))
		return
	}

	r.mu.Lock()
	if _, exists := r.daemons[spec.ClassID]; exists {
		r.mu.Unlock()
		r.logger.Info("class is already registered",
			log.String(log.DaemonKey, spec.ClassID))
		return
	}
	r.daemons[spec.ClassID] = DaemonDescriptor{Spec: spec, Config: config}
	r.mu.Unlock()

	if spec.Configure != nil {
		if err := spec.Configure(config); err != nil {
			r.logger.Warn("unable to configure daemon class",
				log.String(log.DaemonKey, spec.ClassID),
				log.Error(err))
		}
	}
	r.logger.Debug("registered daemon plugin", log.String(log.DaemonKey, spec.ClassID))
}

// Workers returns a stable snapshot of the Regular plugin descriptors in
// registration order.
func (r *Registry) Workers() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.workers[id])
	}
	return out
}

// Daemons returns a stable snapshot of the Daemon plugin descriptors.
func (r *Registry) Daemons() []DaemonDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DaemonDescriptor, 0, len(r.daemons))
	for _, d := range r.daemons {
		out = append(out, d)
	}
	return out
}

// BeginRun acquires the run-lock for a dispatcher run. It fails with
// ErrRunActive if a run already holds it; it never blocks.
func (r *Registry) BeginRun() error {
	if !r.runLock.TryLock() {
		return ErrRunActive
	}
	return nil
}

// EndRun releases the run-lock acquired by BeginRun.
func (r *Registry) EndRun() {
	r.runLock.Unlock()
}
