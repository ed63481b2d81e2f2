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
	"context"
	"fmt"
	"log/slog"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/pkg/errors"
)

// Registrar is the subset of the registry a loader needs. It is satisfied by
// *registry.Registry.
type Registrar interface {
	RegisterWorker(classID string, factory WorkerFactory, config map[string]any)
	RegisterDaemon(spec DaemonSpec, config map[string]any)
}

// HandlerFunc is a bare per-message handler. Entries that provide only a
// HandlerFunc are adapted into full Workers by the loader.
type HandlerFunc func(ctx context.Context, pctx Context, msg message.Message)

// Entry is one compiled-in plugin entry point. Exactly one of Worker,
// Daemon, or Handler must be set.
type Entry struct {
	// Worker is a Regular plugin factory.
	Worker WorkerFactory

	// Daemon is a Daemon plugin specification.
	Daemon *DaemonSpec

	// Handler is a bare function adapted into a Worker accepting Kinds.
	Handler HandlerFunc

	// Kinds are the accepted message kinds for Handler entries.
	Kinds []message.Kind
}

func (e Entry) validate(name string) error {
	set := 0
	if e.Worker != nil {
		set++
	}
	if e.Daemon != nil {
		set++
	}
	if e.Handler != nil {
		set++
	}
	if set != 1 {
		return &errors.ConfigurationError{
			Plugin: name,
			Reason: fmt.Sprintf("entry must expose exactly one entry point, has %d", set),
		}
	}
	if e.Handler != nil && len(e.Kinds) == 0 {
		return &errors.ConfigurationError{
			Plugin: name,
			Reason: "handler entry declares no accepted kinds",
		}
	}
	return nil
}

// Loader resolves plugin names from configuration to compiled-in entry
// points. It replaces runtime module discovery with an explicit catalog:
// every loadable plugin is a statically known factory added by its package.
type Loader struct {
	entries map[string]Entry
	logger  *slog.Logger
}

// NewLoader creates an empty plugin catalog.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		entries: make(map[string]Entry),
		logger:  log.WithComponent(logger, "plugin-loader"),
	}
}

// Add places an entry point in the catalog under name. Adding a name twice
// is a configuration error.
func (l *Loader) Add(name string, entry Entry) error {
	if err := entry.validate(name); err != nil {
		return err
	}
	if _, exists := l.entries[name]; exists {
		return &errors.ConfigurationError{Plugin: name, Reason: "already in catalog"}
	}
	l.entries[name] = entry
	return nil
}

// Names lists the catalog's plugin names.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.entries))
	for n := range l.entries {
		names = append(names, n)
	}
	return names
}

// Load resolves name and, when register is true, registers the entry with
// the given registrar using params as the class's startup configuration.
// Handler entries are wrapped into full Workers before registration.
func (l *Loader) Load(name string, reg Registrar, register bool, params map[string]any) error {
	entry, ok := l.entries[name]
	if !ok {
		return &errors.ConfigurationError{Plugin: name, Reason: "no such plugin in catalog"}
	}

	if !register {
		return nil
	}

	switch {
	case entry.Worker != nil:
		reg.RegisterWorker(name, entry.Worker, params)
	case entry.Daemon != nil:
		reg.RegisterDaemon(*entry.Daemon, params)
	case entry.Handler != nil:
		kinds := entry.Kinds
		fn := entry.Handler
		reg.RegisterWorker(name, func() Worker {
			return newHandlerWorker(name, fn, kinds)
		}, params)
	}

	l.logger.Debug("plugin loaded", log.String(log.PluginKey, name))
	return nil
}

// handlerWorker adapts a HandlerFunc to the Worker contract.
type handlerWorker struct {
	*Base
	fn HandlerFunc
}

func newHandlerWorker(name string, fn HandlerFunc, kinds []message.Kind) *handlerWorker {
	return &handlerWorker{Base: NewBase(name, kinds...), fn: fn}
}

// Configure accepts any options; a bare handler declares none.
func (w *handlerWorker) Configure(options map[string]any) error {
	return w.ApplyOptions(options, nil)
}

// Run invokes the handler once per accepted message until exit.
func (w *handlerWorker) Run(ctx context.Context) error {
	for {
		msg, ok := w.Next(PollInterval)
		if !ok {
			if w.Exiting() || ctx.Err() != nil {
				return nil
			}
			continue
		}
		w.fn(ctx, w.Context(), msg)
	}
}
