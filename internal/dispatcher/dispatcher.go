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

// Package dispatcher implements the message routing and worker supervision
// core: a single routing goroutine that serializes persistence, fans typed
// messages out to subscribed workers, and spawns at most one live daemon
// instance per registered class.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/internal/metrics"
	"github.com/longwave/seriallogd/internal/registry"
	"github.com/longwave/seriallogd/internal/sink"
	"github.com/longwave/seriallogd/pkg/errors"
	"github.com/longwave/seriallogd/pkg/plugin"
)

// State is the dispatcher's lifecycle phase.
type State int32

const (
	// StateIdle means Run has not been entered.
	StateIdle State = iota
	// StateRunning means the routing loop is processing messages.
	StateRunning
	// StateDraining means the exit signal was observed and workers are
	// being shut down.
	StateDraining
	// StateStopped means Run has returned.
	StateStopped
)

// String returns the phase name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DefaultPollInterval bounds the routing loop's queue wait so the exit
// signal is observed within one interval even with no traffic.
const DefaultPollInterval = time.Second

// defaultQueueSize is the main queue capacity.
const defaultQueueSize = 1024

// workerHandle associates a running worker with its completion signal. The
// handle set is owned exclusively by the routing goroutine; workers only
// ever receive references to enqueue into, never dispatcher state.
type workerHandle struct {
	worker plugin.Worker
	done   chan struct{}
}

// daemonInstance tracks one live ephemeral worker.
type daemonInstance struct {
	classID   string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Dispatcher owns the main queue, the record sink, and the worker and
// daemon instance sets.
type Dispatcher struct {
	reg     *registry.Registry
	sink    sink.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger

	queue    chan message.Message
	pollIntv time.Duration

	state      atomic.Int32
	exitCh     chan struct{}
	exitOnce   sync.Once
	joinOnExit atomic.Bool
	doneCh     chan struct{}

	appctx *AppContext
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithPollInterval overrides the routing loop's bounded wait.
func WithPollInterval(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.pollIntv = d }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(dp *Dispatcher) { dp.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(dp *Dispatcher) { dp.logger = logger }
}

// New creates a dispatcher routing into the given sink. The registry
// provides the worker and daemon catalogs and owns the run-lock.
func New(reg *registry.Registry, s sink.Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:      reg,
		sink:     s,
		logger:   log.WithComponent(slog.Default(), "dispatcher"),
		queue:    make(chan message.Message, defaultQueueSize),
		pollIntv: DefaultPollInterval,
		exitCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.appctx = newAppContext(d.queue, d.metrics, d.logger)
	return d
}

// Context returns the narrow handle workers and collaborators use to
// enqueue synthetic commands.
func (d *Dispatcher) Context() *AppContext { return d.appctx }

// State returns the current lifecycle phase.
func (d *Dispatcher) State() State { return State(d.state.Load()) }

func (d *Dispatcher) setState(s State) { d.state.Store(int32(s)) }

// Put enqueues a message onto the main queue without blocking.
func (d *Dispatcher) Put(msg message.Message) { d.appctx.Put(msg) }

// Signal enqueues a Command carrying the given system signal. It travels
// the same path as data, so subscribers observe it in order relative to
// other traffic.
func (d *Dispatcher) Signal(sig message.Signal) {
	d.Put(message.Command{Signal: sig})
}

// Exit sets the exit signal and unblocks a blocked queue wait with a nil
// sentinel. With join it returns only after every worker and live daemon
// has terminated and the run-lock is released.
func (d *Dispatcher) Exit(join bool) {
	if join {
		d.joinOnExit.Store(true)
	}
	d.exitOnce.Do(func() { close(d.exitCh) })
	select {
	case d.queue <- nil:
	default:
	}
	if join && d.State() != StateIdle {
		<-d.doneCh
	}
}

// Run executes the routing loop until the exit signal is observed or the
// context is cancelled; cancellation routes through the same graceful drain
// as Exit. Only one run may be active process-wide: a second concurrent Run
// fails immediately with registry.ErrRunActive.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.reg.BeginRun(); err != nil {
		return err
	}
	defer d.reg.EndRun()
	defer close(d.doneCh)
	defer d.setState(StateStopped)

	if err := d.sink.Open(ctx); err != nil {
		return &errors.PersistenceError{Op: "open", Cause: err}
	}
	defer d.sink.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	handles, byKind := d.startWorkers(runCtx)
	daemons := d.reg.Daemons()
	live := make(map[string]*daemonInstance)

	d.setState(StateRunning)
	d.logger.Info("dispatcher running",
		log.Int("workers", len(handles)),
		log.Int("daemon_classes", len(daemons)))

	var runErr error

loop:
	for {
		// The routed message for this iteration; nil on poll timeouts
		// and sentinel ticks. Daemon conditions see it either way.
		var msg message.Message

		select {
		case <-ctx.Done():
			break loop
		case <-d.exitCh:
			break loop
		case m := <-d.queue:
			if m != nil {
				if err := d.sink.Log(m); err != nil {
					runErr = &errors.PersistenceError{Op: "log", Cause: err}
					break loop
				}
				d.metrics.IncDispatched(m.Kind().String())
				for _, h := range byKind[m.Kind()] {
					h.worker.Put(m)
				}
				msg = m
			}
		case <-time.After(d.pollIntv):
		}

		d.metrics.SetQueueDepth(len(d.queue))
		d.spawnDaemons(runCtx, daemons, live, msg)
		pruneDaemons(live)
	}

	d.setState(StateDraining)
	join := d.joinOnExit.Load() || ctx.Err() != nil
	d.logger.Info("dispatcher draining", log.Bool("join", join))

	for _, h := range handles {
		h.worker.Exit(join)
	}
	for _, inst := range live {
		inst.cancel()
	}
	if join {
		for _, h := range handles {
			<-h.done
		}
		for _, inst := range live {
			<-inst.done
		}
	}

	d.logger.Info("dispatcher stopped")
	return runErr
}

// startWorkers instantiates and launches one worker per registered Regular
// class. A class whose factory or configuration fails is skipped and logged;
// the system continues without it.
func (d *Dispatcher) startWorkers(ctx context.Context) ([]*workerHandle, map[message.Kind][]*workerHandle) {
	var handles []*workerHandle
	byKind := make(map[message.Kind][]*workerHandle)

	for _, desc := range d.reg.Workers() {
		w := desc.Factory()
		if w == nil {
			d.logger.Error("plugin factory returned nil, skipping",
				log.String(log.PluginKey, desc.ClassID))
			continue
		}
		w.SetContext(d.appctx)
		if err := w.Configure(desc.Config); err != nil {
			d.logger.Error("error configuring plugin, skipping",
				log.String(log.PluginKey, desc.ClassID),
				log.Error(err))
			continue
		}

		h := &workerHandle{worker: w, done: make(chan struct{})}
		for _, k := range w.ConsumerKinds() {
			byKind[k] = append(byKind[k], h)
		}
		handles = append(handles, h)

		go func(h *workerHandle, classID string) {
			defer close(h.done)
			if err := h.worker.Run(ctx); err != nil {
				d.logger.Warn("worker finished with error",
					log.String(log.PluginKey, classID),
					log.Error(err))
			}
		}(h, desc.ClassID)
		d.logger.Debug("worker started", log.String(log.PluginKey, desc.ClassID))
	}
	return handles, byKind
}

// spawnDaemons starts an instance for every daemon class whose predicate
// fires against the message currently being routed, provided no instance of
// that class is alive. Liveness is checked before the predicate, so the
// predicate is never consulted while an instance runs.
func (d *Dispatcher) spawnDaemons(
	ctx context.Context,
	daemons []registry.DaemonDescriptor,
	live map[string]*daemonInstance,
	msg message.Message,
) {
	for _, dd := range daemons {
		spec := dd.Spec
		if _, alive := live[spec.ClassID]; alive {
			continue
		}
		if !spec.Condition(msg) {
			continue
		}

		runner, err := spec.New(d.appctx, msg)
		if err != nil {
			d.logger.Error("error instantiating daemon",
				log.String(log.DaemonKey, spec.ClassID),
				log.Error(err))
			continue
		}

		dctx, dcancel := context.WithCancel(ctx)
		inst := &daemonInstance{
			classID:   spec.ClassID,
			startedAt: time.Now(),
			cancel:    dcancel,
			done:      make(chan struct{}),
		}
		live[spec.ClassID] = inst
		d.metrics.IncDaemonSpawn(spec.ClassID)
		d.logger.Debug("daemon spawned", log.String(log.DaemonKey, spec.ClassID))

		go func(inst *daemonInstance, runner plugin.DaemonRunner) {
			defer close(inst.done)
			if err := runner.Run(dctx); err != nil {
				d.logger.Warn("daemon finished with error",
					log.String(log.DaemonKey, inst.classID),
					log.Error(err))
			}
		}(inst, runner)
	}
}

// pruneDaemons removes finished instances so their class becomes spawnable
// again. The live map is owned exclusively by the routing goroutine.
func pruneDaemons(live map[string]*daemonInstance) {
	for id, inst := range live {
		select {
		case <-inst.done:
			inst.cancel()
			delete(live, id)
		default:
		}
	}
}
