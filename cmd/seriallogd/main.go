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

// seriallogd is the embedded data logger daemon: it supervises one ingestion
// goroutine per serial source, persists every line, and routes traffic to
// the configured plugins.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/longwave/seriallogd/internal/config"
	"github.com/longwave/seriallogd/internal/dispatcher"
	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/internal/metrics"
	"github.com/longwave/seriallogd/internal/plugins"
	"github.com/longwave/seriallogd/internal/registry"
	"github.com/longwave/seriallogd/internal/sink"
	"github.com/longwave/seriallogd/internal/source"
	"github.com/longwave/seriallogd/internal/supervisor"
	"github.com/longwave/seriallogd/internal/transport"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type options struct {
	verbose     int
	logDir      string
	device      string
	configPath  string
	metricsAddr string
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:     "seriallogd",
		Short:   "Serial data recording daemon",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
		SilenceUsage: true,
	}

	flags := root.Flags()
	flags.CountVarP(&opts.verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	flags.StringVarP(&opts.logDir, "logdir", "l", "", "Record and log directory")
	flags.StringVarP(&opts.device, "device", "d", "", "Primary serial device")
	flags.StringVar(&opts.configPath, "config", "", "Configuration file path")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus listen address")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	// CLI flag overrides
	if opts.logDir != "" {
		cfg.LogDir = opts.logDir
		cfg.Sink.Dir = opts.logDir
	}
	if opts.device != "" {
		cfg.Device = opts.device
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = opts.metricsAddr
	}

	logger, closers, err := buildLogger(opts, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	slog.SetDefault(logger)

	logger.Info("seriallogd starting",
		slog.String("version", version),
		slog.String("device", cfg.Device),
		slog.String("logdir", cfg.LogDir))

	m := metrics.New()
	reg := registry.New(logger)

	recordSink, err := sink.New(sink.Config{
		Backend: cfg.Sink.Backend,
		Dir:     cfg.Sink.Dir,
		Path:    cfg.Sink.Path,
	}, m)
	if err != nil {
		return err
	}

	catalog, err := plugins.Catalog(cfg.LogDir, logger)
	if err != nil {
		return err
	}
	for name, params := range cfg.Plugins {
		if err := catalog.Load(name, reg, true, params); err != nil {
			return err
		}
	}

	disp := dispatcher.New(reg, recordSink,
		dispatcher.WithMetrics(m),
		dispatcher.WithLogger(logger))

	newTransport := transport.NewFactory()
	readSource := func(ctx context.Context, name string) error {
		return source.NewReader(newTransport(name), disp.Context(), m, logger).Run(ctx)
	}
	sup := supervisor.New(cfg.Device, enumerateSources(cfg.Sources), readSource,
		supervisor.WithInterval(cfg.PollInterval),
		supervisor.WithMetrics(m),
		supervisor.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		go m.Serve(ctx, cfg.Metrics.Addr, logger)
	}

	dispErr := make(chan error, 1)
	go func() { dispErr <- disp.Run(ctx) }()

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		_ = sup.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("received SIGHUP, rotating records")
				disp.Signal(message.SIGHUP)
				continue
			}
			logger.Info("shutting down", slog.String("signal", sig.String()))
			cancel()
			disp.Exit(true)
			<-supDone
			return <-dispErr
		case err := <-dispErr:
			cancel()
			<-supDone
			if err != nil {
				logger.Error("dispatcher failed", log.Error(err))
			}
			return err
		}
	}
}

// buildLogger assembles the process logger: verbosity flag over environment
// defaults, plus the optional YAML logging configuration with its handler
// files rebased onto the log directory.
func buildLogger(opts *options, cfg *config.Config) (*slog.Logger, []io.Closer, error) {
	base := log.FromEnv()
	if opts.verbose > 0 {
		base.Level = log.LevelFromVerbosity(opts.verbose)
	}

	if cfg.LoggingConfig == "" {
		return log.New(base), nil, nil
	}
	return log.LoadYAML(cfg.LoggingConfig, cfg.LogDir)
}

// enumerateSources filters the configured extra sources down to the ones
// currently present, so the supervisor only spawns readers for devices that
// exist.
func enumerateSources(sources []string) supervisor.EnumerateFunc {
	return func() []string {
		var present []string
		for _, path := range sources {
			if _, err := os.Stat(path); err == nil {
				present = append(present, path)
			}
		}
		return present
	}
}
