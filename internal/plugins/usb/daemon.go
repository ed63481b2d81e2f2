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

package usb

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/pkg/errors"
	"github.com/longwave/seriallogd/pkg/plugin"
)

// CopyClassID is the copy daemon's class identifier. At most one copy cycle
// runs at a time; re-detection while a cycle is live is absorbed by the
// dispatcher's at-most-one rule.
const CopyClassID = "usb_copy"

// defaultPatterns matches the record files the logger produces under its
// log directory.
var defaultPatterns = []string{"*.log", "*.dat", "**/*.gz"}

// copyConfig is the daemon class's static configuration, applied once at
// registration via the spec's configure hook.
type copyConfig struct {
	source   string
	patterns []string
	logger   *slog.Logger
}

// NewCopySpec builds the daemon spec for the copy cycle. source is the
// directory the record files live in, typically the configured logdir.
func NewCopySpec(source string, logger *slog.Logger) plugin.DaemonSpec {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := &copyConfig{
		source:   source,
		patterns: defaultPatterns,
		logger:   logger.With(log.String(log.DaemonKey, CopyClassID)),
	}

	return plugin.DaemonSpec{
		ClassID: CopyClassID,
		Condition: func(msg message.Message) bool {
			cmd, ok := msg.(message.Command)
			if !ok {
				return false
			}
			st, ok := cmd.Payload.(message.UsbState)
			return ok && st.Stage == message.UsbDetected
		},
		New: func(pctx plugin.Context, trigger message.Message) (plugin.DaemonRunner, error) {
			st := trigger.(message.Command).Payload.(message.UsbState)
			return plugin.DaemonFunc(func(ctx context.Context) error {
				return cfg.copyCycle(ctx, pctx, st.Mount)
			}), nil
		},
		Configure: func(options map[string]any) error {
			if v, ok := options["source"].(string); ok && v != "" {
				cfg.source = v
			}
			if v, ok := options["patterns"].([]any); ok {
				var pats []string
				for _, p := range v {
					s, ok := p.(string)
					if !ok {
						return &errors.ConfigurationError{
							Plugin: CopyClassID, Option: "patterns",
							Reason: "entries must be strings",
						}
					}
					pats = append(pats, s)
				}
				if len(pats) > 0 {
					cfg.patterns = pats
				}
			}
			return nil
		},
	}
}

// copyCycle runs one transfer: plan, capacity check, copy, signal. A cycle
// aborted for capacity is retried on the next detection; per-file failures
// are logged and skipped without failing the cycle.
func (cfg *copyConfig) copyCycle(ctx context.Context, pctx plugin.Context, mount string) error {
	entries, total, err := planCopy(cfg.source, cfg.patterns)
	if err != nil {
		pctx.Put(usbState(message.UsbError, mount))
		return err
	}
	if len(entries) == 0 {
		cfg.logger.Info("no record files to copy")
		pctx.Put(usbState(message.UsbDone, mount))
		return nil
	}

	avail, err := freeSpace(mount)
	if err != nil {
		pctx.Put(usbState(message.UsbError, mount))
		return err
	}
	if uint64(total) > avail {
		pctx.Put(usbState(message.UsbError, mount))
		cerr := &errors.CapacityError{Path: mount, Required: uint64(total), Available: avail}
		cfg.logger.Error("copy cycle aborted", log.Error(cerr))
		return cerr
	}

	pctx.Put(usbState(message.UsbCopying, mount))

	dest := filepath.Join(mount, uuid.New().String())
	copied := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(cfg.source, entry.Rel)
		if err := copyFile(src, filepath.Join(dest, entry.Rel)); err != nil {
			cfg.logger.Warn("skipping file",
				log.String(log.PathKey, src),
				log.Error(err))
			continue
		}
		copied++
	}

	if err := syncDir(dest); err != nil {
		cfg.logger.Warn("unable to flush destination directory", log.Error(err))
	}

	cfg.logger.Info("copy cycle complete",
		log.Int("files", copied),
		log.Int("skipped", len(entries)-copied),
		log.String(log.PathKey, dest))
	pctx.Put(usbState(message.UsbDone, mount))
	return nil
}

func usbState(stage message.UsbStage, mount string) message.Command {
	return message.Command{Payload: message.UsbState{Stage: stage, Mount: mount}}
}
