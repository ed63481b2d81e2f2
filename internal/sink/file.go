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

package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/longwave/seriallogd/internal/log"
	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/internal/metrics"
	"github.com/longwave/seriallogd/pkg/errors"
)

// activeName is the file data records are appended to between rotations.
const activeName = "records.log"

// rotateStamp names rotated files by rotation time.
const rotateStamp = "20060102T150405"

// FileSink appends data records line by line to a file under its directory.
// Rotation renames the active file with a timestamp and reopens a fresh one.
type FileSink struct {
	dir     string
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu sync.Mutex
	f  *os.File
}

// NewFileSink creates a sink rooted at dir.
func NewFileSink(dir string, m *metrics.Metrics) *FileSink {
	return &FileSink{
		dir:     dir,
		metrics: m,
		logger:  log.WithComponent(slog.Default(), "filesink"),
	}
}

// Open creates the directory if needed and opens the active record file.
func (s *FileSink) Open(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "creating record directory")
	}
	return s.open()
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(filepath.Join(s.dir, activeName),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening record file")
	}
	s.mu.Lock()
	s.f = f
	s.mu.Unlock()
	return nil
}

// Log appends one message. Data records are written verbatim with a trailing
// newline. A SIGHUP command rotates the file, which keeps rotation ordered
// relative to the surrounding records; other commands are routing traffic,
// not payload, and are not persisted.
func (s *FileSink) Log(msg message.Message) error {
	switch m := msg.(type) {
	case message.DataRecord:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.f == nil {
			return errors.New("sink is not open")
		}
		if _, err := fmt.Fprintln(s.f, m.Text); err != nil {
			s.metrics.IncSinkError()
			return errors.Wrap(err, "appending record")
		}
		s.metrics.IncSinkRecord()
		return nil
	case message.Command:
		if m.Signal == message.SIGHUP {
			return s.Rotate()
		}
		return nil
	default:
		return nil
	}
}

// Rotate renames the active file with a timestamp and reopens a fresh one.
func (s *FileSink) Rotate() error {
	s.mu.Lock()
	if s.f != nil {
		if err := s.f.Close(); err != nil {
			s.mu.Unlock()
			return errors.Wrap(err, "closing record file")
		}
		s.f = nil
	}
	s.mu.Unlock()

	src := filepath.Join(s.dir, activeName)
	dst := filepath.Join(s.dir, fmt.Sprintf("records-%s.log", time.Now().Format(rotateStamp)))
	if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "rotating record file")
	}
	s.logger.Info("record file rotated", log.String(log.PathKey, dst))
	return s.open()
}

// Close releases the active record file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
