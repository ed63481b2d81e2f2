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

// Package transport abstracts the line-oriented byte streams the logger
// ingests from. The production implementation reads character devices
// (serial ports exposed as tty files); tests substitute in-memory streams.
package transport

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/longwave/seriallogd/pkg/errors"
)

// readDeadline bounds each low-level read so a blocked ReadLine notices
// context cancellation within this window.
const readDeadline = 500 * time.Millisecond

// Transport is one line-oriented ingestion endpoint.
type Transport interface {
	// Name identifies the endpoint, e.g. "/dev/ttyS0".
	Name() string

	// Open prepares the endpoint for reading. Failure is a TransportError.
	Open(ctx context.Context) error

	// ReadLine blocks until a full line is available, the context is
	// cancelled, or the endpoint fails. The returned line excludes the
	// trailing newline.
	ReadLine(ctx context.Context) (string, error)

	// Close releases the endpoint.
	Close() error
}

// Factory constructs a transport for a named endpoint. The supervisor uses
// it to respawn readers for endpoints that reappear.
type Factory func(name string) Transport

// FileTransport reads newline-delimited text from a file-backed device. It
// relies on os.File read deadlines to stay responsive to cancellation, which
// works for ttys, FIFOs, and sockets but not plain files; plain files never
// block so the distinction does not matter there.
type FileTransport struct {
	name string
	file *os.File
	r    *bufio.Reader
}

// NewFileTransport creates a transport for the given device path.
func NewFileTransport(path string) *FileTransport {
	return &FileTransport{name: path}
}

// NewFactory returns a Factory producing FileTransports.
func NewFactory() Factory {
	return func(name string) Transport { return NewFileTransport(name) }
}

// Name implements Transport.
func (t *FileTransport) Name() string { return t.name }

// Open implements Transport.
func (t *FileTransport) Open(ctx context.Context) error {
	f, err := os.OpenFile(t.name, os.O_RDONLY, 0)
	if err != nil {
		return &errors.TransportError{Source: t.name, Op: "open", Cause: err}
	}
	t.file = f
	t.r = bufio.NewReader(f)
	return nil
}

// ReadLine implements Transport. A partial line followed by EOF is returned
// as a line; a bare EOF is a TransportError, since a device disappearing
// mid-run is a failure the supervisor must observe.
func (t *FileTransport) ReadLine(ctx context.Context) (string, error) {
	if t.file == nil {
		return "", &errors.TransportError{Source: t.name, Op: "read", Cause: os.ErrClosed}
	}
	// ReadString hands back partial bytes together with a timeout error, so
	// the fragment must be carried across deadline expiries.
	var pending strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		_ = t.file.SetReadDeadline(time.Now().Add(readDeadline))

		chunk, err := t.r.ReadString('\n')
		pending.WriteString(chunk)
		if err == nil {
			return strings.TrimRight(pending.String(), "\r\n"), nil
		}
		if os.IsTimeout(err) {
			continue
		}
		if err == io.EOF && pending.Len() > 0 {
			return strings.TrimRight(pending.String(), "\r\n"), nil
		}
		return "", &errors.TransportError{Source: t.name, Op: "read", Cause: err}
	}
}

// Close implements Transport.
func (t *FileTransport) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	t.r = nil
	if err != nil {
		return &errors.TransportError{Source: t.name, Op: "close", Cause: err}
	}
	return nil
}
