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

package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sourceTracker records every invocation of the run function per endpoint
// and lets tests fail specific instances on demand.
type sourceTracker struct {
	mu       sync.Mutex
	starts   map[string]int
	failOnce map[string]chan struct{} // closing fails the current instance
}

func newSourceTracker(names ...string) *sourceTracker {
	st := &sourceTracker{
		starts:   make(map[string]int),
		failOnce: make(map[string]chan struct{}),
	}
	for _, n := range names {
		st.failOnce[n] = make(chan struct{})
	}
	return st
}

func (st *sourceTracker) run(ctx context.Context, name string) error {
	st.mu.Lock()
	st.starts[name]++
	n := st.starts[name]
	fail := st.failOnce[name]
	st.mu.Unlock()

	// Only the first instance of an endpoint honors the failure trigger;
	// replacements run until cancellation like a healthy source.
	if n == 1 && fail != nil {
		select {
		case <-fail:
			return fmt.Errorf("device vanished")
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func (st *sourceTracker) count(name string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.starts[name]
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSupervisorSpawnsPrimaryAndEnumerated(t *testing.T) {
	st := newSourceTracker()
	enumerate := func() []string { return []string{"/dev/ttyS1"} }

	s := New("/dev/ttyS0", enumerate, st.run,
		WithInterval(5*time.Millisecond), WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return st.count("/dev/ttyS0") == 1 && st.count("/dev/ttyS1") == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisorRespawnsOnlyFailedSource(t *testing.T) {
	st := newSourceTracker("/dev/ttyS0")
	enumerate := func() []string { return []string{"/dev/ttyS1"} }

	s := New("/dev/ttyS0", enumerate, st.run,
		WithInterval(5*time.Millisecond), WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return st.count("/dev/ttyS0") == 1 && st.count("/dev/ttyS1") == 1
	}, time.Second, time.Millisecond)

	// Kill ttyS0's instance; a replacement appears within a poll or two.
	close(st.failOnce["/dev/ttyS0"])
	require.Eventually(t, func() bool { return st.count("/dev/ttyS0") == 2 },
		time.Second, time.Millisecond)

	// The sibling was never touched: still exactly one instance, and the
	// failed endpoint got exactly one replacement.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, st.count("/dev/ttyS1"))
	assert.Equal(t, 2, st.count("/dev/ttyS0"))

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisorIgnoresDisappearedEnumeration(t *testing.T) {
	st := newSourceTracker()
	var mu sync.Mutex
	present := []string{"/dev/ttyUSB0"}
	enumerate := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return present
	}

	s := New("/dev/ttyS0", enumerate, st.run,
		WithInterval(5*time.Millisecond), WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return st.count("/dev/ttyUSB0") == 1 },
		time.Second, time.Millisecond)

	// The endpoint drops out of enumeration while its goroutine is healthy.
	// The live goroutine must not be killed, and no duplicate must appear.
	mu.Lock()
	present = nil
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, st.count("/dev/ttyUSB0"))

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisorJoinsOnCancel(t *testing.T) {
	running := make(chan struct{}, 2)
	stopped := make(chan struct{}, 2)
	run := func(ctx context.Context, name string) error {
		running <- struct{}{}
		<-ctx.Done()
		stopped <- struct{}{}
		return nil
	}

	s := New("/dev/ttyS0", func() []string { return []string{"/dev/ttyS1"} }, run,
		WithInterval(5*time.Millisecond), WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-running
	<-running
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, stopped, 2, "Run returns only after every goroutine exits")
}
