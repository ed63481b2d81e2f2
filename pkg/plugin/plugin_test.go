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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/pkg/errors"
)

func TestBasePutFiltersKinds(t *testing.T) {
	b := NewBase("data-only", message.KindData)

	b.Put(message.NewDataRecord("ttyS0", "accepted"))
	b.Put(message.Command{Signal: message.SIGHUP})
	b.Put(nil)

	assert.Equal(t, 1, b.Pending(), "undeclared kinds and nil are dropped silently")

	msg, ok := b.Next(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "accepted", msg.(message.DataRecord).Text)
}

func TestBaseNextTimesOut(t *testing.T) {
	b := NewBase("idle", message.KindData)

	start := time.Now()
	msg, ok := b.Next(10 * time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, msg)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.False(t, b.Exiting(), "a timeout is not an exit")
}

func TestBaseExitJoinWaitsForDrain(t *testing.T) {
	b := NewBase("slow", message.KindData)
	const n = 10
	for i := 0; i < n; i++ {
		b.Put(message.NewDataRecord("ttyS0", "x"))
	}

	// Consume the backlog slowly from another goroutine.
	consumed := 0
	var mu sync.Mutex
	go func() {
		for {
			if _, ok := b.Next(time.Millisecond); ok {
				time.Sleep(time.Millisecond)
				mu.Lock()
				consumed++
				mu.Unlock()
				continue
			}
			if b.Exiting() {
				return
			}
		}
	}()

	b.Exit(true)
	assert.Equal(t, 0, b.Pending(), "Exit(join) returns only after the queue drained")
	assert.True(t, b.Exiting())

	// The in-flight message finishes shortly after.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return consumed == n
	}, time.Second, time.Millisecond)
}

func TestBaseExitIdempotent(t *testing.T) {
	b := NewBase("w", message.KindData)
	b.Exit(false)
	b.Exit(false)
	b.Exit(true)
	assert.True(t, b.Exiting())
}

func TestApplyOptionsCoercion(t *testing.T) {
	b := NewBase("opts", message.KindCommand)

	var (
		pin      int
		rate     float64
		enabled  bool
		device   string
		interval time.Duration
	)
	table := OptionTable{
		"pin":      {Type: IntOption, Set: func(v any) { pin = v.(int) }},
		"rate":     {Type: FloatOption, Set: func(v any) { rate = v.(float64) }},
		"enabled":  {Type: BoolOption, Set: func(v any) { enabled = v.(bool) }},
		"device":   {Type: StringOption, Set: func(v any) { device = v.(string) }},
		"interval": {Type: DurationOption, Set: func(v any) { interval = v.(time.Duration) }},
	}

	err := b.ApplyOptions(map[string]any{
		"Pin":      float64(16), // JSON-style whole number, case-insensitive key
		"rate":     3,           // int promoted to float
		"enabled":  true,
		"device":   "/dev/ttyS0",
		"interval": "250ms",
		"unknown":  "ignored",
		"badpin":   "not an int",
	}, table)
	require.NoError(t, err)

	assert.Equal(t, 16, pin)
	assert.Equal(t, 3.0, rate)
	assert.True(t, enabled)
	assert.Equal(t, "/dev/ttyS0", device)
	assert.Equal(t, 250*time.Millisecond, interval)
	assert.True(t, b.Configured())
}

func TestApplyOptionsSkipsInvalidValues(t *testing.T) {
	b := NewBase("opts", message.KindCommand)

	pin := 16
	err := b.ApplyOptions(map[string]any{
		"pin": "sixteen",
	}, OptionTable{
		"pin": {Type: IntOption, Set: func(v any) { pin = v.(int) }},
	})
	require.NoError(t, err, "invalid values are skipped, never fatal")
	assert.Equal(t, 16, pin, "the previous value is kept")
	assert.True(t, b.Configured(), "the worker is configured regardless")
}

func TestApplyOptionsRejectsFractionalInt(t *testing.T) {
	b := NewBase("opts", message.KindCommand)
	pin := 0
	_ = b.ApplyOptions(map[string]any{"pin": 16.5}, OptionTable{
		"pin": {Type: IntOption, Set: func(v any) { pin = v.(int) }},
	})
	assert.Equal(t, 0, pin)
}

// fakeRegistrar records loader registrations.
type fakeRegistrar struct {
	workers map[string]WorkerFactory
	daemons map[string]DaemonSpec
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{
		workers: make(map[string]WorkerFactory),
		daemons: make(map[string]DaemonSpec),
	}
}

func (r *fakeRegistrar) RegisterWorker(classID string, factory WorkerFactory, config map[string]any) {
	r.workers[classID] = factory
}

func (r *fakeRegistrar) RegisterDaemon(spec DaemonSpec, config map[string]any) {
	r.daemons[spec.ClassID] = spec
}

func TestLoaderUnknownName(t *testing.T) {
	l := NewLoader(nil)
	err := l.Load("ghost", newFakeRegistrar(), true, nil)
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoaderRejectsDuplicateAndInvalidEntries(t *testing.T) {
	l := NewLoader(nil)
	entry := Entry{Worker: func() Worker { return nil }}

	require.NoError(t, l.Add("echo", entry))
	require.Error(t, l.Add("echo", entry), "duplicate catalog names are rejected")
	require.Error(t, l.Add("empty", Entry{}), "an entry needs exactly one entry point")
	require.Error(t, l.Add("both", Entry{
		Worker:  entry.Worker,
		Handler: func(context.Context, Context, message.Message) {},
		Kinds:   []message.Kind{message.KindData},
	}))
	require.Error(t, l.Add("kindless", Entry{
		Handler: func(context.Context, Context, message.Message) {},
	}))
}

func TestLoaderAdaptsHandler(t *testing.T) {
	l := NewLoader(nil)

	var mu sync.Mutex
	var got []string
	require.NoError(t, l.Add("echo", Entry{
		Handler: func(ctx context.Context, pctx Context, msg message.Message) {
			mu.Lock()
			got = append(got, msg.(message.DataRecord).Text)
			mu.Unlock()
		},
		Kinds: []message.Kind{message.KindData},
	}))

	reg := newFakeRegistrar()
	require.NoError(t, l.Load("echo", reg, true, nil))
	require.Contains(t, reg.workers, "echo")

	w := reg.workers["echo"]()
	require.NoError(t, w.Configure(nil))

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()

	w.Put(message.NewDataRecord("ttyS0", "hello"))
	w.Put(message.Command{Signal: message.SIGHUP}) // filtered: undeclared kind
	w.Exit(true)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hello"}, got)
}

func TestLoaderLoadWithoutRegister(t *testing.T) {
	l := NewLoader(nil)
	require.NoError(t, l.Add("echo", Entry{Worker: func() Worker { return nil }}))

	reg := newFakeRegistrar()
	require.NoError(t, l.Load("echo", reg, false, nil))
	assert.Empty(t, reg.workers, "resolution without registration leaves the registry untouched")
}
