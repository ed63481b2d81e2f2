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

package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longwave/seriallogd/pkg/errors"
)

func TestTransportError(t *testing.T) {
	cause := stderrors.New("device not configured")
	err := &errors.TransportError{Source: "ttyS0", Op: "open", Cause: cause}

	assert.Contains(t, err.Error(), "ttyS0")
	assert.Contains(t, err.Error(), "open")
	assert.ErrorIs(t, err, cause)
}

func TestConfigurationError(t *testing.T) {
	tests := []struct {
		name string
		err  *errors.ConfigurationError
		want string
	}{
		{
			name: "with option",
			err:  &errors.ConfigurationError{Plugin: "gpio", Option: "data_led", Reason: "expected int"},
			want: `plugin gpio: invalid option "data_led": expected int`,
		},
		{
			name: "without option",
			err:  &errors.ConfigurationError{Plugin: "usb", Reason: "unknown factory"},
			want: "plugin usb: unknown factory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCapacityError(t *testing.T) {
	err := &errors.CapacityError{Path: "/media/usb1", Required: 2048, Available: 1024}
	assert.Contains(t, err.Error(), "/media/usb1")
	assert.Contains(t, err.Error(), "2048")
	assert.Contains(t, err.Error(), "1024")
}

func TestIsFatal(t *testing.T) {
	cause := stderrors.New("disk full")
	fatal := errors.Wrap(&errors.PersistenceError{Op: "log", Cause: cause}, "dispatch")
	require.True(t, errors.IsFatal(fatal))

	assert.False(t, errors.IsFatal(&errors.TransportError{Source: "ttyS0", Op: "read", Cause: cause}))
	assert.False(t, errors.IsFatal(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, errors.IsRetryable(&errors.TransportError{Source: "ttyS1", Op: "read", Cause: stderrors.New("eio")}))
	assert.True(t, errors.IsRetryable(&errors.CapacityError{Path: "/media/usb1", Required: 1, Available: 0}))
	assert.False(t, errors.IsRetryable(&errors.PersistenceError{Op: "open", Cause: stderrors.New("denied")}))
	assert.False(t, errors.IsRetryable(stderrors.New("plain")))
}

func TestRegistrationError(t *testing.T) {
	err := &errors.RegistrationError{ClassID: "gpio"}
	assert.Equal(t, `plugin class "gpio" is already registered`, err.Error())
}
