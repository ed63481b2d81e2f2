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

package errors

import (
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
//
// Usage:
//
//	if err := os.MkdirAll(s.dir, 0o755); err != nil {
//	    return errors.Wrap(err, "creating record directory")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
//
// Usage:
//
//	if err := r.tr.Open(ctx); err != nil {
//	    return errors.Wrapf(err, "opening transport %s", r.tr.Name())
//	}
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// As finds the first error in err's tree that matches target type,
// and if one is found, sets target to that error value and returns true.
// This is a convenience wrapper around errors.As from the standard library.
//
// Usage:
//
//	var capErr *CapacityError
//	if errors.As(err, &capErr) {
//	    logger.Error("media full", "required", capErr.Required)
//	}
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New from the standard library.
func New(message string) error {
	return errors.New(message)
}

// IsFatal reports whether err must terminate the dispatcher run. Only
// persistence failures are fatal; everything else is isolated to the worker
// or source that raised it.
func IsFatal(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsRetryable reports whether the operation that produced err is expected to
// be retried by a supervising loop: transport failures are retried by the
// source supervisor, capacity failures by the next bulk-copy poll.
func IsRetryable(err error) bool {
	var te *TransportError
	var ce *CapacityError
	return errors.As(err, &te) || errors.As(err, &ce)
}
