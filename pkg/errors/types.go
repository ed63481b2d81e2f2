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

// Package errors defines the failure taxonomy shared across the logger.
//
// Propagation policy: per-worker and per-source failures are isolated and
// never cross goroutine boundaries except via logging. Only persistence
// failures and top-level interruption may terminate the run.
package errors

import "fmt"

// TransportError represents an open or read failure on a physical source.
// The ingestion goroutine logs it and terminates; the supervisor respawns
// the source on its next poll.
type TransportError struct {
	// Source is the identifier of the affected ingestion endpoint.
	Source string

	// Op is the transport operation that failed ("open", "read").
	Op string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed on %s: %v", e.Op, e.Source, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ConfigurationError represents an invalid or missing plugin option or a bad
// plugin signature. The affected plugin is skipped and the system continues
// without it.
type ConfigurationError struct {
	// Plugin is the plugin class the option belongs to.
	Plugin string

	// Option is the offending option key, if any.
	Option string

	// Reason explains what is wrong.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("plugin %s: invalid option %q: %s", e.Plugin, e.Option, e.Reason)
	}
	return fmt.Sprintf("plugin %s: %s", e.Plugin, e.Reason)
}

// CapacityError represents insufficient space for a bulk copy cycle. The
// cycle is aborted, the error indicator is signaled, and the copy is retried
// on a later poll.
type CapacityError struct {
	// Path is the destination that lacks space.
	Path string

	// Required is the number of bytes the cycle needs.
	Required uint64

	// Available is the number of bytes free at Path.
	Available uint64
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient space on %s: need %d bytes, %d free",
		e.Path, e.Required, e.Available)
}

// PersistenceError represents a record sink failure. Skipping persistence
// silently is a correctness violation, so this error is fatal and ends the
// dispatcher run.
type PersistenceError struct {
	// Op is the sink operation that failed ("open", "log", "rotate").
	Op string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("record sink %s failed: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// RegistrationError reports a duplicate plugin registration. It is
// informational: registration is a no-op and the first registration wins.
type RegistrationError struct {
	// ClassID is the plugin class that was already registered.
	ClassID string
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("plugin class %q is already registered", e.ClassID)
}
