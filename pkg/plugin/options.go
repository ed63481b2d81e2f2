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
	"log/slog"
	"strings"
	"time"
)

// OptionType declares the expected type of a plugin option value.
type OptionType int

const (
	// StringOption accepts string values.
	StringOption OptionType = iota
	// IntOption accepts integers, including YAML/JSON float encodings of
	// whole numbers.
	IntOption
	// FloatOption accepts any numeric value.
	FloatOption
	// BoolOption accepts booleans.
	BoolOption
	// DurationOption accepts Go duration strings ("3s") or numeric
	// seconds.
	DurationOption
)

// Option declares one configurable field of a worker: its expected type and
// the setter applied after a successful type check. Set receives the value
// coerced to the canonical Go type for the declared OptionType (string, int,
// float64, bool, or time.Duration).
type Option struct {
	Type OptionType
	Set  func(value any)
}

// OptionTable maps lowercase option names to their declarations.
type OptionTable map[string]Option

// ApplyOptions assigns options to a worker's declared fields. Option keys
// are matched case-insensitively; unknown keys and values that fail the
// declared type check are logged and skipped, never fatal. The worker is
// marked configured afterward regardless, making Configure idempotent and
// failure-tolerant.
func (b *Base) ApplyOptions(options map[string]any, table OptionTable) error {
	for key, value := range options {
		lkey := strings.ToLower(key)
		opt, known := table[lkey]
		if !known {
			b.logger.Debug("ignoring unknown option", slog.String("option", key))
			continue
		}
		coerced, ok := coerce(value, opt.Type)
		if !ok {
			b.logger.Warn("invalid option value, skipping",
				slog.String("option", key),
				slog.Any("value", value))
			continue
		}
		opt.Set(coerced)
	}
	b.MarkConfigured()
	return nil
}

// coerce converts a raw config value to the canonical Go type for the
// declared option type. YAML and JSON decoders disagree about numbers, so
// integers arrive as int, int64, or float64 depending on the source.
func coerce(value any, t OptionType) (any, bool) {
	switch t {
	case StringOption:
		s, ok := value.(string)
		return s, ok
	case IntOption:
		switch v := value.(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			if v == float64(int(v)) {
				return int(v), true
			}
		}
		return 0, false
	case FloatOption:
		switch v := value.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
		return 0.0, false
	case BoolOption:
		v, ok := value.(bool)
		return v, ok
	case DurationOption:
		switch v := value.(type) {
		case string:
			d, err := time.ParseDuration(v)
			return d, err == nil
		case int:
			return time.Duration(v) * time.Second, true
		case int64:
			return time.Duration(v) * time.Second, true
		case float64:
			return time.Duration(v * float64(time.Second)), true
		}
		return time.Duration(0), false
	default:
		return nil, false
	}
}
