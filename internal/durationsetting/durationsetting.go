// Copyright Acetone Authors
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

// Package durationsetting describes tri-state duration settings: use the
// built-in default, disable the behavior the duration gates entirely, or
// use an explicit value. cmd/acetoned uses it for the
// --partition-cache-ttl flag, where an operator may want the partition tier's TTL left at its
// built-in value, turned off (every resolution re-queries the fabric),
// or pinned to a specific duration.
package durationsetting

import "time"

// Setting is exactly one of: use the default, disable entirely, or use a
// specific duration. The zero value means "use the default".
type Setting struct {
	val      time.Duration
	disabled bool
}

// IsDisabled returns whether the behavior this setting gates should be
// disabled entirely.
func (s Setting) IsDisabled() bool {
	return s.disabled
}

// UseDefault returns whether the caller's built-in default should be used.
func (s Setting) UseDefault() bool {
	return !s.disabled && s.val == 0
}

// Duration returns the explicit duration, if one was set.
func (s Setting) Duration() time.Duration {
	return s.val
}

// DefaultSetting returns a Setting representing "use the default".
func DefaultSetting() Setting {
	return Setting{}
}

// DisabledSetting returns a Setting representing "disabled".
func DisabledSetting() Setting {
	return Setting{disabled: true}
}

// DurationSetting returns a Setting pinned to the given duration.
func DurationSetting(duration time.Duration) Setting {
	return Setting{val: duration}
}

// Parse interprets the string forms accepted by cmd/acetoned's
// --partition-cache-ttl flag:
//   - an empty string means "use the default".
//   - "0" or any valid duration string that parses to zero means "use the default".
//   - "disabled" or "infinity" means "disabled".
//   - any other valid Go duration string is used as the explicit value.
//   - an unparseable string is treated as "disabled", to fail safe rather
//     than silently substitute a default an operator didn't ask for.
func Parse(setting string) Setting {
	if setting == "" {
		return DefaultSetting()
	}

	if setting == "disabled" || setting == "infinity" {
		return DisabledSetting()
	}

	d, err := time.ParseDuration(setting)
	if err != nil {
		return DisabledSetting()
	}

	if d == 0 {
		return DefaultSetting()
	}

	return DurationSetting(d)
}
