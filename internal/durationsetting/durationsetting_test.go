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

package durationsetting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := map[string]struct {
		setting string
		want    Setting
	}{
		"empty": {
			setting: "",
			want:    DefaultSetting(),
		},
		"0": {
			setting: "0",
			want:    DefaultSetting(),
		},
		"0s": {
			setting: "0s",
			want:    DefaultSetting(),
		},
		"disabled": {
			setting: "disabled",
			want:    DisabledSetting(),
		},
		"infinity": {
			setting: "infinity",
			want:    DisabledSetting(),
		},
		"10 seconds": {
			setting: "10s",
			want:    DurationSetting(10 * time.Second),
		},
		"unparseable falls back to disabled": {
			setting: "10", // 10 what?
			want:    DisabledSetting(),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := Parse(tc.setting)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSettingPredicates(t *testing.T) {
	require.True(t, DefaultSetting().UseDefault())
	require.False(t, DefaultSetting().IsDisabled())

	require.True(t, DisabledSetting().IsDisabled())
	require.False(t, DisabledSetting().UseDefault())

	explicit := DurationSetting(10 * time.Second)
	require.False(t, explicit.UseDefault())
	require.False(t, explicit.IsDisabled())
	require.Equal(t, 10*time.Second, explicit.Duration())
}
