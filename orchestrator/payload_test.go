// Copyright 2025 Blink Labs Software
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

package orchestrator

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldUint(t *testing.T) {
	testDefs := []struct {
		value     any
		expected  uint64
		expectErr bool
	}{
		{value: nil, expected: 0},
		{value: json.Number("42"), expected: 42},
		{value: " 7 ", expected: 7},
		{value: float64(100), expected: 100},
		{value: float64(1 << 53), expected: 1 << 53},
		{value: math.Exp2(64), expectErr: true},
		{value: float64(-1), expectErr: true},
		{value: 1.5, expectErr: true},
		{value: -3, expectErr: true},
		{value: uint64(math.MaxUint64), expected: math.MaxUint64},
		{value: true, expectErr: true},
	}
	for _, testDef := range testDefs {
		got, err := fieldUint(map[string]any{"n": testDef.value}, "n")
		if testDef.expectErr {
			require.Error(t, err, "value %v", testDef.value)
			continue
		}
		require.NoError(t, err, "value %v", testDef.value)
		assert.Equal(t, testDef.expected, got, "value %v", testDef.value)
	}
}
