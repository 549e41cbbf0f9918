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
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errNotUnsigned = errors.New("not an unsigned integer")

// decodeActionPayload extracts the action payload from a stored plan.
// Numbers are kept exact.
func decodeActionPayload(payloadJSON string) (map[string]any, error) {
	var stored struct {
		Payload map[string]any `json:"payload"`
	}
	dec := json.NewDecoder(strings.NewReader(payloadJSON))
	dec.UseNumber()
	if err := dec.Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode stored payload: %w", err)
	}
	if stored.Payload == nil {
		stored.Payload = map[string]any{}
	}
	return stored.Payload, nil
}

func fieldString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func fieldStrings(m map[string]any, key string) []string {
	items, ok := m[key].([]any)
	if !ok {
		return nil
	}
	ret := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			ret = append(ret, s)
			continue
		}
		ret = append(ret, fmt.Sprint(item))
	}
	return ret
}

// fieldUint reads an unsigned integer field. A missing field is zero.
func fieldUint(m map[string]any, key string) (uint64, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case json.Number:
		return strconv.ParseUint(v.String(), 10, 64)
	case string:
		return strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, errNotUnsigned
		}
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, errNotUnsigned
		}
		return uint64(v), nil
	case uint64:
		return v, nil
	default:
		return 0, fmt.Errorf("%s: %w", key, errNotUnsigned)
	}
}
