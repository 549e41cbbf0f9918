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

package ledger

import (
	"fmt"
)

// Args holds the positional arguments of an application call. Supported
// element types are string, []string, uint64, []byte, Address and bool.
type Args []any

func (a Args) get(i int) (any, error) {
	if i < 0 || i >= len(a) {
		return nil, fmt.Errorf(
			"%w: missing argument %d (have %d)",
			ErrBadArgument,
			i,
			len(a),
		)
	}
	return a[i], nil
}

func badType(i int, want string, got any) error {
	return fmt.Errorf(
		"%w: argument %d: expected %s, got %T",
		ErrBadArgument,
		i,
		want,
		got,
	)
}

func (a Args) Uint64(i int) (uint64, error) {
	v, err := a.get(i)
	if err != nil {
		return 0, err
	}
	switch tmp := v.(type) {
	case uint64:
		return tmp, nil
	case uint:
		return uint64(tmp), nil
	case uint32:
		return uint64(tmp), nil
	case int:
		if tmp < 0 {
			return 0, badType(i, "uint64", v)
		}
		return uint64(tmp), nil
	case int64:
		if tmp < 0 {
			return 0, badType(i, "uint64", v)
		}
		return uint64(tmp), nil
	}
	return 0, badType(i, "uint64", v)
}

func (a Args) String(i int) (string, error) {
	v, err := a.get(i)
	if err != nil {
		return "", err
	}
	tmp, ok := v.(string)
	if !ok {
		return "", badType(i, "string", v)
	}
	return tmp, nil
}

func (a Args) Strings(i int) ([]string, error) {
	v, err := a.get(i)
	if err != nil {
		return nil, err
	}
	switch tmp := v.(type) {
	case []string:
		return tmp, nil
	case []any:
		ret := make([]string, 0, len(tmp))
		for _, item := range tmp {
			s, ok := item.(string)
			if !ok {
				return nil, badType(i, "string[]", v)
			}
			ret = append(ret, s)
		}
		return ret, nil
	}
	return nil, badType(i, "string[]", v)
}

func (a Args) Bytes(i int) ([]byte, error) {
	v, err := a.get(i)
	if err != nil {
		return nil, err
	}
	switch tmp := v.(type) {
	case []byte:
		return tmp, nil
	case [32]byte:
		return tmp[:], nil
	}
	return nil, badType(i, "byte[]", v)
}

func (a Args) Address(i int) (Address, error) {
	v, err := a.get(i)
	if err != nil {
		return ZeroAddress, err
	}
	switch tmp := v.(type) {
	case Address:
		return tmp, nil
	case []byte:
		return AddressFromBytes(tmp)
	case string:
		return ParseAddress(tmp)
	}
	return ZeroAddress, badType(i, "address", v)
}

func (a Args) Bool(i int) (bool, error) {
	v, err := a.get(i)
	if err != nil {
		return false, err
	}
	tmp, ok := v.(bool)
	if !ok {
		return false, badType(i, "bool", v)
	}
	return tmp, nil
}
