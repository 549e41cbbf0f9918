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
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"
)

const (
	AddressSize = 32
	AddressHRP  = "addr"
)

var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account or an application on the ledger
type Address [AddressSize]byte

var ZeroAddress Address

// DevAccount derives a deterministic address from a name. Used for the
// operator account and test fixtures.
func DevAccount(name string) Address {
	return Address(blake2b.Sum256([]byte("account:" + name)))
}

// AppAddress returns the escrow address of an application
func AppAddress(appID uint64) Address {
	buf := make([]byte, 0, len("appID")+8)
	buf = append(buf, "appID"...)
	buf = binary.BigEndian.AppendUint64(buf, appID)
	return Address(blake2b.Sum256(buf))
}

// ParseAddress accepts the bech32 form produced by String or a raw hex
// encoding
func ParseAddress(s string) (Address, error) {
	var ret Address
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, AddressHRP+"1") {
		hrp, data, err := bech32.Decode(s)
		if err != nil {
			return ret, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}
		if hrp != AddressHRP {
			return ret, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, hrp)
		}
		conv, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return ret, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}
		return AddressFromBytes(conv)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ret, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return AddressFromBytes(raw)
}

func AddressFromBytes(b []byte) (Address, error) {
	var ret Address
	if len(b) != AddressSize {
		return ret, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidAddress,
			AddressSize,
			len(b),
		)
	}
	copy(ret[:], b)
	return ret, nil
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string {
	convData, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return hex.EncodeToString(a[:])
	}
	encoded, err := bech32.Encode(AddressHRP, convData)
	if err != nil {
		return hex.EncodeToString(a[:])
	}
	return encoded
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	tmp, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = tmp
	return nil
}
