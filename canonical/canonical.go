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

// Package canonical produces stable digests of structured action payloads.
//
// Payloads are serialized with the JSON Canonicalization Scheme (RFC 8785):
// object keys are sorted lexicographically and no insignificant whitespace is
// emitted, so two payloads that differ only in key order hash identically.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DigestSize is the size in bytes of a payload digest
const DigestSize = sha256.Size

var ErrInvalidDigest = errors.New("invalid digest")

// Digest is the SHA-256 hash of a canonical payload
type Digest [DigestSize]byte

// Hex returns the lowercase hex form used for off-chain storage
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns the raw digest used as an on-chain argument
func (d Digest) Bytes() []byte {
	return d[:]
}

func (d Digest) String() string {
	return d.Hex()
}

// IsZero reports whether the digest is unset
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest decodes a hex digest as produced by Digest.Hex
func ParseDigest(s string) (Digest, error) {
	var ret Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return ret, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
	}
	if len(b) != DigestSize {
		return ret, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidDigest,
			DigestSize,
			len(b),
		)
	}
	copy(ret[:], b)
	return ret, nil
}

// DigestFromBytes copies a raw digest
func DigestFromBytes(b []byte) (Digest, error) {
	var ret Digest
	if len(b) != DigestSize {
		return ret, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidDigest,
			DigestSize,
			len(b),
		)
	}
	copy(ret[:], b)
	return ret, nil
}

// Marshal returns the canonical serialization of payload. The payload may be
// any value accepted by encoding/json.
func Marshal(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	ret, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return ret, nil
}

// Hash returns the SHA-256 digest of the canonical serialization of payload
func Hash(payload any) (Digest, error) {
	data, err := Marshal(payload)
	if err != nil {
		return Digest{}, err
	}
	return sha256.Sum256(data), nil
}
