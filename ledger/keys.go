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
	"errors"
	"fmt"

	"github.com/blinklabs-io/gouroboros/cbor"
	badger "github.com/dgraph-io/badger/v4"
)

const (
	firstAppID   uint64 = 1001
	firstAssetID uint64 = 2001
)

var (
	keyRound     = []byte("l:round")
	keyNextApp   = []byte("l:nextapp")
	keyNextAsset = []byte("l:nextasset")
	keyNonce     = []byte("l:nonce")
)

func appKey(appID uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte("l:app:"), appID)
}

func assetKey(assetID uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte("l:asset:"), assetID)
}

func balanceKey(addr Address) []byte {
	return append([]byte("l:bal:"), addr[:]...)
}

func txKey(txID string) []byte {
	return append([]byte("l:tx:"), txID...)
}

func boxKeyPrefix(appID uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte("b:"), appID)
}

func getUint64(txn *badger.Txn, key []byte) (uint64, bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, false, err
	}
	if len(val) != 8 {
		return 0, false, fmt.Errorf("key %q: expected 8 bytes, got %d", key, len(val))
	}
	return binary.BigEndian.Uint64(val), true, nil
}

func putUint64(txn *badger.Txn, key []byte, v uint64) error {
	return txn.Set(key, Itob(v))
}

// nextCounter returns the next value of a persistent counter, starting at
// first
func nextCounter(txn *badger.Txn, key []byte, first uint64) (uint64, error) {
	cur, ok, err := getUint64(txn, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		cur = first
	}
	if err := putUint64(txn, key, cur+1); err != nil {
		return 0, err
	}
	return cur, nil
}

func getValue(txn *badger.Txn, key []byte, dest any) (bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	if _, err := cbor.Decode(val, dest); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func putValue(txn *badger.Txn, key []byte, v any) error {
	data, err := cbor.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return txn.Set(key, data)
}
