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

const MaxBoxNameLength = 64

// BoxStore is the key/value storage of a single application, scoped to the
// transaction of the call that is running
type BoxStore struct {
	txn    *badger.Txn
	prefix []byte
}

func newBoxStore(txn *badger.Txn, appID uint64) *BoxStore {
	return &BoxStore{
		txn:    txn,
		prefix: boxKeyPrefix(appID),
	}
}

func (b *BoxStore) key(name []byte) ([]byte, error) {
	if len(name) == 0 || len(name) > MaxBoxNameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrBoxNameTooLong, len(name))
	}
	ret := make([]byte, 0, len(b.prefix)+len(name))
	ret = append(ret, b.prefix...)
	return append(ret, name...), nil
}

// Get returns the box contents and whether the box exists
func (b *BoxStore) Get(name []byte) ([]byte, bool, error) {
	key, err := b.key(name)
	if err != nil {
		return nil, false, err
	}
	item, err := b.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (b *BoxStore) Has(name []byte) (bool, error) {
	_, ok, err := b.Get(name)
	return ok, err
}

func (b *BoxStore) Put(name []byte, value []byte) error {
	key, err := b.key(name)
	if err != nil {
		return err
	}
	return b.txn.Set(key, value)
}

// Delete removes a box. Deleting a missing box is not an error.
func (b *BoxStore) Delete(name []byte) error {
	key, err := b.key(name)
	if err != nil {
		return err
	}
	return b.txn.Delete(key)
}

func (b *BoxStore) GetUint64(name []byte) (uint64, bool, error) {
	val, ok, err := b.Get(name)
	if err != nil || !ok {
		return 0, ok, err
	}
	if len(val) != 8 {
		return 0, false, fmt.Errorf("box %x: expected 8 bytes, got %d", name, len(val))
	}
	return binary.BigEndian.Uint64(val), true, nil
}

func (b *BoxStore) PutUint64(name []byte, v uint64) error {
	return b.Put(name, Itob(v))
}

// GetValue decodes a CBOR box into dest
func (b *BoxStore) GetValue(name []byte, dest any) (bool, error) {
	val, ok, err := b.Get(name)
	if err != nil || !ok {
		return ok, err
	}
	if _, err := cbor.Decode(val, dest); err != nil {
		return false, fmt.Errorf("decode box %x: %w", name, err)
	}
	return true, nil
}

// PutValue stores v CBOR-encoded
func (b *BoxStore) PutValue(name []byte, v any) error {
	data, err := cbor.Encode(v)
	if err != nil {
		return fmt.Errorf("encode box %x: %w", name, err)
	}
	return b.Put(name, data)
}

// Iterate calls fn for every box whose name starts with prefix, in name
// order
func (b *BoxStore) Iterate(prefix []byte, fn func(name []byte, value []byte) error) error {
	scan := make([]byte, 0, len(b.prefix)+len(prefix))
	scan = append(scan, b.prefix...)
	scan = append(scan, prefix...)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = scan
	it := b.txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(scan); it.ValidForPrefix(scan); it.Next() {
		item := it.Item()
		name := item.KeyCopy(nil)[len(b.prefix):]
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(name, val); err != nil {
			return err
		}
	}
	return nil
}

// Itob renders v as 8 big-endian bytes
func Itob(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// BoxName joins a prefix and key parts into a box name
func BoxName(prefix string, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	ret := make([]byte, 0, size)
	ret = append(ret, prefix...)
	for _, p := range parts {
		ret = append(ret, p...)
	}
	return ret
}
