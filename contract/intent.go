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

package contract

import (
	"github.com/algocampus/campusd/ledger"
)

const (
	IntentHashSize = 32

	intentExpiryPrefix   = "aie"
	intentConsumedPrefix = "aic"
)

// IntentState is the on-chain record of an intent
type IntentState struct {
	Expiry   uint64
	Consumed bool
}

// IntentStore is the single-use, time-boxed intent namespace of one
// application
type IntentStore struct {
	Boxes *ledger.BoxStore
}

func checkIntentHash(hash []byte) error {
	if len(hash) != IntentHashSize {
		return ledger.Revert(ReasonBadIntentHash)
	}
	return nil
}

// Get returns the intent record and whether it exists
func (s IntentStore) Get(hash []byte) (IntentState, bool, error) {
	var ret IntentState
	if err := checkIntentHash(hash); err != nil {
		return ret, false, err
	}
	expiry, ok, err := s.Boxes.GetUint64(ledger.BoxName(intentExpiryPrefix, hash))
	if err != nil || !ok {
		return ret, false, err
	}
	ret.Expiry = expiry
	flag, _, err := s.Boxes.Get(ledger.BoxName(intentConsumedPrefix, hash))
	if err != nil {
		return ret, false, err
	}
	ret.Consumed = len(flag) > 0 && flag[0] == 1
	return ret, true, nil
}

// Record commits an intent that can be consumed up to and including the
// expiry round. An existing record is never overwritten: it has to be
// cancelled first.
func (s IntentStore) Record(hash []byte, expires uint64, round uint64) error {
	if err := checkIntentHash(hash); err != nil {
		return err
	}
	if expires < round {
		return ledger.Revert(ReasonExpiryInPast)
	}
	_, exists, err := s.Get(hash)
	if err != nil {
		return err
	}
	if exists {
		return ledger.Revert(ReasonIntentRecorded)
	}
	if err := s.Boxes.PutUint64(ledger.BoxName(intentExpiryPrefix, hash), expires); err != nil {
		return err
	}
	return s.Boxes.Put(ledger.BoxName(intentConsumedPrefix, hash), []byte{0})
}

// Cancel voids an unconsumed intent
func (s IntentStore) Cancel(hash []byte) error {
	state, exists, err := s.Get(hash)
	if err != nil {
		return err
	}
	if !exists {
		return ledger.Revert(ReasonIntentNotFound)
	}
	if state.Consumed {
		return ledger.Revert(ReasonIntentUsed)
	}
	if err := s.Boxes.Delete(ledger.BoxName(intentExpiryPrefix, hash)); err != nil {
		return err
	}
	return s.Boxes.Delete(ledger.BoxName(intentConsumedPrefix, hash))
}

// Consume spends an intent. It must run inside the call performing the
// action the intent authorizes.
func (s IntentStore) Consume(hash []byte, round uint64) error {
	state, exists, err := s.Get(hash)
	if err != nil {
		return err
	}
	if !exists {
		return ledger.Revert(ReasonIntentNotFound)
	}
	if round > state.Expiry {
		return ledger.Revert(ReasonIntentExpired)
	}
	if state.Consumed {
		return ledger.Revert(ReasonIntentUsed)
	}
	return s.Boxes.Put(ledger.BoxName(intentConsumedPrefix, hash), []byte{1})
}
