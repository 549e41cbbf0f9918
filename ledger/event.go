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
	"github.com/algocampus/campusd/event"
)

const (
	TxExecutedEventType   event.EventType = "ledger.tx_executed"
	CallRevertedEventType event.EventType = "ledger.call_reverted"
	RoundSealedEventType  event.EventType = "ledger.round_sealed"
)

// TxExecutedEvent is emitted after a call commits. The transaction stays
// pending until its round is sealed.
type TxExecutedEvent struct {
	TxID   string
	Method string
	AppID  uint64
	Round  uint64
}

type CallRevertedEvent struct {
	Method string
	Reason string
	AppID  uint64
	Round  uint64
}

// RoundSealedEvent is emitted when a round closes. TxIDs lists the
// transactions confirmed in it.
type RoundSealedEvent struct {
	TxIDs []string
	Round uint64
}
