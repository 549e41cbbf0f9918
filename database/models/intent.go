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

package models

import (
	"errors"
	"time"
)

var (
	ErrIntentNotFound      = errors.New("intent not found")
	ErrIntentAlreadyExists = errors.New("intent already exists")
)

// Intent lifecycle states. executed and failed are terminal.
const (
	IntentStatusPlanned          = "planned"
	IntentStatusApprovalRequired = "approval_required"
	IntentStatusExecuted         = "executed"
	IntentStatusFailed           = "failed"
)

// Intent is the off-chain audit copy of a planned privileged action. The
// on-chain record keyed by IntentHash stays authoritative for authorization.
type Intent struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IntentId    string `gorm:"size:64;uniqueIndex;not null"`
	IntentHash  string `gorm:"size:64;index;not null"`
	ActionType  string `gorm:"size:64;index;not null"`
	RiskLevel   string `gorm:"size:16;not null"`
	PayloadJson string `gorm:"type:text"`
	Status      string `gorm:"size:32;index;not null"`
	CreatedBy   string `gorm:"size:128"`
	ID          uint   `gorm:"primarykey"`
	AutoExecute bool
}

func (Intent) TableName() string {
	return "ai_intent"
}

// IsTerminal reports whether no further execution may be attempted
func (i *Intent) IsTerminal() bool {
	return i.Status == IntentStatusExecuted || i.Status == IntentStatusFailed
}

// Execution is an append-only audit entry for one execution attempt
type Execution struct {
	CreatedAt      time.Time
	ConfirmedRound *uint64
	ExecutionId    string `gorm:"size:64;uniqueIndex;not null"`
	IntentId       string `gorm:"size:64;index;not null"`
	Status         string `gorm:"size:32;not null"`
	Message        string `gorm:"type:text"`
	TxId           string `gorm:"size:64;index"`
	ID             uint   `gorm:"primarykey"`
}

func (Execution) TableName() string {
	return "ai_execution"
}
