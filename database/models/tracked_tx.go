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

var ErrTrackedTxNotFound = errors.New("tracked transaction not found")

const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// Transaction kinds
const (
	TxKindCheckIn = "checkin"
	TxKindVote    = "vote"
	TxKindAction  = "ai_action"
	TxKindOther   = "other"
)

type TrackedTx struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedRound *uint64
	SessionId      *uint64
	TxId           string `gorm:"size:64;uniqueIndex;not null"`
	Kind           string `gorm:"size:32;index;not null"`
	Status         string `gorm:"size:32;index;not null"`
	CourseCode     string `gorm:"size:64"`
	StudentAddress string `gorm:"size:128"`
	ID             uint   `gorm:"primarykey"`
	Attempts       uint
}

func (TrackedTx) TableName() string {
	return "tracked_tx"
}

// DeadLetter records a tracked transaction that never confirmed
type DeadLetter struct {
	CreatedAt time.Time
	TxId      string `gorm:"size:64;index;not null"`
	Kind      string `gorm:"size:32"`
	Reason    string `gorm:"type:text"`
	ID        uint   `gorm:"primarykey"`
	Attempts  uint
}

func (DeadLetter) TableName() string {
	return "tx_dead_letter"
}
