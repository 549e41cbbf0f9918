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
	"strings"
	"time"
)

// Activity kinds written by the orchestrator and the transaction tracker
const (
	ActivityPlanCreated     = "ai_plan_created"
	ActivityExecution       = "ai_execution"
	ActivityExecutionFailed = "ai_execution_failed"
	ActivityApproved        = "ai_approved"
	ActivityReconciled      = "ai_reconciled"
	ActivityTxTracked       = "tx_tracked"
	ActivityTxConfirmed     = "tx_confirmed"
	ActivityTxFailed        = "tx_failed"
)

const tagSeparator = ","

type ActivityEvent struct {
	CreatedAt   time.Time `gorm:"index"`
	EventId     string    `gorm:"size:64;uniqueIndex;not null"`
	Kind        string    `gorm:"size:64;index;not null"`
	Title       string    `gorm:"size:255"`
	Description string    `gorm:"type:text"`
	Actor       string    `gorm:"size:128;index"`
	TxId        string    `gorm:"size:64;index"`
	Tags        string    `gorm:"type:text"`
	ID          uint      `gorm:"primarykey"`
}

func (ActivityEvent) TableName() string {
	return "activity_event"
}

// SetTags stores the tag list in its column form
func (a *ActivityEvent) SetTags(tags []string) {
	a.Tags = strings.Join(tags, tagSeparator)
}

// TagList returns the stored tags
func (a *ActivityEvent) TagList() []string {
	if a.Tags == "" {
		return nil
	}
	return strings.Split(a.Tags, tagSeparator)
}
