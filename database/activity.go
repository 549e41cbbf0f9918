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

package database

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/algocampus/campusd/database/models"
)

// AddActivity appends an entry to the activity log
func (d *Database) AddActivity(evt *models.ActivityEvent, txn *Txn) error {
	if evt.EventId == "" {
		evt.EventId = uuid.NewString()
	}
	if result := d.metadataDB(txn).Create(evt); result.Error != nil {
		return fmt.Errorf("add activity: %w", result.Error)
	}
	return nil
}

// ListActivity returns the most recent activity entries, newest first. An
// empty kind matches every entry.
func (d *Database) ListActivity(
	kind string,
	limit int,
	txn *Txn,
) ([]models.ActivityEvent, error) {
	var ret []models.ActivityEvent
	query := d.metadataDB(txn).Order("id DESC")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
