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
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/algocampus/campusd/database/models"
)

// AddIntent persists a new intent record
func (d *Database) AddIntent(intent *models.Intent, txn *Txn) error {
	db := d.metadataDB(txn)
	var count int64
	if result := db.Model(&models.Intent{}).
		Where("intent_id = ?", intent.IntentId).
		Count(&count); result.Error != nil {
		return result.Error
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", models.ErrIntentAlreadyExists, intent.IntentId)
	}
	if result := db.Create(intent); result.Error != nil {
		return fmt.Errorf("add intent: %w", result.Error)
	}
	return nil
}

// GetIntent returns the intent with the given id
func (d *Database) GetIntent(intentId string, txn *Txn) (models.Intent, error) {
	var ret models.Intent
	result := d.metadataDB(txn).Where("intent_id = ?", intentId).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ret, models.ErrIntentNotFound
		}
		return ret, result.Error
	}
	return ret, nil
}

// UpdateIntentStatus sets the status of an existing intent
func (d *Database) UpdateIntentStatus(
	intentId string,
	status string,
	txn *Txn,
) error {
	result := d.metadataDB(txn).
		Model(&models.Intent{}).
		Where("intent_id = ?", intentId).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrIntentNotFound
	}
	return nil
}

// ListIntentsByStatus returns intents in any of the given states, oldest first.
// A limit of 0 returns all matches.
func (d *Database) ListIntentsByStatus(
	statuses []string,
	limit int,
	txn *Txn,
) ([]models.Intent, error) {
	var ret []models.Intent
	query := d.metadataDB(txn).
		Where("status IN ?", statuses).
		Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// ListIntentsByHash returns every intent planned with the given content
// hash, oldest first
func (d *Database) ListIntentsByHash(
	intentHash string,
	txn *Txn,
) ([]models.Intent, error) {
	var ret []models.Intent
	result := d.metadataDB(txn).
		Where("intent_hash = ?", intentHash).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AddExecution appends an execution audit record
func (d *Database) AddExecution(execution *models.Execution, txn *Txn) error {
	if result := d.metadataDB(txn).Create(execution); result.Error != nil {
		return fmt.Errorf("add execution: %w", result.Error)
	}
	return nil
}

// ListExecutions returns the execution records for an intent in insertion order
func (d *Database) ListExecutions(
	intentId string,
	txn *Txn,
) ([]models.Execution, error) {
	var ret []models.Execution
	result := d.metadataDB(txn).
		Where("intent_id = ?", intentId).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
