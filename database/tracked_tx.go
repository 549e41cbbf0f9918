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

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/algocampus/campusd/database/models"
)

// UpsertTrackedTx creates a tracked transaction or resets an existing one to
// the supplied state
func (d *Database) UpsertTrackedTx(tx *models.TrackedTx, txn *Txn) error {
	return d.metadataDB(txn).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tx_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind",
			"status",
			"confirmed_round",
			"attempts",
			"updated_at",
		}),
	}).Create(tx).Error
}

func (d *Database) GetTrackedTx(txId string, txn *Txn) (models.TrackedTx, error) {
	var ret models.TrackedTx
	result := d.metadataDB(txn).Where("tx_id = ?", txId).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ret, models.ErrTrackedTxNotFound
		}
		return ret, result.Error
	}
	return ret, nil
}

// SetTrackedTxStatus records the outcome of confirmation polling
func (d *Database) SetTrackedTxStatus(
	txId string,
	status string,
	confirmedRound *uint64,
	attempts uint,
	txn *Txn,
) error {
	result := d.metadataDB(txn).
		Model(&models.TrackedTx{}).
		Where("tx_id = ?", txId).
		Updates(map[string]any{
			"status":          status,
			"confirmed_round": confirmedRound,
			"attempts":        attempts,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrTrackedTxNotFound
	}
	return nil
}

func (d *Database) AddDeadLetter(letter *models.DeadLetter, txn *Txn) error {
	return d.metadataDB(txn).Create(letter).Error
}

func (d *Database) ListDeadLetters(limit int, txn *Txn) ([]models.DeadLetter, error) {
	var ret []models.DeadLetter
	query := d.metadataDB(txn).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// ListTrackedTx returns tracked transactions in the given status, oldest
// first
func (d *Database) ListTrackedTx(
	status string,
	limit int,
	txn *Txn,
) ([]models.TrackedTx, error) {
	var ret []models.TrackedTx
	query := d.metadataDB(txn).Where("status = ?", status).Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
