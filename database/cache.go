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

// UpsertPoll stores or refreshes the projection of an on-chain poll
func (d *Database) UpsertPoll(poll *models.Poll, txn *Txn) error {
	return d.metadataDB(txn).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "app_id"}, {Name: "poll_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"question",
			"options_json",
			"start_round",
			"end_round",
			"last_synced_round",
		}),
	}).Create(poll).Error
}

func (d *Database) GetPoll(
	appId uint64,
	pollId uint64,
	txn *Txn,
) (models.Poll, error) {
	var ret models.Poll
	result := d.metadataDB(txn).
		Where("app_id = ? AND poll_id = ?", appId, pollId).
		First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ret, models.ErrPollNotFound
		}
		return ret, result.Error
	}
	return ret, nil
}

// UpsertSession stores or refreshes the on-chain columns of a session
// projection. Off-chain metadata columns are left untouched on conflict.
func (d *Database) UpsertSession(session *models.Session, txn *Txn) error {
	return d.metadataDB(txn).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "app_id"}, {Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"course_code",
			"session_ts",
			"open_round",
			"close_round",
			"last_synced_round",
		}),
	}).Create(session).Error
}

func (d *Database) GetSession(
	appId uint64,
	sessionId uint64,
	txn *Txn,
) (models.Session, error) {
	var ret models.Session
	result := d.metadataDB(txn).
		Where("app_id = ? AND session_id = ?", appId, sessionId).
		First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ret, models.ErrSessionNotFound
		}
		return ret, result.Error
	}
	return ret, nil
}

// UpdateSessionMetadata edits the off-chain-only fields of a session. The
// round window is never writable here.
func (d *Database) UpdateSessionMetadata(
	appId uint64,
	sessionId uint64,
	meta models.SessionMetadata,
	txn *Txn,
) error {
	updates := map[string]any{}
	if meta.Title != nil {
		updates["title"] = *meta.Title
	}
	if meta.Description != nil {
		updates["description"] = *meta.Description
	}
	if meta.Location != nil {
		updates["location"] = *meta.Location
	}
	if len(updates) == 0 {
		return nil
	}
	result := d.metadataDB(txn).
		Model(&models.Session{}).
		Where("app_id = ? AND session_id = ?", appId, sessionId).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// UpsertCertificate stores the cached certificate and its metadata
func (d *Database) UpsertCertificate(cert *models.Certificate, txn *Txn) error {
	return d.metadataDB(txn).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cert_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"recipient",
			"app_id",
			"asset_id",
			"issued_ts",
			"metadata_url",
			"metadata_json",
			"tx_id",
		}),
	}).Create(cert).Error
}

func (d *Database) GetCertificate(
	certHash string,
	txn *Txn,
) (models.Certificate, error) {
	var ret models.Certificate
	result := d.metadataDB(txn).Where("cert_hash = ?", certHash).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ret, models.ErrCertificateNotFound
		}
		return ret, result.Error
	}
	return ret, nil
}

// AddAttendanceRecord records a confirmed check-in. Repeated records for the
// same student and session are ignored.
func (d *Database) AddAttendanceRecord(
	record *models.AttendanceRecord,
	txn *Txn,
) error {
	return d.metadataDB(txn).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record).Error
}

func (d *Database) ListAttendanceRecords(
	sessionId uint64,
	txn *Txn,
) ([]models.AttendanceRecord, error) {
	var ret []models.AttendanceRecord
	result := d.metadataDB(txn).
		Where("session_id = ?", sessionId).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
