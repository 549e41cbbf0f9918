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
	ErrPollNotFound        = errors.New("poll not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrCertificateNotFound = errors.New("certificate not found")
)

// Poll is a read projection of an on-chain poll. LastSyncedRound records the
// ledger round the projection was last refreshed at.
type Poll struct {
	CreatedAt       time.Time
	Question        string `gorm:"type:text"`
	OptionsJson     string `gorm:"type:text"`
	Creator         string `gorm:"size:128"`
	TxId            string `gorm:"size:64"`
	ID              uint   `gorm:"primarykey"`
	AppId           uint64 `gorm:"uniqueIndex:idx_poll_app;not null"`
	PollId          uint64 `gorm:"uniqueIndex:idx_poll_app;not null"`
	StartRound      uint64
	EndRound        uint64
	LastSyncedRound uint64
}

func (Poll) TableName() string {
	return "poll"
}

// Session is a read projection of an on-chain attendance session. Title,
// Description and Location exist only off-chain and are the only editable
// columns.
type Session struct {
	CreatedAt       time.Time
	CourseCode      string `gorm:"size:64;index"`
	Creator         string `gorm:"size:128"`
	TxId            string `gorm:"size:64"`
	Title           string `gorm:"size:255"`
	Description     string `gorm:"type:text"`
	Location        string `gorm:"size:255"`
	ID              uint   `gorm:"primarykey"`
	AppId           uint64 `gorm:"uniqueIndex:idx_session_app;not null"`
	SessionId       uint64 `gorm:"uniqueIndex:idx_session_app;not null"`
	SessionTs       uint64
	OpenRound       uint64
	CloseRound      uint64
	LastSyncedRound uint64
}

func (Session) TableName() string {
	return "session"
}

// SessionMetadata carries the off-chain-only session fields
type SessionMetadata struct {
	Title       *string
	Description *string
	Location    *string
}

// Certificate caches a registered certificate and its ARC-3 metadata
type Certificate struct {
	CreatedAt    time.Time
	CertHash     string `gorm:"size:64;uniqueIndex;not null"`
	Recipient    string `gorm:"size:128;index"`
	MetadataUrl  string `gorm:"size:512"`
	MetadataJson string `gorm:"type:text"`
	TxId         string `gorm:"size:64"`
	ID           uint   `gorm:"primarykey"`
	AppId        uint64
	AssetId      uint64
	IssuedTs     uint64
}

func (Certificate) TableName() string {
	return "certificate"
}

// AttendanceRecord is written once a check-in transaction confirms
type AttendanceRecord struct {
	CreatedAt      time.Time
	CourseCode     string `gorm:"size:64"`
	StudentAddress string `gorm:"size:128;uniqueIndex:idx_attendance_student;not null"`
	TxId           string `gorm:"size:64"`
	ID             uint   `gorm:"primarykey"`
	SessionId      uint64 `gorm:"uniqueIndex:idx_attendance_student;not null"`
}

func (AttendanceRecord) TableName() string {
	return "attendance_record"
}
