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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/algocampus/campusd/database/models"
)

// MetadataStore holds the off-chain intent records, the audit trail and the
// cached projections of on-chain objects
type MetadataStore struct {
	db     *gorm.DB
	logger *slog.Logger
	driver string
}

// NewMetadataStore opens the metadata database with the named driver and
// applies model migrations
func NewMetadataStore(
	driver string,
	dataDir string,
	postgresDsn string,
	logger *slog.Logger,
) (*MetadataStore, error) {
	gormConfig := &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	}
	var dialector gorm.Dialector
	inMemory := false
	switch driver {
	case "", MetadataDriverSqlite:
		driver = MetadataDriverSqlite
		if dataDir == "" {
			// Each in-memory store gets its own named database so that
			// separate instances in one process do not share tables
			dialector = sqlite.Open(
				fmt.Sprintf(
					"file:campusd-%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)",
					uuid.NewString(),
				),
			)
			inMemory = true
		} else {
			if _, err := os.Stat(dataDir); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return nil, fmt.Errorf("failed to read data dir: %w", err)
				}
				if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
					return nil, fmt.Errorf("failed to create data dir: %w", err)
				}
			}
			metadataDbPath := filepath.Join(dataDir, "metadata.sqlite")
			connOpts := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
			dialector = sqlite.Open(
				fmt.Sprintf("file:%s?%s", metadataDbPath, connOpts),
			)
		}
	case MetadataDriverPostgres:
		if postgresDsn == "" {
			return nil, errors.New("postgres metadata driver requires a DSN")
		}
		dialector = postgres.Open(postgresDsn)
	default:
		return nil, fmt.Errorf("unknown metadata driver: %s", driver)
	}
	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}
	if inMemory {
		sqlDb, err := db.DB()
		if err != nil {
			return nil, err
		}
		// A single connection keeps in-memory writers from tripping over
		// shared-cache table locks
		sqlDb.SetMaxOpenConns(1)
	}
	m := &MetadataStore{
		db:     db,
		logger: logger,
		driver: driver,
	}
	if err := m.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	for _, model := range models.MigrateModels {
		m.logger.Debug(
			fmt.Sprintf("creating table: %T", model),
			"component", "database",
		)
		if err := m.db.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DB returns the gorm handle
func (m *MetadataStore) DB() *gorm.DB {
	return m.db
}

// Driver returns the name of the SQL driver in use
func (m *MetadataStore) Driver() string {
	return m.driver
}

// Transaction begins a new gorm transaction
func (m *MetadataStore) Transaction() *gorm.DB {
	return m.db.Begin()
}

func (m *MetadataStore) Close() error {
	sqlDb, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDb.Close()
}
