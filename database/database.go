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
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	MetadataDriverSqlite   = "sqlite"
	MetadataDriverPostgres = "postgres"
)

// Config describes how the blob and metadata stores are opened. An empty
// DataDir keeps both stores in memory.
type Config struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	DataDir        string
	MetadataDriver string
	PostgresDsn    string
	BlobGc         bool
}

type Database struct {
	logger   *slog.Logger
	blob     *BlobStore
	metadata *MetadataStore
	dataDir  string
}

// Blob returns the underling blob store instance
func (d *Database) Blob() *BlobStore {
	return d.blob
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() *MetadataStore {
	return d.metadata
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Transaction starts a new metadata transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewMetadataOnlyTxn(d, readWrite)
}

// BlobTransaction starts a new blob transaction and returns a handle to it
func (d *Database) BlobTransaction(readWrite bool) *Txn {
	return NewBlobOnlyTxn(d, readWrite)
}

// metadataDB returns the transaction handle when one is active, otherwise
// the shared connection pool
func (d *Database) metadataDB(txn *Txn) *gorm.DB {
	if txn != nil && txn.Metadata() != nil {
		return txn.Metadata()
	}
	return d.metadata.DB()
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// New creates a new database instance with optional persistence using the provided data directory
func New(cfg Config) (*Database, error) {
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	blobDb, err := NewBlobStore(
		WithBlobLogger(logger),
		WithBlobDataDir(cfg.DataDir),
		WithBlobPromRegistry(cfg.PromRegistry),
		WithBlobGc(cfg.BlobGc),
	)
	if err != nil {
		return nil, err
	}
	metadataDb, err := NewMetadataStore(
		cfg.MetadataDriver,
		cfg.DataDir,
		cfg.PostgresDsn,
		logger,
	)
	if err != nil {
		_ = blobDb.Close()
		return nil, err
	}
	return &Database{
		logger:   logger,
		blob:     blobDb,
		metadata: metadataDb,
		dataDir:  cfg.DataDir,
	}, nil
}
