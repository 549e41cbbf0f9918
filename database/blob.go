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
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const blobGcInterval = 5 * time.Minute

var ErrBlobKeyNotFound = errors.New("blob key not found")

// BlobStore holds ledger state (boxes, balances, the transaction index) in
// badger. Without a data directory everything stays in memory.
type BlobStore struct {
	promRegistry prometheus.Registerer
	db           *badger.DB
	logger       *slog.Logger
	gcTicker     *time.Ticker
	gcStopCh     chan struct{}
	dataDir      string
	gcWg         sync.WaitGroup
	gcEnabled    bool
}

type BlobStoreOptionFunc func(*BlobStore)

// WithBlobLogger specifies the logger object to use for logging messages
func WithBlobLogger(logger *slog.Logger) BlobStoreOptionFunc {
	return func(b *BlobStore) {
		b.logger = logger
	}
}

// WithBlobPromRegistry specifies the prometheus registry to use for metrics
func WithBlobPromRegistry(registry prometheus.Registerer) BlobStoreOptionFunc {
	return func(b *BlobStore) {
		b.promRegistry = registry
	}
}

// WithBlobDataDir specifies the data directory to use for storage
func WithBlobDataDir(dataDir string) BlobStoreOptionFunc {
	return func(b *BlobStore) {
		b.dataDir = dataDir
	}
}

// WithBlobGc specifies whether value log garbage collection is enabled
func WithBlobGc(enabled bool) BlobStoreOptionFunc {
	return func(b *BlobStore) {
		b.gcEnabled = enabled
	}
}

// NewBlobStore opens the badger database
func NewBlobStore(opts ...BlobStoreOptionFunc) (*BlobStore, error) {
	b := &BlobStore{}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var badgerOpts badger.Options
	if b.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
		// GC is meaningless without a value log on disk
		b.gcEnabled = false
	} else {
		if _, err := os.Stat(b.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(b.dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(b.dataDir, "ledger")).
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger(b.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	b.db = db
	if b.promRegistry != nil {
		b.registerMetrics()
	}
	if b.gcEnabled {
		b.gcTicker = time.NewTicker(blobGcInterval)
		b.gcStopCh = make(chan struct{})
		b.gcWg.Add(1)
		go b.blobGc(b.gcTicker, b.gcStopCh)
	}
	return b, nil
}

func (b *BlobStore) registerMetrics() {
	promautoFactory := promauto.With(b.promRegistry)
	promautoFactory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "campusd_blob_lsm_bytes",
			Help: "size of the ledger LSM tree in bytes",
		},
		func() float64 {
			lsm, _ := b.db.Size()
			return float64(lsm)
		},
	)
	promautoFactory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "campusd_blob_vlog_bytes",
			Help: "size of the ledger value log in bytes",
		},
		func() float64 {
			_, vlog := b.db.Size()
			return float64(vlog)
		},
	)
}

func (b *BlobStore) blobGc(t *time.Ticker, stop <-chan struct{}) {
	defer b.gcWg.Done()
	for {
		select {
		case <-t.C:
			for {
				err := b.db.RunValueLogGC(0.5)
				if err == nil {
					// Keep going while rewrites succeed
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					b.logger.Warn(
						fmt.Sprintf("blob DB: GC failure: %s", err),
						"component", "database",
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// DB returns the database handle
func (b *BlobStore) DB() *badger.DB {
	return b.db
}

// NewTransaction creates a new badger transaction
func (b *BlobStore) NewTransaction(update bool) *badger.Txn {
	return b.db.NewTransaction(update)
}

// Get retrieves a value within a transaction
func (b *BlobStore) Get(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrBlobKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Close stops GC and closes the database handle
func (b *BlobStore) Close() error {
	if b.gcTicker != nil {
		b.gcTicker.Stop()
		close(b.gcStopCh)
		b.gcWg.Wait()
		b.gcTicker = nil
	}
	return b.db.Close()
}

// badgerLogger routes badger's printf-style logging through slog
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...), "component", "database")
}

func (l *badgerLogger) Warningf(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...), "component", "database")
}

func (l *badgerLogger) Infof(msg string, args ...any) {
	l.logger.Info(fmt.Sprintf(msg, args...), "component", "database")
}

func (l *badgerLogger) Debugf(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...), "component", "database")
}
