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

// Package txtrack follows submitted transactions until the ledger confirms
// them. A fixed pool of workers polls the transaction index; transactions
// that never confirm are moved to the dead-letter table.
package txtrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/algocampus/campusd/database"
	"github.com/algocampus/campusd/database/models"
	"github.com/algocampus/campusd/event"
	"github.com/algocampus/campusd/ledger"
)

const (
	DefaultWorkers     = 4
	DefaultMaxAttempts = 30
	DefaultInterval    = 2 * time.Second
	DefaultQueueSize   = 1024
)

var (
	ErrNotStarted = errors.New("tracker not started")
	ErrStopped    = errors.New("tracker stopped")
)

// Lookup reports the confirmation state of a transaction
type Lookup interface {
	LookupTx(txID string) (ledger.TxInfo, error)
}

// Attrs carries the off-chain context needed when a transaction confirms
type Attrs struct {
	SessionID      *uint64
	CourseCode     string
	StudentAddress string
}

type Config struct {
	DB           *database.Database
	Lookup       Lookup
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Workers      int
	QueueSize    int
	MaxAttempts  uint
	Interval     time.Duration
}

type job struct {
	attrs Attrs
	txID  string
	kind  string
}

type Tracker struct {
	config  Config
	logger  *slog.Logger
	metrics trackerMetrics
	queue   chan job
	group   *errgroup.Group
	cancel  context.CancelFunc
	mutex   sync.Mutex
	started bool
	stopped bool
}

func New(cfg Config) (*Tracker, error) {
	if cfg.DB == nil {
		return nil, errors.New("tracker requires a database")
	}
	if cfg.Lookup == nil {
		return nil, errors.New("tracker requires a transaction lookup")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	t := &Tracker{
		config: cfg,
		logger: cfg.Logger,
		queue:  make(chan job, cfg.QueueSize),
	}
	t.metrics.init(cfg.PromRegistry)
	return t, nil
}

// Start launches the worker pool and re-enqueues transactions left pending
// by a previous run
func (t *Tracker) Start(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.stopped {
		return ErrStopped
	}
	if t.started {
		return nil
	}
	workerCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(workerCtx)
	t.cancel = cancel
	t.group = group
	t.started = true
	for range t.config.Workers {
		group.Go(func() error {
			return t.worker(groupCtx)
		})
	}
	pending, err := t.config.DB.ListTrackedTx(models.TxStatusPending, 0, nil)
	if err != nil {
		return fmt.Errorf("load pending transactions: %w", err)
	}
	for _, row := range pending {
		t.enqueue(job{
			txID: row.TxId,
			kind: row.Kind,
			attrs: Attrs{
				SessionID:      row.SessionId,
				CourseCode:     row.CourseCode,
				StudentAddress: row.StudentAddress,
			},
		})
	}
	if len(pending) > 0 {
		t.logger.Info(
			fmt.Sprintf("resumed tracking of %d pending transactions", len(pending)),
			"component", "txtrack",
		)
	}
	return nil
}

// Stop cancels all polling and waits for the workers to exit. Transactions
// still being polled stay pending.
func (t *Tracker) Stop() error {
	t.mutex.Lock()
	if t.stopped || !t.started {
		t.stopped = true
		t.mutex.Unlock()
		return nil
	}
	t.stopped = true
	t.cancel()
	group := t.group
	t.mutex.Unlock()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Track records a pending transaction and queues it for confirmation
// polling. When the queue is full the transaction is dead-lettered at once.
func (t *Tracker) Track(
	ctx context.Context,
	txID string,
	kind string,
	attrs Attrs,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mutex.Lock()
	started, stopped := t.started, t.stopped
	t.mutex.Unlock()
	if stopped {
		return ErrStopped
	}
	if !started {
		return ErrNotStarted
	}
	if kind == "" {
		kind = models.TxKindOther
	}
	row := &models.TrackedTx{
		TxId:           txID,
		Kind:           kind,
		Status:         models.TxStatusPending,
		SessionId:      attrs.SessionID,
		CourseCode:     attrs.CourseCode,
		StudentAddress: attrs.StudentAddress,
	}
	err := t.config.DB.Transaction(true).Do(func(txn *database.Txn) error {
		if err := t.config.DB.UpsertTrackedTx(row, txn); err != nil {
			return err
		}
		return t.config.DB.AddActivity(&models.ActivityEvent{
			Kind:  models.ActivityTxTracked,
			Title: "Transaction submitted",
			TxId:  txID,
			Tags:  kind,
		}, txn)
	})
	if err != nil {
		return fmt.Errorf("track %s: %w", txID, err)
	}
	t.enqueue(job{txID: txID, kind: kind, attrs: attrs})
	return nil
}

// Status returns the tracked state of a transaction
func (t *Tracker) Status(txID string) (models.TrackedTx, error) {
	return t.config.DB.GetTrackedTx(txID, nil)
}

func (t *Tracker) enqueue(j job) {
	select {
	case t.queue <- j:
		t.metrics.queueDepth.Inc()
	default:
		t.logger.Warn(
			"tracking queue full, dead-lettering transaction",
			"component", "txtrack",
			"tx_id", j.txID,
		)
		if err := t.fail(j, 0, "tracking queue full"); err != nil {
			t.logger.Error(
				"failed to dead-letter transaction",
				"component", "txtrack",
				"tx_id", j.txID,
				"error", err,
			)
		}
	}
}

func (t *Tracker) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-t.queue:
			t.metrics.queueDepth.Dec()
			if err := t.poll(ctx, j); err != nil {
				t.logger.Error(
					"transaction tracking failed",
					"component", "txtrack",
					"tx_id", j.txID,
					"error", err,
				)
			}
		}
	}
}

func (t *Tracker) poll(ctx context.Context, j job) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for attempt := uint(1); attempt <= t.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		info, err := t.config.Lookup.LookupTx(j.txID)
		switch {
		case err == nil && info.Confirmed:
			return t.confirm(j, attempt, info.ConfirmedRound)
		case err != nil && !errors.Is(err, ledger.ErrTxNotFound):
			t.logger.Debug(
				"transaction lookup failed",
				"component", "txtrack",
				"tx_id", j.txID,
				"attempt", attempt,
				"error", err,
			)
		}
		timer.Reset(t.config.Interval)
	}
	return t.fail(
		j,
		t.config.MaxAttempts,
		fmt.Sprintf("not confirmed after %d attempts", t.config.MaxAttempts),
	)
}

func (t *Tracker) confirm(j job, attempts uint, round uint64) error {
	db := t.config.DB
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := db.SetTrackedTxStatus(j.txID, models.TxStatusConfirmed, &round, attempts, txn); err != nil {
			return err
		}
		if j.kind == models.TxKindCheckIn && j.attrs.SessionID != nil {
			if err := db.AddAttendanceRecord(&models.AttendanceRecord{
				SessionId:      *j.attrs.SessionID,
				CourseCode:     j.attrs.CourseCode,
				StudentAddress: j.attrs.StudentAddress,
				TxId:           j.txID,
			}, txn); err != nil {
				return err
			}
		}
		return db.AddActivity(&models.ActivityEvent{
			Kind:        models.ActivityTxConfirmed,
			Title:       "Transaction confirmed",
			Description: fmt.Sprintf("confirmed in round %d", round),
			TxId:        j.txID,
			Tags:        j.kind,
		}, txn)
	})
	if err != nil {
		return err
	}
	t.metrics.confirmed.Inc()
	t.publish(TxConfirmedEventType, TxConfirmedEvent{
		TxID:  j.txID,
		Kind:  j.kind,
		Round: round,
	})
	t.logger.Debug(
		"transaction confirmed",
		"component", "txtrack",
		"tx_id", j.txID,
		"round", round,
	)
	return nil
}

func (t *Tracker) fail(j job, attempts uint, reason string) error {
	db := t.config.DB
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		err := db.SetTrackedTxStatus(j.txID, models.TxStatusFailed, nil, attempts, txn)
		if err != nil && !errors.Is(err, models.ErrTrackedTxNotFound) {
			return err
		}
		if err := db.AddDeadLetter(&models.DeadLetter{
			TxId:     j.txID,
			Kind:     j.kind,
			Reason:   reason,
			Attempts: attempts,
		}, txn); err != nil {
			return err
		}
		return db.AddActivity(&models.ActivityEvent{
			Kind:        models.ActivityTxFailed,
			Title:       "Transaction not confirmed",
			Description: reason,
			TxId:        j.txID,
			Tags:        j.kind,
		}, txn)
	})
	if err != nil {
		return err
	}
	t.metrics.deadLetters.Inc()
	t.publish(TxFailedEventType, TxFailedEvent{
		TxID:   j.txID,
		Kind:   j.kind,
		Reason: reason,
	})
	t.logger.Warn(
		"transaction dead-lettered",
		"component", "txtrack",
		"tx_id", j.txID,
		"reason", reason,
	)
	return nil
}

func (t *Tracker) publish(evtType event.EventType, data any) {
	if t.config.EventBus == nil {
		return
	}
	t.config.EventBus.Publish(evtType, event.NewEvent(evtType, data))
}
