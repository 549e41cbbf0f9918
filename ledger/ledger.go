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

// Package ledger implements an application ledger with round-based time,
// per-application box storage and atomic calls. Calls are serialized and
// each one runs in a single store transaction, so a rejected call leaves no
// trace.
package ledger

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/blinklabs-io/gouroboros/cbor"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/blake2b"

	"github.com/algocampus/campusd/database"
	"github.com/algocampus/campusd/event"
	"github.com/algocampus/campusd/mempool"
)

const (
	DefaultGenesisRound uint64 = 1
	createMethod               = "create"
)

var txIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type Config struct {
	DB           *database.Database
	Mempool      *mempool.Mempool
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	GenesisRound uint64
}

type Ledger struct {
	config   Config
	db       *database.Database
	mempool  *mempool.Mempool
	eventBus *event.EventBus
	logger   *slog.Logger
	apps     map[string]Application
	metrics  ledgerMetrics
	round    atomic.Uint64
	mutex    sync.Mutex
	closed   bool
}

// CallRequest describes an application call and its atomic group
type CallRequest struct {
	Method   string
	Args     Args
	Payments []Payment
	AppID    uint64
	Sender   Address
}

type CallResult struct {
	Return any
	TxID   string
	Round  uint64
}

// TxInfo is the indexer view of a transaction
type TxInfo struct {
	TxID           string
	Method         string
	AppID          uint64
	Round          uint64
	ConfirmedRound uint64
	Sender         Address
	Confirmed      bool
}

type appRecord struct {
	Kind    string
	Creator Address
}

type txRecord struct {
	Method         string
	AppID          uint64
	Round          uint64
	ConfirmedRound uint64
	Sender         Address
}

type txBody struct {
	Method   string
	Args     []any
	Payments []Payment
	AppID    uint64
	Round    uint64
	Nonce    uint64
	Sender   Address
}

func New(cfg Config) (*Ledger, error) {
	if cfg.DB == nil {
		return nil, errors.New("ledger requires a database")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.GenesisRound == 0 {
		cfg.GenesisRound = DefaultGenesisRound
	}
	if cfg.Mempool == nil {
		cfg.Mempool = mempool.NewMempool(mempool.MempoolConfig{
			Logger:   cfg.Logger,
			EventBus: cfg.EventBus,
		})
	}
	l := &Ledger{
		config:   cfg,
		db:       cfg.DB,
		mempool:  cfg.Mempool,
		eventBus: cfg.EventBus,
		logger:   cfg.Logger,
		apps:     make(map[string]Application),
	}
	l.metrics.init(cfg.PromRegistry)
	if err := l.loadRound(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) loadRound() error {
	return l.db.BlobTransaction(true).Do(func(txn *database.Txn) error {
		round, ok, err := getUint64(txn.Blob(), keyRound)
		if err != nil {
			return err
		}
		if !ok {
			round = l.config.GenesisRound
			if err := putUint64(txn.Blob(), keyRound, round); err != nil {
				return err
			}
			l.logger.Info(
				fmt.Sprintf("initialized ledger at genesis round %d", round),
				"component", "ledger",
			)
		}
		l.round.Store(round)
		l.metrics.round.Set(float64(round))
		return nil
	})
}

// Round returns the current open round. Calls executed now observe it.
func (l *Ledger) Round() uint64 {
	return l.round.Load()
}

// Mempool returns the pool of executed transactions awaiting a round seal
func (l *Ledger) Mempool() *mempool.Mempool {
	return l.mempool
}

// Close marks the ledger closed. The database is owned by the caller.
func (l *Ledger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.closed = true
	return nil
}

func (l *Ledger) application(kind string) (Application, error) {
	if app, ok := l.apps[kind]; ok {
		return app, nil
	}
	factory, err := lookupApplication(kind)
	if err != nil {
		return nil, err
	}
	app := factory()
	l.apps[kind] = app
	return app, nil
}

func (l *Ledger) loadApp(txn *badger.Txn, appID uint64) (appRecord, error) {
	var rec appRecord
	ok, err := getValue(txn, appKey(appID), &rec)
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, fmt.Errorf("%w: %d", ErrAppNotFound, appID)
	}
	return rec, nil
}

// LookupApp returns the registration of a deployed application
func (l *Ledger) LookupApp(appID uint64) (AppInfo, error) {
	txn := l.db.BlobTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	rec, err := l.loadApp(txn.Blob(), appID)
	if err != nil {
		return AppInfo{}, err
	}
	return AppInfo{
		ID:      appID,
		Kind:    rec.Kind,
		Creator: rec.Creator,
		Address: AppAddress(appID),
	}, nil
}

// Deploy creates a new application of the given kind. The sender becomes
// the application's immutable creator.
func (l *Ledger) Deploy(
	ctx context.Context,
	creator Address,
	kind string,
) (CallResult, error) {
	if err := ctx.Err(); err != nil {
		return CallResult{}, err
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return CallResult{}, ErrLedgerClosed
	}
	app, err := l.application(kind)
	if err != nil {
		return CallResult{}, err
	}
	round := l.Round()
	var appID uint64
	var pending mempool.MempoolTransaction
	err = l.db.BlobTransaction(true).Do(func(txn *database.Txn) error {
		var err error
		appID, err = nextCounter(txn.Blob(), keyNextApp, firstAppID)
		if err != nil {
			return err
		}
		if err := putValue(txn.Blob(), appKey(appID), &appRecord{Kind: kind, Creator: creator}); err != nil {
			return err
		}
		cctx := l.newCallContext(txn.Blob(), appID, creator, creator, round, false)
		if err := app.Create(cctx); err != nil {
			return l.revert(appID, createMethod, err)
		}
		pending, err = l.recordTx(
			txn.Blob(),
			CallRequest{AppID: appID, Sender: creator, Method: createMethod},
			round,
		)
		return err
	})
	if err != nil {
		return CallResult{}, err
	}
	l.submit(pending)
	l.metrics.appsDeployed.Inc()
	l.logger.Info(
		fmt.Sprintf("deployed %s application %d", kind, appID),
		"component", "ledger",
		"creator", creator.String(),
		"tx_id", pending.Hash,
	)
	return CallResult{Return: appID, TxID: pending.Hash, Round: round}, nil
}

// Call executes an application call with its grouped payments atomically
func (l *Ledger) Call(ctx context.Context, req CallRequest) (CallResult, error) {
	if err := ctx.Err(); err != nil {
		return CallResult{}, err
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return CallResult{}, ErrLedgerClosed
	}
	round := l.Round()
	var ret any
	var pending mempool.MempoolTransaction
	err := l.db.BlobTransaction(true).Do(func(txn *database.Txn) error {
		rec, err := l.loadApp(txn.Blob(), req.AppID)
		if err != nil {
			return err
		}
		app, err := l.application(rec.Kind)
		if err != nil {
			return err
		}
		cctx := l.newCallContext(txn.Blob(), req.AppID, rec.Creator, req.Sender, round, false)
		cctx.Group = req.Payments
		if err := l.applyPayments(txn.Blob(), req.Sender, req.Payments); err != nil {
			return l.revert(req.AppID, req.Method, err)
		}
		ret, err = app.Invoke(cctx, req.Method, req.Args)
		if err != nil {
			return l.revert(req.AppID, req.Method, err)
		}
		pending, err = l.recordTx(txn.Blob(), req, round)
		return err
	})
	if err != nil {
		var revertErr *RevertError
		if errors.As(err, &revertErr) {
			l.metrics.reverts.WithLabelValues(req.Method).Inc()
			l.publish(CallRevertedEventType, CallRevertedEvent{
				AppID:  req.AppID,
				Method: req.Method,
				Reason: revertErr.Reason,
				Round:  round,
			})
			l.logger.Debug(
				"call reverted",
				"component", "ledger",
				"app_id", req.AppID,
				"method", req.Method,
				"reason", revertErr.Reason,
			)
		}
		return CallResult{}, err
	}
	l.submit(pending)
	l.metrics.calls.WithLabelValues(req.Method).Inc()
	return CallResult{Return: ret, TxID: pending.Hash, Round: round}, nil
}

// ReadOnly runs a method against a snapshot of the ledger. Nothing is
// written and no transaction id is produced.
func (l *Ledger) ReadOnly(ctx context.Context, req CallRequest) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Payments) > 0 {
		return nil, errors.New("read-only calls cannot carry payments")
	}
	txn := l.db.BlobTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	rec, err := l.loadApp(txn.Blob(), req.AppID)
	if err != nil {
		return nil, err
	}
	l.mutex.Lock()
	app, err := l.application(rec.Kind)
	l.mutex.Unlock()
	if err != nil {
		return nil, err
	}
	cctx := l.newCallContext(txn.Blob(), req.AppID, rec.Creator, req.Sender, l.Round(), true)
	ret, err := app.Invoke(cctx, req.Method, req.Args)
	if err != nil {
		return nil, l.revert(req.AppID, req.Method, err)
	}
	return ret, nil
}

func (l *Ledger) newCallContext(
	txn *badger.Txn,
	appID uint64,
	creator Address,
	sender Address,
	round uint64,
	readOnly bool,
) *CallContext {
	return &CallContext{
		Boxes:      newBoxStore(txn, appID),
		txn:        txn,
		Round:      round,
		AppID:      appID,
		Sender:     sender,
		Creator:    creator,
		AppAddress: AppAddress(appID),
		readOnly:   readOnly,
	}
}

// revert normalizes an application error into a RevertError for the call
func (l *Ledger) revert(appID uint64, method string, err error) error {
	var revertErr *RevertError
	if errors.As(err, &revertErr) {
		return &RevertError{
			AppID:  appID,
			Method: method,
			Reason: revertErr.Reason,
			cause:  revertErr.cause,
		}
	}
	return &RevertError{
		AppID:  appID,
		Method: method,
		Reason: err.Error(),
		cause:  err,
	}
}

func (l *Ledger) applyPayments(txn *badger.Txn, sender Address, payments []Payment) error {
	for _, pay := range payments {
		if pay.Amount == 0 {
			continue
		}
		bal, _, err := getUint64(txn, balanceKey(sender))
		if err != nil {
			return err
		}
		if bal < pay.Amount {
			return fmt.Errorf(
				"%w: %s has %d, needs %d",
				ErrInsufficientFunds,
				sender.String(),
				bal,
				pay.Amount,
			)
		}
		if err := putUint64(txn, balanceKey(sender), bal-pay.Amount); err != nil {
			return err
		}
		recvBal, _, err := getUint64(txn, balanceKey(pay.Receiver))
		if err != nil {
			return err
		}
		if err := putUint64(txn, balanceKey(pay.Receiver), recvBal+pay.Amount); err != nil {
			return err
		}
	}
	return nil
}

// recordTx assigns the transaction id and writes the pending index entry.
// The mempool capacity is checked here so a full pool rejects the call
// before anything commits.
func (l *Ledger) recordTx(
	txn *badger.Txn,
	req CallRequest,
	round uint64,
) (mempool.MempoolTransaction, error) {
	nonce, err := nextCounter(txn, keyNonce, 0)
	if err != nil {
		return mempool.MempoolTransaction{}, err
	}
	body, err := cbor.Encode(&txBody{
		AppID:    req.AppID,
		Method:   req.Method,
		Sender:   req.Sender,
		Args:     req.Args,
		Payments: req.Payments,
		Round:    round,
		Nonce:    nonce,
	})
	if err != nil {
		return mempool.MempoolTransaction{}, fmt.Errorf("encode transaction: %w", err)
	}
	if err := l.mempool.CheckCapacity(len(body)); err != nil {
		return mempool.MempoolTransaction{}, err
	}
	hash := blake2b.Sum256(body)
	txID := txIDEncoding.EncodeToString(hash[:])
	rec := txRecord{
		AppID:  req.AppID,
		Method: req.Method,
		Sender: req.Sender,
		Round:  round,
	}
	if err := putValue(txn, txKey(txID), &rec); err != nil {
		return mempool.MempoolTransaction{}, err
	}
	return mempool.MempoolTransaction{
		Hash:   txID,
		Method: req.Method,
		Cbor:   body,
		AppID:  req.AppID,
		Round:  round,
	}, nil
}

func (l *Ledger) submit(tx mempool.MempoolTransaction) {
	// Capacity was checked under the ledger lock before commit
	if err := l.mempool.AddTransaction(tx); err != nil {
		l.logger.Error(
			"failed to add committed transaction to mempool",
			"component", "ledger",
			"tx_id", tx.Hash,
			"error", err,
		)
	}
	l.publish(TxExecutedEventType, TxExecutedEvent{
		TxID:   tx.Hash,
		AppID:  tx.AppID,
		Method: tx.Method,
		Round:  tx.Round,
	})
}

// SealRound confirms every pending transaction in the current round and
// opens the next one. It returns the sealed round.
func (l *Ledger) SealRound() (uint64, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return 0, ErrLedgerClosed
	}
	return l.sealRound(l.Round() + 1)
}

// AdvanceTo seals the current round and jumps to the target round
func (l *Ledger) AdvanceTo(target uint64) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return ErrLedgerClosed
	}
	cur := l.Round()
	if target == cur {
		return nil
	}
	if target < cur {
		return fmt.Errorf("%w: current %d, target %d", ErrRoundNotAhead, cur, target)
	}
	_, err := l.sealRound(target)
	return err
}

func (l *Ledger) sealRound(next uint64) (uint64, error) {
	sealed := l.Round()
	pending := l.mempool.Drain()
	txIDs := make([]string, 0, len(pending))
	err := l.db.BlobTransaction(true).Do(func(txn *database.Txn) error {
		for _, tx := range pending {
			var rec txRecord
			ok, err := getValue(txn.Blob(), txKey(tx.Hash), &rec)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			rec.ConfirmedRound = sealed
			if err := putValue(txn.Blob(), txKey(tx.Hash), &rec); err != nil {
				return err
			}
			txIDs = append(txIDs, tx.Hash)
		}
		return putUint64(txn.Blob(), keyRound, next)
	})
	if err != nil {
		// Put the drained transactions back so the next seal picks them up
		for _, tx := range pending {
			_ = l.mempool.AddTransaction(tx)
		}
		return 0, fmt.Errorf("seal round %d: %w", sealed, err)
	}
	l.round.Store(next)
	l.metrics.round.Set(float64(next))
	l.metrics.txsConfirmed.Add(float64(len(txIDs)))
	l.publish(RoundSealedEventType, RoundSealedEvent{Round: sealed, TxIDs: txIDs})
	if len(txIDs) > 0 {
		l.logger.Debug(
			fmt.Sprintf("sealed round %d with %d transactions", sealed, len(txIDs)),
			"component", "ledger",
		)
	}
	return sealed, nil
}

// LookupTx returns the confirmation state of a transaction
func (l *Ledger) LookupTx(txID string) (TxInfo, error) {
	txn := l.db.BlobTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	var rec txRecord
	ok, err := getValue(txn.Blob(), txKey(txID), &rec)
	if err != nil {
		return TxInfo{}, err
	}
	if !ok {
		return TxInfo{}, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
	}
	return TxInfo{
		TxID:           txID,
		AppID:          rec.AppID,
		Method:         rec.Method,
		Sender:         rec.Sender,
		Round:          rec.Round,
		ConfirmedRound: rec.ConfirmedRound,
		Confirmed:      rec.ConfirmedRound > 0,
	}, nil
}

// Fund credits an account. Used for the development genesis.
func (l *Ledger) Fund(addr Address, amount uint64) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.db.BlobTransaction(true).Do(func(txn *database.Txn) error {
		bal, _, err := getUint64(txn.Blob(), balanceKey(addr))
		if err != nil {
			return err
		}
		return putUint64(txn.Blob(), balanceKey(addr), bal+amount)
	})
}

func (l *Ledger) Balance(addr Address) (uint64, error) {
	txn := l.db.BlobTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	bal, _, err := getUint64(txn.Blob(), balanceKey(addr))
	return bal, err
}

func (l *Ledger) GetAsset(assetID uint64) (AssetParams, error) {
	txn := l.db.BlobTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	var ret AssetParams
	ok, err := getValue(txn.Blob(), assetKey(assetID), &ret)
	if err != nil {
		return ret, err
	}
	if !ok {
		return ret, fmt.Errorf("%w: %d", ErrAssetNotFound, assetID)
	}
	return ret, nil
}

func (l *Ledger) publish(evtType event.EventType, data any) {
	if l.eventBus == nil {
		return
	}
	l.eventBus.Publish(evtType, event.NewEvent(evtType, data))
}
