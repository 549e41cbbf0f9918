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

package mempool

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/algocampus/campusd/event"
)

const (
	AddTransactionEventType    event.EventType = "mempool.add_tx"
	RemoveTransactionEventType event.EventType = "mempool.remove_tx"
)

const DefaultCapacity = 1 << 20

type AddTransactionEvent struct {
	Hash   string
	Method string
	AppID  uint64
	Round  uint64
}

type RemoveTransactionEvent struct {
	Hash string
}

// MempoolTransaction is an executed application call waiting to be sealed
// into a round
type MempoolTransaction struct {
	AddedAt time.Time
	Hash    string
	Method  string
	Cbor    []byte
	AppID   uint64
	Round   uint64
}

type MempoolConfig struct {
	PromRegistry    prometheus.Registerer
	Logger          *slog.Logger
	EventBus        *event.EventBus
	MempoolCapacity int64
}

type Mempool struct {
	config  MempoolConfig
	metrics struct {
		txsProcessedNum prometheus.Counter
		txsInMempool    prometheus.Gauge
		mempoolBytes    prometheus.Gauge
	}
	logger       *slog.Logger
	eventBus     *event.EventBus
	transactions []*MempoolTransaction
	size         int
	sync.Mutex
}

type MempoolFullError struct {
	CurrentSize int
	TxSize      int
	Capacity    int64
}

func (e *MempoolFullError) Error() string {
	return fmt.Sprintf(
		"mempool full: current size=%d bytes, tx size=%d bytes, capacity=%d bytes",
		e.CurrentSize,
		e.TxSize,
		e.Capacity,
	)
}

func NewMempool(config MempoolConfig) *Mempool {
	if config.MempoolCapacity <= 0 {
		config.MempoolCapacity = DefaultCapacity
	}
	m := &Mempool{
		eventBus: config.EventBus,
		config:   config,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		m.logger = config.Logger
	}
	promautoFactory := promauto.With(config.PromRegistry)
	m.metrics.txsProcessedNum = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "campusd_mempool_txs_processed_total",
			Help: "total transactions accepted into the mempool",
		},
	)
	m.metrics.txsInMempool = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "campusd_mempool_txs",
		Help: "current count of mempool transactions",
	})
	m.metrics.mempoolBytes = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "campusd_mempool_bytes",
		Help: "current size of mempool transactions in bytes",
	})
	return m
}

// CheckCapacity reports whether a transaction of the given size would fit.
// The ledger checks this before committing a call so a full pool rejects the
// call instead of stranding a committed transaction.
func (m *Mempool) CheckCapacity(txSize int) error {
	m.Lock()
	defer m.Unlock()
	return m.checkCapacity(txSize)
}

func (m *Mempool) checkCapacity(txSize int) error {
	if m.size+txSize > int(m.config.MempoolCapacity) {
		return &MempoolFullError{
			CurrentSize: m.size,
			TxSize:      txSize,
			Capacity:    m.config.MempoolCapacity,
		}
	}
	return nil
}

func (m *Mempool) AddTransaction(tx MempoolTransaction) error {
	if tx.AddedAt.IsZero() {
		tx.AddedAt = time.Now()
	}
	m.Lock()
	defer m.Unlock()
	if m.getTransaction(tx.Hash) != nil {
		m.logger.Debug(
			"ignoring duplicate transaction",
			"component", "mempool",
			"tx_hash", tx.Hash,
		)
		return nil
	}
	if err := m.checkCapacity(len(tx.Cbor)); err != nil {
		return err
	}
	m.transactions = append(m.transactions, &tx)
	m.size += len(tx.Cbor)
	m.logger.Debug(
		"added transaction",
		"component", "mempool",
		"tx_hash", tx.Hash,
		"method", tx.Method,
	)
	m.metrics.txsProcessedNum.Inc()
	m.metrics.txsInMempool.Inc()
	m.metrics.mempoolBytes.Add(float64(len(tx.Cbor)))
	m.publish(
		AddTransactionEventType,
		AddTransactionEvent{
			Hash:   tx.Hash,
			Method: tx.Method,
			AppID:  tx.AppID,
			Round:  tx.Round,
		},
	)
	return nil
}

func (m *Mempool) GetTransaction(txHash string) (MempoolTransaction, bool) {
	m.Lock()
	defer m.Unlock()
	ret := m.getTransaction(txHash)
	if ret == nil {
		return MempoolTransaction{}, false
	}
	return *ret, true
}

func (m *Mempool) Transactions() []MempoolTransaction {
	m.Lock()
	defer m.Unlock()
	ret := make([]MempoolTransaction, len(m.transactions))
	for i := range m.transactions {
		ret[i] = *m.transactions[i]
	}
	return ret
}

// Len returns the number of pending transactions
func (m *Mempool) Len() int {
	m.Lock()
	defer m.Unlock()
	return len(m.transactions)
}

// Drain removes and returns every pending transaction in arrival order
func (m *Mempool) Drain() []MempoolTransaction {
	m.Lock()
	defer m.Unlock()
	ret := make([]MempoolTransaction, 0, len(m.transactions))
	for len(m.transactions) > 0 {
		ret = append(ret, *m.transactions[0])
		m.removeTransactionByIndex(0)
	}
	return ret
}

func (m *Mempool) getTransaction(txHash string) *MempoolTransaction {
	for _, tx := range m.transactions {
		if tx.Hash == txHash {
			return tx
		}
	}
	return nil
}

func (m *Mempool) RemoveTransaction(txHash string) {
	m.Lock()
	defer m.Unlock()
	if m.removeTransaction(txHash) {
		m.logger.Debug(
			"removed transaction",
			"component", "mempool",
			"tx_hash", txHash,
		)
	}
}

func (m *Mempool) removeTransaction(txHash string) bool {
	for txIdx, tx := range m.transactions {
		if tx.Hash == txHash {
			return m.removeTransactionByIndex(txIdx)
		}
	}
	return false
}

func (m *Mempool) removeTransactionByIndex(txIdx int) bool {
	if txIdx >= len(m.transactions) {
		return false
	}
	tx := m.transactions[txIdx]
	m.transactions = slices.Delete(
		m.transactions,
		txIdx,
		txIdx+1,
	)
	m.size -= len(tx.Cbor)
	m.metrics.txsInMempool.Dec()
	m.metrics.mempoolBytes.Sub(float64(len(tx.Cbor)))
	m.publish(
		RemoveTransactionEventType,
		RemoveTransactionEvent{Hash: tx.Hash},
	)
	return true
}

func (m *Mempool) publish(evtType event.EventType, data any) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(evtType, event.NewEvent(evtType, data))
}
