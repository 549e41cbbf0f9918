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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/algocampus/campusd/event"
)

func newTestMempool(t *testing.T, capacity int64) (*Mempool, *event.EventBus) {
	t.Helper()
	eb := event.NewEventBus(nil, nil)
	t.Cleanup(eb.Stop)
	m := NewMempool(MempoolConfig{
		PromRegistry:    prometheus.NewRegistry(),
		EventBus:        eb,
		MempoolCapacity: capacity,
	})
	return m, eb
}

func testTx(n int, size int) MempoolTransaction {
	return MempoolTransaction{
		Hash:   fmt.Sprintf("TX%03d", n),
		Method: "create_poll",
		Cbor:   make([]byte, size),
		AppID:  1001,
		Round:  1,
	}
}

func TestMempool_AddAndGet(t *testing.T) {
	m, _ := newTestMempool(t, 1024)
	require.NoError(t, m.AddTransaction(testTx(1, 10)))
	tx, ok := m.GetTransaction("TX001")
	require.True(t, ok)
	assert.Equal(t, "create_poll", tx.Method)
	assert.False(t, tx.AddedAt.IsZero())
	_, ok = m.GetTransaction("TX999")
	assert.False(t, ok)
}

func TestMempool_DuplicateIgnored(t *testing.T) {
	m, _ := newTestMempool(t, 1024)
	require.NoError(t, m.AddTransaction(testTx(1, 10)))
	require.NoError(t, m.AddTransaction(testTx(1, 10)))
	assert.Equal(t, 1, m.Len())
}

func TestMempool_MempoolFull(t *testing.T) {
	m, _ := newTestMempool(t, 25)
	require.NoError(t, m.AddTransaction(testTx(1, 10)))
	require.NoError(t, m.AddTransaction(testTx(2, 10)))
	err := m.AddTransaction(testTx(3, 10))
	var fullErr *MempoolFullError
	require.True(t, errors.As(err, &fullErr))
	assert.Equal(t, 20, fullErr.CurrentSize)
	assert.Equal(t, 10, fullErr.TxSize)
	assert.Equal(t, int64(25), fullErr.Capacity)
	require.Error(t, m.CheckCapacity(10))
	require.NoError(t, m.CheckCapacity(5))
}

func TestMempool_DrainPreservesOrder(t *testing.T) {
	m, _ := newTestMempool(t, 1024)
	for i := range 5 {
		require.NoError(t, m.AddTransaction(testTx(i, 4)))
	}
	drained := m.Drain()
	require.Len(t, drained, 5)
	for i, tx := range drained {
		assert.Equal(t, fmt.Sprintf("TX%03d", i), tx.Hash)
	}
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.metrics.txsInMempool))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.metrics.mempoolBytes))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.metrics.txsProcessedNum))
	// Capacity is released after draining
	require.NoError(t, m.CheckCapacity(1024))
}

func TestMempool_RemoveTransaction(t *testing.T) {
	m, _ := newTestMempool(t, 1024)
	require.NoError(t, m.AddTransaction(testTx(1, 10)))
	require.NoError(t, m.AddTransaction(testTx(2, 10)))
	m.RemoveTransaction("TX001")
	m.RemoveTransaction("TX404")
	txs := m.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "TX002", txs[0].Hash)
}

func TestMempool_Transactions_ReturnsCopies(t *testing.T) {
	m, _ := newTestMempool(t, 1024)
	require.NoError(t, m.AddTransaction(testTx(1, 10)))
	txs := m.Transactions()
	txs[0].Hash = "changed"
	_, ok := m.GetTransaction("TX001")
	assert.True(t, ok)
}

func TestMempool_Events(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	m := NewMempool(MempoolConfig{EventBus: eb})
	_, addCh := eb.Subscribe(AddTransactionEventType)
	_, removeCh := eb.Subscribe(RemoveTransactionEventType)
	require.NoError(t, m.AddTransaction(testTx(7, 1)))
	select {
	case evt := <-addCh:
		data, ok := evt.Data.(AddTransactionEvent)
		require.True(t, ok)
		assert.Equal(t, "TX007", data.Hash)
		assert.Equal(t, uint64(1001), data.AppID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for add event")
	}
	m.Drain()
	select {
	case evt := <-removeCh:
		data, ok := evt.Data.(RemoveTransactionEvent)
		require.True(t, ok)
		assert.Equal(t, "TX007", data.Hash)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for remove event")
	}
}

func TestMempool_ConcurrentAddDrain(t *testing.T) {
	m, _ := newTestMempool(t, 1<<20)
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 50 {
				_ = m.AddTransaction(testTx(w*100+i, 8))
			}
		}(w)
	}
	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			total += len(m.Drain())
			assert.Equal(t, 200, total)
			return
		default:
			total += len(m.Drain())
		}
	}
}
