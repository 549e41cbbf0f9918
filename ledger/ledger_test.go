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

package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algocampus/campusd/database"
	"github.com/algocampus/campusd/event"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/mempool"
)

const counterKind = "test-counter"

var counterBox = []byte("count")

// counterApp exercises the runtime: box writes, reverts after writes,
// grouped payments and inner asset creation
type counterApp struct{}

func (counterApp) Create(ctx *ledger.CallContext) error {
	return ctx.Boxes.PutUint64(counterBox, 0)
}

func (counterApp) Invoke(ctx *ledger.CallContext, method string, args ledger.Args) (any, error) {
	switch method {
	case "incr":
		cur, _, err := ctx.Boxes.GetUint64(counterBox)
		if err != nil {
			return nil, err
		}
		if err := ctx.Boxes.PutUint64(counterBox, cur+1); err != nil {
			return nil, err
		}
		return cur + 1, nil
	case "incr_then_fail":
		if err := ctx.Boxes.PutUint64(counterBox, 999); err != nil {
			return nil, err
		}
		return nil, ledger.Revert("boom")
	case "get":
		cur, _, err := ctx.Boxes.GetUint64(counterBox)
		return cur, err
	case "round":
		return ctx.Round, nil
	case "tag":
		name, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return nil, ctx.Boxes.Put(ledger.BoxName("t:"+name), []byte(name))
	case "tags":
		var names []string
		err := ctx.Boxes.Iterate([]byte("t:"), func(_ []byte, value []byte) error {
			names = append(names, string(value))
			return nil
		})
		return names, err
	case "sender_is_creator":
		return ctx.Sender == ctx.Creator, nil
	case "deposit":
		min, err := args.Uint64(0)
		if err != nil {
			return nil, err
		}
		for _, pay := range ctx.Group {
			if pay.Receiver == ctx.AppAddress && pay.Amount >= min {
				return true, nil
			}
		}
		return nil, ledger.Revert("no deposit")
	case "mint":
		return ctx.CreateAsset(ledger.AssetParams{
			Total:     1,
			UnitName:  "TEST",
			AssetName: "Test",
			Manager:   ctx.AppAddress,
		})
	}
	return nil, ledger.Revertf("unknown method %s", method)
}

func init() {
	ledger.RegisterApplication(counterKind, func() ledger.Application {
		return counterApp{}
	})
}

type testLedger struct {
	*ledger.Ledger
	db      *database.Database
	mempool *mempool.Mempool
	bus     *event.EventBus
	reg     *prometheus.Registry
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	db, err := database.New(database.Config{})
	require.NoError(t, err)
	bus := event.NewEventBus(nil, nil)
	reg := prometheus.NewRegistry()
	mp := mempool.NewMempool(mempool.MempoolConfig{EventBus: bus})
	l, err := ledger.New(ledger.Config{
		DB:           db,
		Mempool:      mp,
		EventBus:     bus,
		PromRegistry: reg,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.Close()
		bus.Stop()
		_ = db.Close()
	})
	return &testLedger{Ledger: l, db: db, mempool: mp, bus: bus, reg: reg}
}

func deployCounter(t *testing.T, l *testLedger, creator ledger.Address) uint64 {
	t.Helper()
	res, err := l.Deploy(context.Background(), creator, counterKind)
	require.NoError(t, err)
	appID, ok := res.Return.(uint64)
	require.True(t, ok)
	return appID
}

func TestGenesisRound(t *testing.T) {
	l := newTestLedger(t)
	assert.Equal(t, ledger.DefaultGenesisRound, l.Round())
}

func TestDeployAndCall(t *testing.T) {
	l := newTestLedger(t)
	creator := ledger.DevAccount("creator")
	appID := deployCounter(t, l, creator)
	info, err := l.LookupApp(appID)
	require.NoError(t, err)
	assert.Equal(t, counterKind, info.Kind)
	assert.Equal(t, creator, info.Creator)
	assert.Equal(t, ledger.AppAddress(appID), info.Address)

	res, err := l.Call(context.Background(), ledger.CallRequest{
		AppID:  appID,
		Sender: ledger.DevAccount("someone"),
		Method: "incr",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Return)
	assert.NotEmpty(t, res.TxID)
	assert.Equal(t, l.Round(), res.Round)
	assert.Equal(t, 1.0, metricSum(t, l.reg, "campusd_ledger_calls_total"))
	assert.Equal(t, 1.0, metricSum(t, l.reg, "campusd_ledger_apps_deployed_total"))
}

func metricSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestRevertDiscardsWrites(t *testing.T) {
	l := newTestLedger(t)
	appID := deployCounter(t, l, ledger.DevAccount("creator"))
	_, err := l.Call(context.Background(), ledger.CallRequest{AppID: appID, Method: "incr"})
	require.NoError(t, err)
	pendingBefore := l.mempool.Len()

	_, err = l.Call(context.Background(), ledger.CallRequest{AppID: appID, Method: "incr_then_fail"})
	require.Error(t, err)
	var revertErr *ledger.RevertError
	require.True(t, errors.As(err, &revertErr))
	assert.Equal(t, "boom", revertErr.Reason)
	assert.Equal(t, appID, revertErr.AppID)
	assert.Equal(t, "incr_then_fail", revertErr.Method)
	assert.True(t, ledger.IsRevert(err, "boom"))

	val, err := l.ReadOnly(context.Background(), ledger.CallRequest{AppID: appID, Method: "get"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), val)
	assert.Equal(t, pendingBefore, l.mempool.Len(), "a reverted call produces no transaction")
}

func TestReadOnlyCannotWrite(t *testing.T) {
	l := newTestLedger(t)
	appID := deployCounter(t, l, ledger.DevAccount("creator"))
	_, err := l.ReadOnly(context.Background(), ledger.CallRequest{AppID: appID, Method: "incr"})
	require.Error(t, err)
	_, ok := ledger.RevertReason(err)
	assert.True(t, ok)
	val, err := l.ReadOnly(context.Background(), ledger.CallRequest{AppID: appID, Method: "get"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), val)
}

func TestUnknownApp(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Call(context.Background(), ledger.CallRequest{AppID: 42, Method: "incr"})
	require.ErrorIs(t, err, ledger.ErrAppNotFound)
	_, err = l.Deploy(context.Background(), ledger.DevAccount("x"), "nope")
	require.ErrorIs(t, err, ledger.ErrUnknownAppKind)
}

func TestSealRoundConfirmsPending(t *testing.T) {
	l := newTestLedger(t)
	_, roundCh := l.bus.Subscribe(ledger.RoundSealedEventType)
	appID := deployCounter(t, l, ledger.DevAccount("creator"))
	res, err := l.Call(context.Background(), ledger.CallRequest{AppID: appID, Method: "incr"})
	require.NoError(t, err)

	info, err := l.LookupTx(res.TxID)
	require.NoError(t, err)
	assert.False(t, info.Confirmed)
	assert.Equal(t, "incr", info.Method)

	sealed, err := l.SealRound()
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultGenesisRound, sealed)
	assert.Equal(t, sealed+1, l.Round())
	assert.Equal(t, 0, l.mempool.Len())

	info, err = l.LookupTx(res.TxID)
	require.NoError(t, err)
	assert.True(t, info.Confirmed)
	assert.Equal(t, sealed, info.ConfirmedRound)

	select {
	case evt := <-roundCh:
		data, ok := evt.Data.(ledger.RoundSealedEvent)
		require.True(t, ok)
		assert.Equal(t, sealed, data.Round)
		assert.Contains(t, data.TxIDs, res.TxID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for round sealed event")
	}

	_, err = l.LookupTx("MISSING")
	require.ErrorIs(t, err, ledger.ErrTxNotFound)
}

func TestAdvanceTo(t *testing.T) {
	l := newTestLedger(t)
	appID := deployCounter(t, l, ledger.DevAccount("creator"))
	require.NoError(t, l.AdvanceTo(50))
	assert.Equal(t, uint64(50), l.Round())
	val, err := l.ReadOnly(context.Background(), ledger.CallRequest{AppID: appID, Method: "round"})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), val)
	require.NoError(t, l.AdvanceTo(50))
	require.ErrorIs(t, l.AdvanceTo(10), ledger.ErrRoundNotAhead)
}

func TestIdenticalCallsGetDistinctTxIDs(t *testing.T) {
	l := newTestLedger(t)
	appID := deployCounter(t, l, ledger.DevAccount("creator"))
	req := ledger.CallRequest{AppID: appID, Method: "get"}
	a, err := l.Call(context.Background(), req)
	require.NoError(t, err)
	b, err := l.Call(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, a.TxID, b.TxID)
}

func TestCreatorIsImmutable(t *testing.T) {
	l := newTestLedger(t)
	creator := ledger.DevAccount("creator")
	appID := deployCounter(t, l, creator)
	val, err := l.ReadOnly(context.Background(), ledger.CallRequest{
		AppID:  appID,
		Sender: creator,
		Method: "sender_is_creator",
	})
	require.NoError(t, err)
	assert.Equal(t, true, val)
}

func TestGroupedPayment(t *testing.T) {
	l := newTestLedger(t)
	payer := ledger.DevAccount("payer")
	appID := deployCounter(t, l, ledger.DevAccount("creator"))
	appAddr := ledger.AppAddress(appID)
	require.NoError(t, l.Fund(payer, 5000))

	_, err := l.Call(context.Background(), ledger.CallRequest{
		AppID:    appID,
		Sender:   payer,
		Method:   "deposit",
		Args:     ledger.Args{uint64(1000)},
		Payments: []ledger.Payment{{Receiver: appAddr, Amount: 1500}},
	})
	require.NoError(t, err)
	bal, err := l.Balance(payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(3500), bal)
	appBal, err := l.Balance(appAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), appBal)

	// A rejected call also rolls back its grouped payment
	_, err = l.Call(context.Background(), ledger.CallRequest{
		AppID:    appID,
		Sender:   payer,
		Method:   "deposit",
		Args:     ledger.Args{uint64(1000)},
		Payments: []ledger.Payment{{Receiver: appAddr, Amount: 10}},
	})
	require.True(t, ledger.IsRevert(err, "no deposit"))
	bal, err = l.Balance(payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(3500), bal)

	_, err = l.Call(context.Background(), ledger.CallRequest{
		AppID:    appID,
		Sender:   payer,
		Method:   "deposit",
		Args:     ledger.Args{uint64(1000)},
		Payments: []ledger.Payment{{Receiver: appAddr, Amount: 100000}},
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestInnerAssetCreation(t *testing.T) {
	l := newTestLedger(t)
	appID := deployCounter(t, l, ledger.DevAccount("creator"))
	res, err := l.Call(context.Background(), ledger.CallRequest{AppID: appID, Method: "mint"})
	require.NoError(t, err)
	assetID, ok := res.Return.(uint64)
	require.True(t, ok)
	params, err := l.GetAsset(assetID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), params.Total)
	assert.Equal(t, "TEST", params.UnitName)
	assert.Equal(t, ledger.AppAddress(appID), params.Creator)
	_, err = l.GetAsset(assetID + 100)
	require.ErrorIs(t, err, ledger.ErrAssetNotFound)
}

func TestMempoolFullRejectsCall(t *testing.T) {
	db, err := database.New(database.Config{})
	require.NoError(t, err)
	defer db.Close()
	mp := mempool.NewMempool(mempool.MempoolConfig{MempoolCapacity: 1})
	l, err := ledger.New(ledger.Config{DB: db, Mempool: mp})
	require.NoError(t, err)
	_, err = l.Deploy(context.Background(), ledger.DevAccount("creator"), counterKind)
	var fullErr *mempool.MempoolFullError
	require.True(t, errors.As(err, &fullErr))
	_, err = l.LookupApp(1001)
	require.ErrorIs(t, err, ledger.ErrAppNotFound)
}

func TestCancelledContext(t *testing.T) {
	l := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Call(ctx, ledger.CallRequest{AppID: 1001, Method: "incr"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	l, err := ledger.New(ledger.Config{DB: db})
	require.NoError(t, err)
	res, err := l.Deploy(context.Background(), ledger.DevAccount("creator"), counterKind)
	require.NoError(t, err)
	appID := res.Return.(uint64)
	_, err = l.Call(context.Background(), ledger.CallRequest{AppID: appID, Method: "incr"})
	require.NoError(t, err)
	_, err = l.SealRound()
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, db.Close())

	db, err = database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	defer db.Close()
	l, err = ledger.New(ledger.Config{DB: db})
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultGenesisRound+1, l.Round())
	val, err := l.ReadOnly(context.Background(), ledger.CallRequest{AppID: appID, Method: "get"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), val)
}

func TestBoxIterate(t *testing.T) {
	l := newTestLedger(t)
	appID := deployCounter(t, l, ledger.DevAccount("creator"))
	other := deployCounter(t, l, ledger.DevAccount("creator"))
	for _, name := range []string{"b", "a", "c"} {
		_, err := l.Call(context.Background(), ledger.CallRequest{
			AppID:  appID,
			Method: "tag",
			Args:   ledger.Args{name},
		})
		require.NoError(t, err)
	}
	names, err := l.ReadOnly(context.Background(), ledger.CallRequest{AppID: appID, Method: "tags"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)
	names, err = l.ReadOnly(context.Background(), ledger.CallRequest{AppID: other, Method: "tags"})
	require.NoError(t, err)
	assert.Empty(t, names)
}
