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

package txtrack_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/algocampus/campusd/contract/attendance"
	"github.com/algocampus/campusd/database"
	"github.com/algocampus/campusd/database/models"
	"github.com/algocampus/campusd/internal/test/testutil"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/txtrack"
)

type lookupFunc func(txID string) (ledger.TxInfo, error)

func (f lookupFunc) LookupTx(txID string) (ledger.TxInfo, error) {
	return f(txID)
}

var neverConfirmed = lookupFunc(func(txID string) (ledger.TxInfo, error) {
	return ledger.TxInfo{}, fmt.Errorf("%w: %s", ledger.ErrTxNotFound, txID)
})

func startTracker(t *testing.T, cfg txtrack.Config) *txtrack.Tracker {
	t.Helper()
	tr, err := txtrack.New(cfg)
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background()))
	return tr
}

func waitForStatus(t *testing.T, tr *txtrack.Tracker, txID string, status string) models.TrackedTx {
	t.Helper()
	var row models.TrackedTx
	testutil.WaitForCondition(t, func() bool {
		var err error
		row, err = tr.Status(txID)
		return err == nil && row.Status == status
	}, 2*time.Second, "waiting for "+txID+" to become "+status)
	return row
}

func TestTrackConfirmsCheckIn(t *testing.T) {
	h := testutil.NewHarness(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	res, err := h.Ledger.Deploy(ctx, ledger.DevAccount("creator"), attendance.Kind)
	require.NoError(t, err)

	_, confirmedCh := h.EventBus.Subscribe(txtrack.TxConfirmedEventType)
	tr := startTracker(t, txtrack.Config{
		DB:       h.DB,
		Lookup:   h.Ledger,
		EventBus: h.EventBus,
		Interval: 5 * time.Millisecond,
	})
	sessionID := uint64(1)
	student := ledger.DevAccount("student").String()
	require.NoError(t, tr.Track(ctx, res.TxID, models.TxKindCheckIn, txtrack.Attrs{
		SessionID:      &sessionID,
		CourseCode:     "CS101",
		StudentAddress: student,
	}))
	row, err := tr.Status(res.TxID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, row.Status)

	sealed, err := h.Ledger.SealRound()
	require.NoError(t, err)

	row = waitForStatus(t, tr, res.TxID, models.TxStatusConfirmed)
	require.NotNil(t, row.ConfirmedRound)
	assert.Equal(t, sealed, *row.ConfirmedRound)
	evt := testutil.RequireReceive(t, confirmedCh, time.Second, "confirmed event")
	assert.Equal(t, res.TxID, evt.Data.(txtrack.TxConfirmedEvent).TxID)

	records, err := h.DB.ListAttendanceRecords(sessionID, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, student, records[0].StudentAddress)
	activity, err := h.DB.ListActivity(models.ActivityTxConfirmed, 0, nil)
	require.NoError(t, err)
	assert.Len(t, activity, 1)

	require.NoError(t, tr.Stop())
}

func TestTrackDeadLettersAfterMaxAttempts(t *testing.T) {
	db := testutil.NewDatabase(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := startTracker(t, txtrack.Config{
		DB:          db,
		Lookup:      neverConfirmed,
		MaxAttempts: 3,
		Interval:    time.Millisecond,
	})
	require.NoError(t, tr.Track(context.Background(), "TXLOST", models.TxKindVote, txtrack.Attrs{}))
	row := waitForStatus(t, tr, "TXLOST", models.TxStatusFailed)
	assert.Equal(t, uint(3), row.Attempts)
	assert.Nil(t, row.ConfirmedRound)

	letters, err := db.ListDeadLetters(0, nil)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "TXLOST", letters[0].TxId)
	assert.Equal(t, "not confirmed after 3 attempts", letters[0].Reason)
	require.NoError(t, tr.Stop())
}

func TestFullQueueDeadLettersImmediately(t *testing.T) {
	db := testutil.NewDatabase(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	busy := make(chan struct{})
	var once sync.Once
	blocking := lookupFunc(func(txID string) (ledger.TxInfo, error) {
		once.Do(func() { close(busy) })
		<-release
		return ledger.TxInfo{TxID: txID, Confirmed: true, ConfirmedRound: 7}, nil
	})
	tr := startTracker(t, txtrack.Config{
		DB:        db,
		Lookup:    blocking,
		Workers:   1,
		QueueSize: 1,
		Interval:  time.Millisecond,
	})
	ctx := context.Background()
	require.NoError(t, tr.Track(ctx, "TX1", models.TxKindOther, txtrack.Attrs{}))
	testutil.RequireReceive(t, busy, time.Second, "worker picked up TX1")
	require.NoError(t, tr.Track(ctx, "TX2", models.TxKindOther, txtrack.Attrs{}))
	require.NoError(t, tr.Track(ctx, "TX3", models.TxKindOther, txtrack.Attrs{}))

	row, err := tr.Status("TX3")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusFailed, row.Status)
	letters, err := db.ListDeadLetters(0, nil)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "tracking queue full", letters[0].Reason)

	close(release)
	waitForStatus(t, tr, "TX1", models.TxStatusConfirmed)
	waitForStatus(t, tr, "TX2", models.TxStatusConfirmed)
	require.NoError(t, tr.Stop())
}

func TestStartResumesPendingTransactions(t *testing.T) {
	db := testutil.NewDatabase(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		return db.UpsertTrackedTx(&models.TrackedTx{
			TxId:   "TXOLD",
			Kind:   models.TxKindAction,
			Status: models.TxStatusPending,
		}, txn)
	})
	require.NoError(t, err)
	confirmed := lookupFunc(func(txID string) (ledger.TxInfo, error) {
		return ledger.TxInfo{TxID: txID, Confirmed: true, ConfirmedRound: 12}, nil
	})
	tr := startTracker(t, txtrack.Config{DB: db, Lookup: confirmed, Interval: time.Millisecond})
	row := waitForStatus(t, tr, "TXOLD", models.TxStatusConfirmed)
	assert.Equal(t, uint64(12), *row.ConfirmedRound)
	require.NoError(t, tr.Stop())
}

func TestStopLeavesTransactionsPending(t *testing.T) {
	db := testutil.NewDatabase(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := startTracker(t, txtrack.Config{DB: db, Lookup: neverConfirmed, Interval: time.Hour})
	ctx := context.Background()
	require.NoError(t, tr.Track(ctx, "TXWAIT", models.TxKindOther, txtrack.Attrs{}))
	require.NoError(t, tr.Stop())

	row, err := tr.Status("TXWAIT")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, row.Status)
	require.ErrorIs(t, tr.Track(ctx, "TXLATE", models.TxKindOther, txtrack.Attrs{}), txtrack.ErrStopped)
	require.ErrorIs(t, tr.Start(ctx), txtrack.ErrStopped)
}

func TestTrackRequiresStart(t *testing.T) {
	db := testutil.NewDatabase(t)
	tr, err := txtrack.New(txtrack.Config{DB: db, Lookup: neverConfirmed})
	require.NoError(t, err)
	err = tr.Track(context.Background(), "TX", models.TxKindOther, txtrack.Attrs{})
	require.ErrorIs(t, err, txtrack.ErrNotStarted)
	_, err = txtrack.New(txtrack.Config{DB: db})
	require.Error(t, err)
}
