// Copyright 2026 Blink Labs Software
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

// Package testutil holds the in-memory stores and ledger harness shared by
// package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algocampus/campusd/database"
	"github.com/algocampus/campusd/event"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/mempool"
)

// NewDatabase opens an in-memory database that is closed with the test
func NewDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// Harness bundles the stores and ledger used by most package tests
type Harness struct {
	DB       *database.Database
	EventBus *event.EventBus
	Mempool  *mempool.Mempool
	Ledger   *ledger.Ledger
}

// NewHarness builds an in-memory ledger on a fresh database
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	db := NewDatabase(t)
	bus := event.NewEventBus(nil, nil)
	mp := mempool.NewMempool(mempool.MempoolConfig{EventBus: bus})
	l, err := ledger.New(ledger.Config{
		DB:       db,
		Mempool:  mp,
		EventBus: bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.Close()
		bus.Stop()
	})
	return &Harness{DB: db, EventBus: bus, Mempool: mp, Ledger: l}
}

// WaitForCondition fails the test unless condition holds within timeout
func WaitForCondition(
	t *testing.T,
	condition func() bool,
	timeout time.Duration,
	msg string,
) {
	t.Helper()
	require.Eventually(t, condition, timeout, 5*time.Millisecond, msg)
}

// RequireReceive returns the next value from ch, failing the test after
// timeout
func RequireReceive[T any](
	t *testing.T,
	ch <-chan T,
	timeout time.Duration,
	msg string,
) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v
	case <-timer.C:
		require.FailNow(t, "nothing received", msg)
	}
	var zero T
	return zero
}
