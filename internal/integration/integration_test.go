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

package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algocampus/campusd"
	"github.com/algocampus/campusd/canonical"
	"github.com/algocampus/campusd/certmeta"
	"github.com/algocampus/campusd/contract/attendance"
	"github.com/algocampus/campusd/contract/certificate"
	"github.com/algocampus/campusd/database/models"
	"github.com/algocampus/campusd/internal/test/testutil"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/orchestrator"
	"github.com/algocampus/campusd/policy"
	"github.com/algocampus/campusd/txtrack"
)

var (
	operator = ledger.DevAccount("operator")
	student  = ledger.DevAccount("student")
)

// openNode starts a dev node on dataDir. An empty dataDir keeps everything
// in memory.
func openNode(t *testing.T, dataDir string, opts ...campusd.ConfigOptionFunc) *campusd.Node {
	t.Helper()
	base := []campusd.ConfigOptionFunc{
		campusd.WithRunMode("dev"),
		campusd.WithOperator(operator),
		campusd.WithDatabasePath(dataDir),
		campusd.WithTracker(campusd.TrackerConfig{Interval: 5 * time.Millisecond}),
	}
	if dataDir != "" {
		base = append(
			base,
			campusd.WithManifestPath(filepath.Join(dataDir, "apps.json")),
			campusd.WithCertMetadata(certmeta.Config{
				Backend: certmeta.BackendLocal,
				Dir:     filepath.Join(dataDir, "public"),
				BaseURL: "http://campus.test",
			}),
		)
	}
	n, err := campusd.New(campusd.NewConfig(append(base, opts...)...))
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	return n
}

func createSession(t *testing.T, n *campusd.Node) uint64 {
	t.Helper()
	round := n.Ledger().Round()
	res, err := n.Chain().Call(
		context.Background(),
		attendance.Name,
		attendance.MethodCreateSession,
		"CS101",
		uint64(1700000000),
		round,
		round+1000,
	)
	require.NoError(t, err)
	sessionID, ok := res.Return.(uint64)
	require.True(t, ok)
	return sessionID
}

func checkIn(t *testing.T, n *campusd.Node, sessionID uint64) string {
	t.Helper()
	ctx := context.Background()
	res, err := n.Chain().CallAs(ctx, student, attendance.Name, attendance.MethodCheckIn, sessionID)
	require.NoError(t, err)
	require.NoError(t, n.Tracker().Track(ctx, res.TxID, models.TxKindCheckIn, txtrack.Attrs{
		SessionID:      &sessionID,
		CourseCode:     "CS101",
		StudentAddress: student.String(),
	}))
	return res.TxID
}

func waitForAttendance(t *testing.T, n *campusd.Node, sessionID uint64) {
	t.Helper()
	testutil.WaitForCondition(t, func() bool {
		records, err := n.Database().ListAttendanceRecords(sessionID, nil)
		return err == nil && len(records) == 1
	}, 5*time.Second, "check-in was not recorded")
}

func TestCheckInConfirmedByBlockProducer(t *testing.T) {
	n := openNode(
		t,
		"",
		campusd.WithBlockProducer(true),
		campusd.WithRoundInterval(10*time.Millisecond),
	)
	t.Cleanup(func() {
		require.NoError(t, n.Stop())
	})
	sessionID := createSession(t, n)
	txID := checkIn(t, n, sessionID)
	waitForAttendance(t, n, sessionID)
	row, err := n.Tracker().Status(txID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusConfirmed, row.Status)
	require.NotNil(t, row.ConfirmedRound)
	assert.Positive(t, *row.ConfirmedRound)
}

func TestPendingTransactionsSurviveRestart(t *testing.T) {
	dataDir := t.TempDir()
	first := openNode(t, dataDir)
	sessionID := createSession(t, first)
	txID := checkIn(t, first, sessionID)
	row, err := first.Tracker().Status(txID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, row.Status)
	// Stopping seals the executed transactions into a final round
	require.NoError(t, first.Stop())

	second := openNode(t, dataDir, campusd.WithBlockProducer(true))
	t.Cleanup(func() {
		require.NoError(t, second.Stop())
	})
	waitForAttendance(t, second, sessionID)
	info, err := second.Ledger().LookupTx(txID)
	require.NoError(t, err)
	assert.True(t, info.Confirmed)
}

func TestApprovalAfterRestart(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	first := openNode(t, dataDir)
	plan, err := first.Orchestrator().CreatePlan(ctx, orchestrator.PlanRequest{
		ActionType:  policy.ActionFacultyCert,
		Prompt:      "Issue the completion certificate",
		AutoExecute: true,
		Context: map[string]any{
			"payload": map[string]any{
				"recipient":      student.String(),
				"recipient_name": "Ada",
				"course_code":    "CS101",
				"title":          "Intro to Computing",
			},
		},
	}, "faculty@campus")
	require.NoError(t, err)
	assert.Equal(t, policy.ModeApprovalRequired, plan.ExecutionMode)
	require.NoError(t, first.Stop())

	second := openNode(t, dataDir)
	t.Cleanup(func() {
		require.NoError(t, second.Stop())
	})
	intent, err := second.Orchestrator().GetIntent(plan.IntentID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusPlanned, intent.Status)

	res, err := second.Orchestrator().Approve(ctx, plan.IntentID, operator, "registrar")
	require.NoError(t, err)
	require.Equal(t, models.IntentStatusExecuted, res.Status, res.Message)

	digest, err := canonical.ParseDigest(plan.IntentHash)
	require.NoError(t, err)
	state, ok, err := second.Chain().GetIntent(ctx, certificate.Name, digest.Bytes())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, state.Consumed)

	count, err := second.Sweeper().Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = os.Stat(filepath.Join(dataDir, "public"))
	require.NoError(t, err)
}
