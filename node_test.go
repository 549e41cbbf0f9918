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

package campusd_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algocampus/campusd"
	"github.com/algocampus/campusd/certmeta"
	"github.com/algocampus/campusd/database/models"
	"github.com/algocampus/campusd/internal/test/testutil"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/onchain"
	"github.com/algocampus/campusd/orchestrator"
	"github.com/algocampus/campusd/policy"
)

var operator = ledger.DevAccount("operator")

func startNode(t *testing.T, opts ...campusd.ConfigOptionFunc) *campusd.Node {
	t.Helper()
	base := []campusd.ConfigOptionFunc{
		campusd.WithOperator(operator),
		campusd.WithCertMetadata(certmeta.Config{
			Backend: certmeta.BackendLocal,
			Dir:     t.TempDir(),
			BaseURL: "http://campus.test",
		}),
		campusd.WithTracker(campusd.TrackerConfig{Interval: 5 * time.Millisecond}),
	}
	n, err := campusd.New(campusd.NewConfig(append(base, opts...)...))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, n.Stop())
	})
	require.NoError(t, n.Start(context.Background()))
	return n
}

func TestDevNodeExecutesAndConfirms(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), "apps.json")
	n := startNode(
		t,
		campusd.WithRunMode("dev"),
		campusd.WithManifestPath(manifestPath),
		campusd.WithBlockProducer(true),
		campusd.WithRoundInterval(10*time.Millisecond),
	)
	manifest, err := onchain.LoadManifest(manifestPath)
	require.NoError(t, err)
	assert.Len(t, manifest, 3)
	bal, err := n.Ledger().Balance(operator)
	require.NoError(t, err)
	assert.Positive(t, bal)

	plan, err := n.Orchestrator().CreatePlan(context.Background(), orchestrator.PlanRequest{
		ActionType:  policy.ActionFacultyPoll,
		AutoExecute: true,
		Context: map[string]any{
			"payload": map[string]any{
				"question":    "Exam review day?",
				"options":     []any{"Thu", "Fri"},
				"start_round": 1000,
				"end_round":   2000,
			},
		},
	}, "faculty@campus")
	require.NoError(t, err)
	assert.Equal(t, policy.ModeAuto, plan.ExecutionMode)
	assert.Equal(t, "auto execution status: executed", plan.Message)

	execs, err := n.Orchestrator().ListExecutions(plan.IntentID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	txID := execs[0].TxId
	require.NotEmpty(t, txID)

	testutil.WaitForCondition(t, func() bool {
		row, err := n.Tracker().Status(txID)
		return err == nil && row.Status == models.TxStatusConfirmed
	}, 5*time.Second, "action transaction was not confirmed")
}

func TestServeNodeWithoutManifest(t *testing.T) {
	n := startNode(t, campusd.WithManifestPath(filepath.Join(t.TempDir(), "apps.json")))
	assert.Empty(t, n.Chain().Manifest())
	plan, err := n.Orchestrator().CreatePlan(context.Background(), orchestrator.PlanRequest{
		ActionType:  policy.ActionFacultyPoll,
		AutoExecute: true,
		Context: map[string]any{
			"payload": map[string]any{
				"question":    "Exam review day?",
				"options":     []any{"Thu", "Fri"},
				"start_round": 10,
				"end_round":   20,
			},
		},
	}, "faculty@campus")
	require.NoError(t, err)
	assert.Equal(t, "auto execution status: failed", plan.Message)
	execs, err := n.Orchestrator().ListExecutions(plan.IntentID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Contains(t, execs[0].Message, onchain.ErrAppMissing.Error())
}

func TestDeployOverwritesManifest(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), "apps.json")
	require.NoError(t, onchain.Manifest{"VotingContract": 99}.Save(manifestPath))
	n := startNode(
		t,
		campusd.WithManifestPath(manifestPath),
		campusd.WithDeployContracts(true),
	)
	manifest, err := onchain.LoadManifest(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, n.Chain().Manifest(), manifest)
	assert.Len(t, manifest, 3)
}

func TestSealRoundRequiresStart(t *testing.T) {
	n, err := campusd.New(campusd.NewConfig(campusd.WithOperator(operator)))
	require.NoError(t, err)
	_, err = n.SealRound()
	require.ErrorIs(t, err, campusd.ErrNotStarted)
	require.NoError(t, n.Stop())
}
