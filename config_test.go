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

package campusd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algocampus/campusd/ledger"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NotNil(t, cfg.logger)
	assert.Equal(t, runModeServe, cfg.runMode)
	assert.Equal(t, defaultRoundInterval, cfg.roundInterval)
	assert.True(t, cfg.autoExecuteLowRisk)
	assert.False(t, cfg.isDevMode())
}

func TestConfigOptions(t *testing.T) {
	op := ledger.DevAccount("operator")
	cfg := NewConfig(
		WithRunMode(runModeDev),
		WithOperator(op),
		WithRoundInterval(time.Second),
		WithReconcileInterval(0),
		WithAutoExecuteLowRisk(false),
		WithIntentExpiryRounds(45),
		WithTracker(TrackerConfig{Workers: 2, MaxAttempts: 5}),
	)
	assert.True(t, cfg.isDevMode())
	assert.Equal(t, op, cfg.operator)
	assert.Equal(t, time.Second, cfg.roundInterval)
	assert.Zero(t, cfg.reconcileInterval)
	assert.False(t, cfg.autoExecuteLowRisk)
	assert.Equal(t, uint64(45), cfg.intentExpiryRounds)
	assert.Equal(t, 2, cfg.tracker.Workers)
}

func TestConfigValidate(t *testing.T) {
	_, err := New(NewConfig())
	require.ErrorContains(t, err, "no operator account")

	_, err = New(NewConfig(
		WithOperator(ledger.DevAccount("operator")),
		WithRunMode("load"),
	))
	require.ErrorContains(t, err, "invalid run mode")

	_, err = New(NewConfig(
		WithOperator(ledger.DevAccount("operator")),
		WithBlockProducer(true),
		WithRoundInterval(0),
	))
	require.ErrorContains(t, err, "invalid round interval")
}
