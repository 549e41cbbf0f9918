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

package node

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algocampus/campusd"
	"github.com/algocampus/campusd/contract/attendance"
	"github.com/algocampus/campusd/contract/voting"
	"github.com/algocampus/campusd/database/models"
	"github.com/algocampus/campusd/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestNode(t *testing.T, extra ...campusd.ConfigOptionFunc) *campusd.Node {
	t.Helper()
	n, err := campusd.New(campusd.NewConfig(append([]campusd.ConfigOptionFunc{
		campusd.WithOperator(mustOperator(t, config.DefaultOperator)),
	}, extra...)...))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, n.Stop())
	})
	require.NoError(t, n.Start(context.Background()))
	return n
}

func TestBackfill_RebuildsProjections(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, campusd.WithRunMode("dev"))
	chain := n.Chain()
	for _, question := range []string{"Lunch?", "Dinner?"} {
		_, err := chain.Call(ctx, voting.Name, voting.MethodCreatePoll, question, []string{"a", "b"}, uint64(10), uint64(20))
		require.NoError(t, err)
	}
	_, err := chain.Call(ctx, attendance.Name, attendance.MethodCreateSession, "CS101", uint64(1700000000), uint64(5), uint64(50))
	require.NoError(t, err)

	res, err := NewBackfill(n.Sweeper(), discardLogger()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Polls: 2, Sessions: 1}, res)

	votingID, err := chain.Manifest().AppID(voting.Name)
	require.NoError(t, err)
	poll, err := n.Database().GetPoll(votingID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "Dinner?", poll.Question)
	assert.JSONEq(t, `["a","b"]`, poll.OptionsJson)

	attendanceID, err := chain.Manifest().AppID(attendance.Name)
	require.NoError(t, err)
	session, err := n.Database().GetSession(attendanceID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "CS101", session.CourseCode)
	assert.Equal(t, uint64(50), session.CloseRound)
	_, err = n.Database().GetSession(attendanceID, 2, nil)
	require.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestBackfill_WithoutContracts(t *testing.T) {
	n := newTestNode(t)
	res, err := NewBackfill(n.Sweeper(), discardLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
}
