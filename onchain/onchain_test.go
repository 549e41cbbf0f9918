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

package onchain_test

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algocampus/campusd/contract"
	"github.com/algocampus/campusd/contract/attendance"
	"github.com/algocampus/campusd/contract/certificate"
	"github.com/algocampus/campusd/contract/voting"
	"github.com/algocampus/campusd/internal/test/testutil"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/onchain"
)

var service = ledger.DevAccount("service")

func newClient(t *testing.T) *onchain.Client {
	t.Helper()
	c, _ := newClientWithLedger(t)
	return c
}

func newClientWithLedger(t *testing.T) (*onchain.Client, *ledger.Ledger) {
	t.Helper()
	h := testutil.NewHarness(t)
	manifest, err := onchain.DeployAll(context.Background(), h.Ledger, service)
	require.NoError(t, err)
	c, err := onchain.New(onchain.Config{
		Ledger:   h.Ledger,
		Manifest: manifest,
		Sender:   service,
	})
	require.NoError(t, err)
	return c, h.Ledger
}

func hash(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func TestManifestRoundTrip(t *testing.T) {
	c := newClient(t)
	m := c.Manifest()
	require.Len(t, m, 3)
	assert.Equal(t, []string{attendance.Name, certificate.Name, voting.Name}, m.Names())

	path := filepath.Join(t.TempDir(), "nested", "apps.json")
	require.NoError(t, m.Save(path))
	loaded, err := onchain.LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	_, err = onchain.Manifest{}.AppID(voting.Name)
	require.ErrorIs(t, err, onchain.ErrAppMissing)
	_, err = onchain.LoadManifest(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestIntentRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	h := hash("intent")
	_, ok, err := c.GetIntent(ctx, voting.Name, h)
	require.NoError(t, err)
	assert.False(t, ok)

	txID, err := c.RecordIntent(ctx, voting.Name, h, c.CurrentRound()+30)
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	state, ok, err := c.GetIntent(ctx, voting.Name, h)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.CurrentRound()+30, state.Expiry)

	// Intent namespaces are per contract
	_, ok, err = c.GetIntent(ctx, attendance.Name, h)
	require.NoError(t, err)
	assert.False(t, ok)

	pollID, txID, err := c.CreatePollAI(ctx, onchain.PollParams{
		Question:   "Q",
		Options:    []string{"a", "b"},
		StartRound: c.CurrentRound(),
		EndRound:   c.CurrentRound() + 10,
	}, h)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pollID)
	assert.NotEmpty(t, txID)
	poll, err := c.GetPoll(ctx, pollID)
	require.NoError(t, err)
	assert.Equal(t, "Q", poll.Question)

	_, err = c.CancelIntent(ctx, voting.Name, h)
	assert.True(t, ledger.IsRevert(err, contract.ReasonIntentUsed))
}

func TestSessionAndCertificate(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	round := c.CurrentRound()
	sessionIntent := hash("session")
	_, err := c.RecordIntent(ctx, attendance.Name, sessionIntent, round+30)
	require.NoError(t, err)
	sessionID, _, err := c.CreateSessionAI(ctx, onchain.SessionParams{
		CourseCode: "CS101",
		SessionTs:  1,
		OpenRound:  round,
		CloseRound: round + 3,
	}, sessionIntent)
	require.NoError(t, err)
	session, err := c.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "CS101", session.CourseCode)

	recipient := ledger.DevAccount("student")
	certIntent := hash("cert")
	_, err = c.RecordIntent(ctx, certificate.Name, certIntent, round+30)
	require.NoError(t, err)
	assetID, _, err := c.MintAndRegisterAI(ctx, hash("cert-body"), recipient, "https://x/1.json#arc3", 99, certIntent)
	require.NoError(t, err)
	rec, ok, err := c.VerifyCert(ctx, hash("cert-body"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, certificate.CertRecord{Recipient: recipient, AssetID: assetID, IssuedTs: 99}, rec)
	_, ok, err = c.VerifyCert(ctx, hash("unknown"))
	require.NoError(t, err)
	assert.False(t, ok)

	regIntent := hash("register")
	_, err = c.RecordIntent(ctx, certificate.Name, regIntent, round+30)
	require.NoError(t, err)
	_, err = c.RegisterCertAI(ctx, hash("other-body"), recipient, 0, 100, regIntent)
	require.NoError(t, err)

	reissueIntent := hash("reissue")
	_, err = c.RecordIntent(ctx, certificate.Name, reissueIntent, round+30)
	require.NoError(t, err)
	_, err = c.ReissueCertAI(ctx, hash("other-body"), recipient, 0, 250, reissueIntent)
	require.NoError(t, err)
	rec, ok, err = c.VerifyCert(ctx, hash("other-body"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(250), rec.IssuedTs)
	state, found, err := c.GetIntent(ctx, certificate.Name, reissueIntent)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, state.Consumed)
}

func TestPushRole(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	dean := ledger.DevAccount("dean")
	txID, err := c.PushRole(ctx, contract.RoleAdmin, dean, true)
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	for _, name := range c.Manifest().Names() {
		isAdmin, err := c.IsAdmin(ctx, name, dean)
		require.NoError(t, err)
		assert.True(t, isAdmin, name)
	}
	// Only admins may push faculty roles
	_, err = c.PushRole(ctx, contract.RoleFaculty, dean, true)
	require.NoError(t, err)
	_, err = c.PushRole(ctx, contract.Role("xyz"), dean, true)
	require.Error(t, err)
}

func TestPushRoleCollectsFailures(t *testing.T) {
	c, l := newClientWithLedger(t)
	other, err := onchain.New(onchain.Config{
		Ledger:   l,
		Manifest: c.Manifest(),
		Sender:   ledger.DevAccount("nobody"),
	})
	require.NoError(t, err)
	txID, err := other.PushRole(context.Background(), contract.RoleAdmin, ledger.DevAccount("x"), true)
	require.Error(t, err)
	assert.Empty(t, txID)
	assert.True(t, ledger.IsRevert(err, contract.ReasonOnlyCreator))
}
