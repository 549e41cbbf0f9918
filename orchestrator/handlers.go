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

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/algocampus/campusd/canonical"
	"github.com/algocampus/campusd/certmeta"
	"github.com/algocampus/campusd/contract"
	"github.com/algocampus/campusd/contract/attendance"
	"github.com/algocampus/campusd/contract/certificate"
	"github.com/algocampus/campusd/contract/voting"
	"github.com/algocampus/campusd/database/models"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/onchain"
	"github.com/algocampus/campusd/policy"
)

// action is one execution attempt of an intent
type action struct {
	payload  map[string]any
	intent   models.Intent
	actor    string
	contract string
	txID     string
	hash     canonical.Digest
	recorded bool
	consumed bool
}

type outcome struct {
	txID    string
	message string
	tags    []string
}

type handler struct {
	execute  func(o *Orchestrator, ctx context.Context, a *action) (outcome, error)
	contract string
}

var handlers = map[policy.ActionType]handler{
	policy.ActionFacultyPoll: {
		contract: voting.Name,
		execute:  (*Orchestrator).executePoll,
	},
	policy.ActionFacultySession: {
		contract: attendance.Name,
		execute:  (*Orchestrator).executeSession,
	},
	policy.ActionFacultyCert: {
		contract: certificate.Name,
		execute:  (*Orchestrator).executeCertificate,
	},
}

// ContractFor returns the contract that gates an action type
func ContractFor(actionType policy.ActionType) (string, bool) {
	h, ok := handlers[actionType]
	if !ok {
		return "", false
	}
	return h.contract, true
}

// recordIntent commits the intent hash on the target contract. A hash that
// is already recorded and still usable is reused; an expired one is
// cancelled and recorded again.
func (o *Orchestrator) recordIntent(ctx context.Context, a *action) error {
	chain := o.config.Chain
	hash := a.hash.Bytes()
	expires := chain.CurrentRound() + o.config.IntentExpiryRounds
	_, err := chain.RecordIntent(ctx, a.contract, hash, expires)
	if err == nil {
		a.recorded = true
		return nil
	}
	if !ledger.IsRevert(err, contract.ReasonIntentRecorded) {
		return err
	}
	state, ok, lookupErr := chain.GetIntent(ctx, a.contract, hash)
	if lookupErr != nil {
		return lookupErr
	}
	switch {
	case !ok:
		return err
	case state.Consumed:
		return errors.New(contract.ReasonIntentUsed)
	case state.Expiry >= chain.CurrentRound():
		o.logger.Debug(
			"reusing recorded intent",
			"component", "orchestrator",
			"intent_id", a.intent.IntentId,
			"contract", a.contract,
			"expiry", state.Expiry,
		)
		a.recorded = true
		return nil
	}
	if _, err := chain.CancelIntent(ctx, a.contract, hash); err != nil {
		return err
	}
	if _, err := chain.RecordIntent(ctx, a.contract, hash, expires); err != nil {
		return err
	}
	a.recorded = true
	return nil
}

func (o *Orchestrator) appID(name string) uint64 {
	appID, err := o.config.Chain.Manifest().AppID(name)
	if err != nil {
		return 0
	}
	return appID
}

func (o *Orchestrator) cacheFailed(a *action, what string, err error) {
	o.logger.Error(
		"failed to cache "+what,
		"component", "orchestrator",
		"intent_id", a.intent.IntentId,
		"tx_id", a.txID,
		"error", err,
	)
}

func parsePoll(payload map[string]any) (onchain.PollParams, error) {
	var ret onchain.PollParams
	var err error
	ret.Question = fieldString(payload, "question")
	ret.Options = fieldStrings(payload, "options")
	if ret.StartRound, err = fieldUint(payload, "start_round"); err != nil {
		return ret, invalid("invalid poll payload")
	}
	if ret.EndRound, err = fieldUint(payload, "end_round"); err != nil {
		return ret, invalid("invalid poll payload")
	}
	if ret.Question == "" || len(ret.Options) < 2 || ret.EndRound <= ret.StartRound {
		return ret, invalid("invalid poll payload")
	}
	return ret, nil
}

func (o *Orchestrator) executePoll(ctx context.Context, a *action) (outcome, error) {
	p, err := parsePoll(a.payload)
	if err != nil {
		return outcome{}, err
	}
	if err := o.recordIntent(ctx, a); err != nil {
		return outcome{}, err
	}
	pollID, txID, err := o.config.Chain.CreatePollAI(ctx, p, a.hash.Bytes())
	if err != nil {
		return outcome{}, err
	}
	a.consumed = true
	a.txID = txID
	if appID := o.appID(voting.Name); appID != 0 {
		options, _ := json.Marshal(p.Options)
		err := o.config.DB.UpsertPoll(&models.Poll{
			AppId:           appID,
			PollId:          pollID,
			Question:        p.Question,
			OptionsJson:     string(options),
			Creator:         a.actor,
			TxId:            txID,
			StartRound:      p.StartRound,
			EndRound:        p.EndRound,
			LastSyncedRound: o.config.Chain.CurrentRound(),
		}, nil)
		if err != nil {
			o.cacheFailed(a, "poll", err)
		}
	}
	return outcome{
		txID:    txID,
		message: fmt.Sprintf("poll created via ai: %d", pollID),
		tags:    []string{fmt.Sprintf("poll:%d", pollID)},
	}, nil
}

func parseSession(payload map[string]any) (onchain.SessionParams, error) {
	var ret onchain.SessionParams
	var err error
	ret.CourseCode = fieldString(payload, "course_code")
	if ret.SessionTs, err = fieldUint(payload, "session_ts"); err != nil {
		return ret, invalid("invalid session payload")
	}
	if ret.OpenRound, err = fieldUint(payload, "open_round"); err != nil {
		return ret, invalid("invalid session payload")
	}
	if ret.CloseRound, err = fieldUint(payload, "close_round"); err != nil {
		return ret, invalid("invalid session payload")
	}
	if ret.CourseCode == "" || ret.CloseRound <= ret.OpenRound {
		return ret, invalid("invalid session payload")
	}
	return ret, nil
}

func (o *Orchestrator) executeSession(ctx context.Context, a *action) (outcome, error) {
	p, err := parseSession(a.payload)
	if err != nil {
		return outcome{}, err
	}
	if err := o.recordIntent(ctx, a); err != nil {
		return outcome{}, err
	}
	sessionID, txID, err := o.config.Chain.CreateSessionAI(ctx, p, a.hash.Bytes())
	if err != nil {
		return outcome{}, err
	}
	a.consumed = true
	a.txID = txID
	if appID := o.appID(attendance.Name); appID != 0 {
		err := o.config.DB.UpsertSession(&models.Session{
			AppId:           appID,
			SessionId:       sessionID,
			CourseCode:      p.CourseCode,
			Creator:         a.actor,
			TxId:            txID,
			SessionTs:       p.SessionTs,
			OpenRound:       p.OpenRound,
			CloseRound:      p.CloseRound,
			LastSyncedRound: o.config.Chain.CurrentRound(),
		}, nil)
		if err != nil {
			o.cacheFailed(a, "session", err)
		}
	}
	return outcome{
		txID:    txID,
		message: fmt.Sprintf("session created via ai: %d", sessionID),
		tags:    []string{fmt.Sprintf("session:%d", sessionID)},
	}, nil
}

type certRequest struct {
	cert      certmeta.Certificate
	recipient ledger.Address
	assetID   uint64
}

func (o *Orchestrator) parseCertificate(payload map[string]any) (certRequest, error) {
	var ret certRequest
	bad := invalid("invalid certificate payload")
	recipient, err := ledger.ParseAddress(fieldString(payload, "recipient"))
	if err != nil {
		return ret, bad
	}
	ret.recipient = recipient
	ret.cert = certmeta.Certificate{
		Recipient:     recipient.String(),
		RecipientName: fieldString(payload, "recipient_name"),
		CourseCode:    fieldString(payload, "course_code"),
		Title:         fieldString(payload, "title"),
		Description:   fieldString(payload, "description"),
	}
	if ret.cert.Title == "" || ret.cert.CourseCode == "" {
		return ret, bad
	}
	if ret.cert.IssuedTs, err = fieldUint(payload, "issued_ts"); err != nil {
		return ret, bad
	}
	if ret.cert.IssuedTs == 0 {
		ret.cert.IssuedTs = uint64(o.config.Now().Unix()) // #nosec G115
	}
	if ret.assetID, err = fieldUint(payload, "asset_id"); err != nil {
		return ret, bad
	}
	return ret, nil
}

// CertificateHash is the registry key of a certificate
func CertificateHash(cert certmeta.Certificate) (canonical.Digest, error) {
	return canonical.Hash(map[string]any{
		"recipient":   cert.Recipient,
		"name":        cert.RecipientName,
		"course":      cert.CourseCode,
		"title":       cert.Title,
		"description": cert.Description,
		"issued_ts":   cert.IssuedTs,
	})
}

func (o *Orchestrator) executeCertificate(ctx context.Context, a *action) (outcome, error) {
	req, err := o.parseCertificate(a.payload)
	if err != nil {
		return outcome{}, err
	}
	certHash, err := CertificateHash(req.cert)
	if err != nil {
		return outcome{}, err
	}
	meta := certmeta.Build(req.cert)
	var metadataURL string
	if req.assetID == 0 {
		if o.config.Publisher == nil {
			return outcome{}, errors.New("certificate metadata publisher not configured")
		}
		if metadataURL, err = o.config.Publisher.Publish(ctx, certHash.Hex(), meta); err != nil {
			return outcome{}, fmt.Errorf("publish certificate metadata: %w", err)
		}
	}
	if err := o.recordIntent(ctx, a); err != nil {
		return outcome{}, err
	}
	var txID, message string
	assetID := req.assetID
	if assetID == 0 {
		assetID, txID, err = o.config.Chain.MintAndRegisterAI(
			ctx,
			certHash.Bytes(),
			req.recipient,
			metadataURL,
			req.cert.IssuedTs,
			a.hash.Bytes(),
		)
		message = fmt.Sprintf("certificate minted via ai: asset %d", assetID)
	} else {
		txID, err = o.config.Chain.RegisterCertAI(
			ctx,
			certHash.Bytes(),
			req.recipient,
			assetID,
			req.cert.IssuedTs,
			a.hash.Bytes(),
		)
		message = "certificate registered via ai: " + certHash.Hex()
	}
	if err != nil {
		return outcome{}, err
	}
	a.consumed = true
	a.txID = txID
	metaJSON, _ := json.Marshal(meta)
	err = o.config.DB.UpsertCertificate(&models.Certificate{
		CertHash:     certHash.Hex(),
		Recipient:    req.cert.Recipient,
		MetadataUrl:  metadataURL,
		MetadataJson: string(metaJSON),
		TxId:         txID,
		AppId:        o.appID(certificate.Name),
		AssetId:      assetID,
		IssuedTs:     req.cert.IssuedTs,
	}, nil)
	if err != nil {
		o.cacheFailed(a, "certificate", err)
	}
	return outcome{
		txID:    txID,
		message: message,
		tags:    []string{"cert:" + certHash.Hex()},
	}, nil
}
