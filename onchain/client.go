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

// Package onchain is the typed call interface to the campus contracts. It
// resolves contract names through the app manifest and submits calls as
// the service account.
package onchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/algocampus/campusd/contract"
	"github.com/algocampus/campusd/contract/attendance"
	"github.com/algocampus/campusd/contract/certificate"
	"github.com/algocampus/campusd/contract/voting"
	"github.com/algocampus/campusd/ledger"
)

type Config struct {
	Ledger   *ledger.Ledger
	Logger   *slog.Logger
	Manifest Manifest
	Sender   ledger.Address
}

type Client struct {
	ledger   *ledger.Ledger
	logger   *slog.Logger
	manifest Manifest
	sender   ledger.Address
}

// PollParams are the arguments of create_poll
type PollParams struct {
	Question   string
	Options    []string
	StartRound uint64
	EndRound   uint64
}

// SessionParams are the arguments of create_session
type SessionParams struct {
	CourseCode string
	SessionTs  uint64
	OpenRound  uint64
	CloseRound uint64
}

func New(cfg Config) (*Client, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("onchain: ledger is required")
	}
	if cfg.Sender.IsZero() {
		return nil, errors.New("onchain: sender is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Manifest == nil {
		cfg.Manifest = Manifest{}
	}
	return &Client{
		ledger:   cfg.Ledger,
		logger:   cfg.Logger,
		manifest: cfg.Manifest,
		sender:   cfg.Sender,
	}, nil
}

func (c *Client) Sender() ledger.Address {
	return c.sender
}

func (c *Client) Manifest() Manifest {
	return c.manifest
}

// CurrentRound is the round new calls execute in
func (c *Client) CurrentRound() uint64 {
	return c.ledger.Round()
}

func (c *Client) LookupTx(txID string) (ledger.TxInfo, error) {
	return c.ledger.LookupTx(txID)
}

// CallAs submits a call from an arbitrary sender
func (c *Client) CallAs(
	ctx context.Context,
	sender ledger.Address,
	contractName string,
	method string,
	args ...any,
) (ledger.CallResult, error) {
	appID, err := c.manifest.AppID(contractName)
	if err != nil {
		return ledger.CallResult{}, err
	}
	return c.ledger.Call(ctx, ledger.CallRequest{
		AppID:  appID,
		Sender: sender,
		Method: method,
		Args:   args,
	})
}

// Call submits a call as the service account
func (c *Client) Call(
	ctx context.Context,
	contractName string,
	method string,
	args ...any,
) (ledger.CallResult, error) {
	return c.CallAs(ctx, c.sender, contractName, method, args...)
}

// View runs a read-only method
func (c *Client) View(
	ctx context.Context,
	contractName string,
	method string,
	args ...any,
) (any, error) {
	appID, err := c.manifest.AppID(contractName)
	if err != nil {
		return nil, err
	}
	return c.ledger.ReadOnly(ctx, ledger.CallRequest{
		AppID:  appID,
		Sender: c.sender,
		Method: method,
		Args:   args,
	})
}

func (c *Client) RecordIntent(
	ctx context.Context,
	contractName string,
	hash []byte,
	expires uint64,
) (string, error) {
	res, err := c.Call(ctx, contractName, contract.MethodRecordAIIntent, hash, expires)
	return res.TxID, err
}

func (c *Client) CancelIntent(ctx context.Context, contractName string, hash []byte) (string, error) {
	res, err := c.Call(ctx, contractName, contract.MethodCancelAIIntent, hash)
	return res.TxID, err
}

// GetIntent returns the on-chain intent record. A missing record is not an
// error.
func (c *Client) GetIntent(
	ctx context.Context,
	contractName string,
	hash []byte,
) (contract.IntentState, bool, error) {
	ret, err := c.View(ctx, contractName, contract.MethodGetAIIntent, hash)
	if err != nil {
		if ledger.IsRevert(err, contract.ReasonIntentNotFound) {
			return contract.IntentState{}, false, nil
		}
		return contract.IntentState{}, false, err
	}
	state, ok := ret.(contract.IntentState)
	if !ok {
		return contract.IntentState{}, false, fmt.Errorf("get intent: unexpected return %T", ret)
	}
	return state, true, nil
}

func returnUint64(res ledger.CallResult, method string) (uint64, error) {
	ret, ok := res.Return.(uint64)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected return %T", method, res.Return)
	}
	return ret, nil
}

// CreatePollAI creates a poll gated by a recorded intent and returns the
// poll id and transaction id
func (c *Client) CreatePollAI(
	ctx context.Context,
	p PollParams,
	intentHash []byte,
) (uint64, string, error) {
	res, err := c.Call(
		ctx,
		voting.Name,
		voting.MethodCreatePollAI,
		p.Question,
		p.Options,
		p.StartRound,
		p.EndRound,
		intentHash,
	)
	if err != nil {
		return 0, "", err
	}
	pollID, err := returnUint64(res, voting.MethodCreatePollAI)
	return pollID, res.TxID, err
}

func (c *Client) CreateSessionAI(
	ctx context.Context,
	p SessionParams,
	intentHash []byte,
) (uint64, string, error) {
	res, err := c.Call(
		ctx,
		attendance.Name,
		attendance.MethodCreateSessionAI,
		p.CourseCode,
		p.SessionTs,
		p.OpenRound,
		p.CloseRound,
		intentHash,
	)
	if err != nil {
		return 0, "", err
	}
	sessionID, err := returnUint64(res, attendance.MethodCreateSessionAI)
	return sessionID, res.TxID, err
}

// MintAndRegisterAI mints the certificate asset and registers the hash,
// returning the asset id and transaction id
func (c *Client) MintAndRegisterAI(
	ctx context.Context,
	certHash []byte,
	recipient ledger.Address,
	metadataURL string,
	issuedTs uint64,
	intentHash []byte,
) (uint64, string, error) {
	res, err := c.Call(
		ctx,
		certificate.Name,
		certificate.MethodMintAndRegisterAI,
		certHash,
		recipient,
		metadataURL,
		issuedTs,
		intentHash,
	)
	if err != nil {
		return 0, "", err
	}
	assetID, err := returnUint64(res, certificate.MethodMintAndRegisterAI)
	return assetID, res.TxID, err
}

func (c *Client) RegisterCertAI(
	ctx context.Context,
	certHash []byte,
	recipient ledger.Address,
	assetID uint64,
	issuedTs uint64,
	intentHash []byte,
) (string, error) {
	res, err := c.Call(
		ctx,
		certificate.Name,
		certificate.MethodRegisterCertAI,
		certHash,
		recipient,
		assetID,
		issuedTs,
		intentHash,
	)
	return res.TxID, err
}

// ReissueCertAI overwrites a certificate entry under a recorded intent. The
// sender must be an admin of the registry.
func (c *Client) ReissueCertAI(
	ctx context.Context,
	certHash []byte,
	recipient ledger.Address,
	assetID uint64,
	issuedTs uint64,
	intentHash []byte,
) (string, error) {
	res, err := c.Call(
		ctx,
		certificate.Name,
		certificate.MethodReissueCertAI,
		certHash,
		recipient,
		assetID,
		issuedTs,
		intentHash,
	)
	return res.TxID, err
}

// VerifyCert looks a certificate up by hash. An unknown hash is not an
// error.
func (c *Client) VerifyCert(ctx context.Context, certHash []byte) (certificate.CertRecord, bool, error) {
	ret, err := c.View(ctx, certificate.Name, certificate.MethodVerifyCert, certHash)
	if err != nil {
		if ledger.IsRevert(err, certificate.ReasonCertNotFound) {
			return certificate.CertRecord{}, false, nil
		}
		return certificate.CertRecord{}, false, err
	}
	rec, ok := ret.(certificate.CertRecord)
	if !ok {
		return rec, false, fmt.Errorf("verify cert: unexpected return %T", ret)
	}
	return rec, true, nil
}

func (c *Client) GetPoll(ctx context.Context, pollID uint64) (voting.PollInfo, error) {
	ret, err := c.View(ctx, voting.Name, voting.MethodGetPoll, pollID)
	if err != nil {
		return voting.PollInfo{}, err
	}
	info, ok := ret.(voting.PollInfo)
	if !ok {
		return info, fmt.Errorf("get poll: unexpected return %T", ret)
	}
	return info, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID uint64) (attendance.SessionInfo, error) {
	ret, err := c.View(ctx, attendance.Name, attendance.MethodGetSession, sessionID)
	if err != nil {
		return attendance.SessionInfo{}, err
	}
	info, ok := ret.(attendance.SessionInfo)
	if !ok {
		return info, fmt.Errorf("get session: unexpected return %T", ret)
	}
	return info, nil
}

// IsAdmin reads the admin role of addr on one contract
func (c *Client) IsAdmin(ctx context.Context, contractName string, addr ledger.Address) (bool, error) {
	ret, err := c.View(ctx, contractName, contract.MethodIsAdmin, addr)
	if err != nil {
		return false, err
	}
	isAdmin, ok := ret.(bool)
	if !ok {
		return false, fmt.Errorf("is_admin: unexpected return %T", ret)
	}
	return isAdmin, nil
}

// PushRole grants or revokes a role on every contract in the manifest. A
// failure on one contract does not stop the others. The id of the last
// successful transaction is returned along with any failures.
func (c *Client) PushRole(
	ctx context.Context,
	role contract.Role,
	addr ledger.Address,
	enabled bool,
) (string, error) {
	var method string
	switch role {
	case contract.RoleAdmin:
		method = contract.MethodSetAdmin
	case contract.RoleFaculty:
		method = contract.MethodSetFaculty
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
	var lastTx string
	var errs []error
	for _, name := range c.manifest.Names() {
		res, err := c.Call(ctx, name, method, addr, enabled)
		if err != nil {
			c.logger.Error(
				"role push failed",
				"component", "onchain",
				"contract", name,
				"role", string(role),
				"address", addr.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		lastTx = res.TxID
		c.logger.Info(
			"role pushed",
			"component", "onchain",
			"contract", name,
			"role", string(role),
			"address", addr.String(),
			"enabled", enabled,
			"tx_id", res.TxID,
		)
	}
	return lastTx, errors.Join(errs...)
}
