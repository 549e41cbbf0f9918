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

// Package reconcile repairs off-chain records that fell behind the chain.
// The chain is authoritative: an intent it reports as consumed was executed,
// whatever the local audit trail says.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/algocampus/campusd/canonical"
	"github.com/algocampus/campusd/contract"
	"github.com/algocampus/campusd/contract/attendance"
	"github.com/algocampus/campusd/contract/voting"
	"github.com/algocampus/campusd/database"
	"github.com/algocampus/campusd/database/models"
	"github.com/algocampus/campusd/onchain"
	"github.com/algocampus/campusd/orchestrator"
	"github.com/algocampus/campusd/policy"
)

const ReconciledMessage = "reconciled: consumed on-chain"

// Chain is the read-only chain surface used by the sweeper
type Chain interface {
	CurrentRound() uint64
	Manifest() onchain.Manifest
	GetIntent(ctx context.Context, contractName string, hash []byte) (contract.IntentState, bool, error)
	GetPoll(ctx context.Context, pollID uint64) (voting.PollInfo, error)
	GetSession(ctx context.Context, sessionID uint64) (attendance.SessionInfo, error)
}

type Config struct {
	DB           *database.Database
	Chain        Chain
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// BatchSize bounds the intents examined per sweep. Zero examines all.
	BatchSize int
}

type Sweeper struct {
	config     Config
	logger     *slog.Logger
	reconciled prometheus.Counter
}

func New(cfg Config) (*Sweeper, error) {
	if cfg.DB == nil {
		return nil, errors.New("sweeper requires a database")
	}
	if cfg.Chain == nil {
		return nil, errors.New("sweeper requires a chain client")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Sweeper{
		config: cfg,
		logger: cfg.Logger,
	}
	s.reconciled = promauto.With(cfg.PromRegistry).NewCounter(prometheus.CounterOpts{
		Name: "campusd_reconcile_intents_total",
		Help: "intents marked executed because the chain shows them consumed",
	})
	return s, nil
}

// Sweep marks planned and approval_required intents that were consumed
// on-chain as executed. It returns the number of intents repaired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	db := s.config.DB
	intents, err := db.ListIntentsByStatus(
		[]string{models.IntentStatusPlanned, models.IntentStatusApprovalRequired},
		s.config.BatchSize,
		nil,
	)
	if err != nil {
		return 0, fmt.Errorf("list open intents: %w", err)
	}
	var count int
	var errs []error
	for _, intent := range intents {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		repaired, err := s.reconcileIntent(ctx, intent)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", intent.IntentId, err))
			continue
		}
		if repaired {
			count++
		}
	}
	if count > 0 {
		s.logger.Info(
			fmt.Sprintf("reconciled %d intents", count),
			"component", "reconcile",
		)
	}
	return count, errors.Join(errs...)
}

func (s *Sweeper) reconcileIntent(ctx context.Context, intent models.Intent) (bool, error) {
	contractName, ok := orchestrator.ContractFor(policy.ActionType(intent.ActionType))
	if !ok {
		return false, nil
	}
	hash, err := canonical.ParseDigest(intent.IntentHash)
	if err != nil {
		return false, err
	}
	state, found, err := s.config.Chain.GetIntent(ctx, contractName, hash.Bytes())
	if err != nil {
		return false, err
	}
	if !found || !state.Consumed {
		return false, nil
	}
	db := s.config.DB
	// Identical plans share a hash; the consumption belongs to the one
	// already executed
	siblings, err := db.ListIntentsByHash(intent.IntentHash, nil)
	if err != nil {
		return false, err
	}
	for _, other := range siblings {
		if other.IntentId != intent.IntentId && other.Status == models.IntentStatusExecuted {
			s.logger.Debug(
				"on-chain consumption already attributed",
				"component", "reconcile",
				"intent_id", intent.IntentId,
				"executed_by", other.IntentId,
			)
			return false, nil
		}
	}
	err = db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := db.UpdateIntentStatus(intent.IntentId, models.IntentStatusExecuted, txn); err != nil {
			return err
		}
		if err := db.AddExecution(&models.Execution{
			ExecutionId: "exec-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
			IntentId:    intent.IntentId,
			Status:      models.IntentStatusExecuted,
			Message:     ReconciledMessage,
		}, txn); err != nil {
			return err
		}
		evt := &models.ActivityEvent{
			Kind:        models.ActivityReconciled,
			Title:       fmt.Sprintf("AI intent reconciled (%s)", intent.ActionType),
			Description: ReconciledMessage,
			Actor:       "reconcile",
		}
		evt.SetTags([]string{"ai", "intent:" + intent.IntentId, "reconciled"})
		return db.AddActivity(evt, txn)
	})
	if err != nil {
		return false, err
	}
	s.reconciled.Inc()
	s.logger.Warn(
		"intent consumed on-chain without a local record",
		"component", "reconcile",
		"intent_id", intent.IntentId,
		"contract", contractName,
	)
	return true, nil
}

// RefreshPoll re-reads a poll from the chain and updates its projection
func (s *Sweeper) RefreshPoll(ctx context.Context, pollID uint64) (models.Poll, error) {
	appID, err := s.config.Chain.Manifest().AppID(voting.Name)
	if err != nil {
		return models.Poll{}, err
	}
	round := s.config.Chain.CurrentRound()
	info, err := s.config.Chain.GetPoll(ctx, pollID)
	if err != nil {
		return models.Poll{}, err
	}
	db := s.config.DB
	poll, err := db.GetPoll(appID, pollID, nil)
	if err != nil && !errors.Is(err, models.ErrPollNotFound) {
		return poll, err
	}
	poll.AppId = appID
	poll.PollId = pollID
	poll.Question = info.Question
	poll.StartRound = info.StartRound
	poll.EndRound = info.EndRound
	poll.LastSyncedRound = round
	options, err := json.Marshal(info.Options)
	if err != nil {
		return poll, err
	}
	poll.OptionsJson = string(options)
	if err := db.UpsertPoll(&poll, nil); err != nil {
		return poll, err
	}
	return poll, nil
}

// RefreshSession re-reads a session from the chain and updates the on-chain
// columns of its projection
func (s *Sweeper) RefreshSession(ctx context.Context, sessionID uint64) (models.Session, error) {
	appID, err := s.config.Chain.Manifest().AppID(attendance.Name)
	if err != nil {
		return models.Session{}, err
	}
	round := s.config.Chain.CurrentRound()
	info, err := s.config.Chain.GetSession(ctx, sessionID)
	if err != nil {
		return models.Session{}, err
	}
	db := s.config.DB
	err = db.UpsertSession(&models.Session{
		AppId:           appID,
		SessionId:       sessionID,
		CourseCode:      info.CourseCode,
		SessionTs:       info.SessionTs,
		OpenRound:       info.OpenRound,
		CloseRound:      info.CloseRound,
		LastSyncedRound: round,
	}, nil)
	if err != nil {
		return models.Session{}, err
	}
	return db.GetSession(appID, sessionID, nil)
}
