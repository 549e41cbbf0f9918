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
	"errors"
	"fmt"
	"log/slog"

	"github.com/algocampus/campusd/contract/attendance"
	"github.com/algocampus/campusd/contract/voting"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/onchain"
	"github.com/algocampus/campusd/reconcile"
)

const backfillLogInterval = 100

// Backfill rebuilds the off-chain poll and session projections from the
// chain. Ids are walked from 1 until the contract reports the record
// missing. Off-chain session metadata is kept.
type Backfill struct {
	sweeper *reconcile.Sweeper
	logger  *slog.Logger
}

type BackfillResult struct {
	Polls    uint64 `json:"polls"`
	Sessions uint64 `json:"sessions"`
}

// NewBackfill creates a new Backfill instance.
func NewBackfill(sweeper *reconcile.Sweeper, logger *slog.Logger) *Backfill {
	return &Backfill{
		sweeper: sweeper,
		logger:  logger,
	}
}

func (b *Backfill) Run(ctx context.Context) (BackfillResult, error) {
	var ret BackfillResult
	var err error
	ret.Polls, err = b.walk(
		ctx,
		"poll",
		voting.ReasonPollNotFound,
		func(ctx context.Context, id uint64) error {
			_, err := b.sweeper.RefreshPoll(ctx, id)
			return err
		},
	)
	if err != nil {
		return ret, err
	}
	ret.Sessions, err = b.walk(
		ctx,
		"session",
		attendance.ReasonSessionNotFound,
		func(ctx context.Context, id uint64) error {
			_, err := b.sweeper.RefreshSession(ctx, id)
			return err
		},
	)
	return ret, err
}

func (b *Backfill) walk(
	ctx context.Context,
	kind string,
	missingReason string,
	refresh func(context.Context, uint64) error,
) (uint64, error) {
	var count uint64
	for id := uint64(1); ; id++ {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		err := refresh(ctx, id)
		if err != nil {
			if ledger.IsRevert(err, missingReason) {
				break
			}
			if errors.Is(err, onchain.ErrAppMissing) {
				b.logger.Warn(
					fmt.Sprintf("skipping %s backfill: %s", kind, err),
					"component", "node",
				)
				return 0, nil
			}
			return count, fmt.Errorf("refresh %s %d: %w", kind, id, err)
		}
		count++
		if count%backfillLogInterval == 0 {
			b.logger.Info(
				fmt.Sprintf("backfill progress: %d %ss refreshed", count, kind),
				"component", "node",
			)
		}
	}
	b.logger.Info(
		fmt.Sprintf("backfill finished: %d %ss refreshed", count, kind),
		"component", "node",
	)
	return count, nil
}
