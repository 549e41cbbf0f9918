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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/algocampus/campusd"
	"github.com/algocampus/campusd/database/models"
	"github.com/algocampus/campusd/internal/node"
	"github.com/algocampus/campusd/orchestrator"
	"github.com/algocampus/campusd/policy"
)

const defaultActor = "cli"

// withNode loads a node without the block producer, runs fn and stops the
// node. Transactions executed by fn are sealed into a round on stop and
// confirmed by the tracker of the next serving node.
func withNode(
	cmd *cobra.Command,
	fn func(ctx context.Context, n *campusd.Node) error,
	extra ...campusd.ConfigOptionFunc,
) error {
	cfg := configFromCmd(cmd)
	logger := commonRun(os.Stderr)
	ctx := cmd.Context()
	n, err := node.Load(ctx, cfg, logger, extra...)
	if err != nil {
		return err
	}
	runErr := fn(ctx, n)
	if err := n.Stop(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func readJSONObject(path string) (map[string]any, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var ret map[string]any
	if err := json.NewDecoder(r).Decode(&ret); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ret, nil
}

func planCommand() *cobra.Command {
	var (
		actionType  string
		prompt      string
		payloadFile string
		contextFile string
		auto        bool
		actor       string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Create an AI plan and record its intent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := policy.ParseActionType(actionType)
			if err != nil {
				return err
			}
			planCtx := map[string]any{}
			if contextFile != "" {
				if planCtx, err = readJSONObject(contextFile); err != nil {
					return err
				}
			}
			if payloadFile != "" {
				payload, err := readJSONObject(payloadFile)
				if err != nil {
					return err
				}
				planCtx["payload"] = payload
			}
			return withNode(cmd, func(ctx context.Context, n *campusd.Node) error {
				res, err := n.Orchestrator().CreatePlan(ctx, orchestrator.PlanRequest{
					ActionType:  at,
					Prompt:      prompt,
					Context:     planCtx,
					AutoExecute: auto,
				}, actor)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVarP(&actionType, "action-type", "t", "", "action type (e.g. faculty_poll_plan)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "natural language request")
	cmd.Flags().StringVar(&payloadFile, "payload", "", "JSON file with the action payload, '-' for stdin")
	cmd.Flags().StringVar(&contextFile, "context", "", "JSON file with additional plan context")
	cmd.Flags().BoolVar(&auto, "auto", false, "request automatic execution")
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "actor recorded in the activity log")
	_ = cmd.MarkFlagRequired("action-type")
	return cmd
}

func executeCommand() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "execute <intent-id>",
		Short: "Execute a planned intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(cmd, func(ctx context.Context, n *campusd.Node) error {
				res, err := n.Orchestrator().ExecuteIntent(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "actor recorded in the activity log")
	return cmd
}

func approveCommand() *cobra.Command {
	var (
		approver string
		actor    string
	)
	cmd := &cobra.Command{
		Use:   "approve <intent-id>",
		Short: "Approve and execute an intent awaiting approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(cmd, func(ctx context.Context, n *campusd.Node) error {
				addr := n.Chain().Sender()
				if approver != "" {
					var err error
					if addr, err = node.OperatorAddress(approver); err != nil {
						return err
					}
				}
				res, err := n.Orchestrator().Approve(ctx, args[0], addr, actor)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&approver, "approver", "", "approver address or account name (default operator)")
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "actor recorded in the activity log")
	return cmd
}

func intentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intent <intent-id>",
		Short: "Show an intent and its execution history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(cmd, func(_ context.Context, n *campusd.Node) error {
				intent, err := n.Orchestrator().GetIntent(args[0])
				if err != nil {
					return err
				}
				execs, err := n.Orchestrator().ListExecutions(args[0])
				if err != nil {
					return err
				}
				return printJSON(struct {
					Intent     models.Intent      `json:"intent"`
					Executions []models.Execution `json:"executions"`
				}{intent, execs})
			})
		},
	}
	return cmd
}
