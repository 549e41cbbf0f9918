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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/algocampus/campusd"
	"github.com/algocampus/campusd/contract"
	"github.com/algocampus/campusd/internal/node"
	"github.com/algocampus/campusd/ledger"
)

func deployCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the voting, attendance and certificate contracts and write the manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withNode(cmd, func(_ context.Context, n *campusd.Node) error {
				return printJSON(n.Chain().Manifest())
			}, campusd.WithDeployContracts(true))
		},
	}
	return cmd
}

func roleCommand() *cobra.Command {
	var (
		role    string
		disable bool
	)
	cmd := &cobra.Command{
		Use:   "role <address>",
		Short: "Grant or revoke a role on every deployed contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r contract.Role
			switch role {
			case "admin":
				r = contract.RoleAdmin
			case "faculty":
				r = contract.RoleFaculty
			default:
				return fmt.Errorf("unknown role %q (must be admin or faculty)", role)
			}
			addr, err := ledger.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return withNode(cmd, func(ctx context.Context, n *campusd.Node) error {
				txID, err := n.Chain().PushRole(ctx, r, addr, !disable)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"address": addr.String(),
					"role":    role,
					"enabled": !disable,
					"tx_id":   txID,
				})
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "faculty", "role to push: admin or faculty")
	cmd.Flags().BoolVar(&disable, "disable", false, "revoke the role instead of granting it")
	return cmd
}

func reconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Mark intents consumed on-chain as executed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withNode(cmd, func(ctx context.Context, n *campusd.Node) error {
				count, err := n.Sweeper().Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]int{"reconciled": count})
			})
		},
	}
	return cmd
}

func backfillCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Rebuild the poll and session cache from the chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withNode(cmd, func(ctx context.Context, n *campusd.Node) error {
				res, err := node.NewBackfill(n.Sweeper(), slog.Default()).Run(ctx)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	return cmd
}
