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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/algocampus/campusd/internal/secrets"
)

func secretsCommand() *cobra.Command {
	var (
		output   string
		aiAPIKey string
	)
	cmd := &cobra.Command{
		Use:   "seal-secrets",
		Short: "Write the sops-encrypted secrets file holding the plan provider key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFromCmd(cmd)
			if output == "" {
				output = cfg.SecretsFile
			}
			if output == "" {
				return errors.New("no output file: pass --output or set secretsFile")
			}
			if aiAPIKey == "" {
				aiAPIKey = cfg.AI.APIKey
			}
			if aiAPIKey == "" {
				return errors.New("no API key: pass --ai-api-key or set CAMPUSD_AI_API_KEY")
			}
			if err := secrets.Save(output, secrets.Secrets{AIAPIKey: aiAPIKey}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "secrets file to write (defaults to secretsFile from config)")
	cmd.Flags().StringVar(&aiAPIKey, "ai-api-key", "", "plan provider API key")
	return cmd
}
