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
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/algocampus/campusd"
	"github.com/algocampus/campusd/certmeta"
	"github.com/algocampus/campusd/internal/config"
	"github.com/algocampus/campusd/internal/secrets"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/planner"
)

// Load builds and starts a node from the config. Extra options are applied
// after the ones derived from cfg. The caller owns the returned node and
// must Stop it.
func Load(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	extra ...campusd.ConfigOptionFunc,
) (*campusd.Node, error) {
	opts, err := Options(cfg, logger)
	if err != nil {
		return nil, err
	}
	n, err := campusd.New(campusd.NewConfig(append(opts, extra...)...))
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		if stopErr := n.Stop(); stopErr != nil {
			logger.Error("failed to clean up node", "component", "node", "error", stopErr)
		}
		return nil, err
	}
	return n, nil
}

// Options translates the file/env config into node options
func Options(cfg *config.Config, logger *slog.Logger) ([]campusd.ConfigOptionFunc, error) {
	operator, err := OperatorAddress(cfg.Operator)
	if err != nil {
		return nil, err
	}
	generator, err := Generator(cfg, logger)
	if err != nil {
		return nil, err
	}
	return []campusd.ConfigOptionFunc{
		campusd.WithLogger(logger),
		campusd.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		campusd.WithDatabasePath(cfg.Database.Path),
		campusd.WithMetadataDriver(cfg.Database.MetadataDriver, cfg.Database.PostgresDsn),
		campusd.WithBlobGc(cfg.Database.BlobGc),
		campusd.WithManifestPath(cfg.ManifestPath),
		campusd.WithOperator(operator),
		campusd.WithMempoolCapacity(cfg.Ledger.MempoolCapacity),
		campusd.WithGenesisRound(cfg.Ledger.GenesisRound),
		campusd.WithRoundInterval(cfg.Ledger.RoundInterval),
		campusd.WithReconcileInterval(cfg.ReconcileInterval),
		campusd.WithIntentExpiryRounds(cfg.Intents.ExpiryRounds),
		campusd.WithAutoExecuteLowRisk(cfg.Intents.AutoExecuteLowRisk),
		campusd.WithGenerator(generator),
		campusd.WithCertMetadata(certmeta.Config{
			Backend:         cfg.CertMetadata.Backend,
			Dir:             cfg.CertMetadata.Dir,
			Bucket:          cfg.CertMetadata.Bucket,
			Prefix:          cfg.CertMetadata.Prefix,
			BaseURL:         cfg.CertMetadata.BaseURL,
			Region:          cfg.CertMetadata.Region,
			CredentialsFile: cfg.CertMetadata.CredentialsFile,
		}),
		campusd.WithTracker(campusd.TrackerConfig{
			Workers:     cfg.Tracker.Workers,
			QueueSize:   cfg.Tracker.QueueSize,
			MaxAttempts: cfg.Tracker.MaxAttempts,
			Interval:    cfg.Tracker.Interval,
		}),
		campusd.WithTracing(cfg.Tracing),
		campusd.WithTracingStdout(cfg.TracingStdout),
		campusd.WithShutdownTimeout(cfg.ShutdownTimeout),
		campusd.WithRunMode(string(cfg.RunMode)),
	}, nil
}

// OperatorAddress accepts a bech32 address or a development account name
func OperatorAddress(s string) (ledger.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = config.DefaultOperator
	}
	if strings.HasPrefix(s, ledger.AddressHRP+"1") {
		addr, err := ledger.ParseAddress(s)
		if err != nil {
			return ledger.Address{}, fmt.Errorf("invalid operator address: %w", err)
		}
		return addr, nil
	}
	return ledger.DevAccount(s), nil
}

// Generator picks the plan generator. The AI provider is used only when it
// is enabled and a key is available; it always falls back to the
// deterministic planner.
func Generator(cfg *config.Config, logger *slog.Logger) (planner.Generator, error) {
	if !cfg.AI.Enabled {
		return planner.Fallback{}, nil
	}
	apiKey := cfg.AI.APIKey
	if apiKey == "" && cfg.SecretsFile != "" {
		s, err := secrets.Load(cfg.SecretsFile)
		if err != nil {
			return nil, err
		}
		apiKey = s.AIAPIKey
	}
	if cfg.AI.Provider != "" && cfg.AI.Provider != planner.GeminiName {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.AI.Provider)
	}
	gemini, err := planner.NewGemini(planner.GeminiConfig{
		Endpoint:   cfg.AI.Endpoint,
		APIKey:     apiKey,
		Model:      cfg.AI.Model,
		Timeout:    cfg.AI.Timeout,
		MaxRetries: cfg.AI.MaxRetries,
	})
	if err != nil {
		logger.Warn(
			"ai provider unavailable, using fallback planner",
			"component", "node",
			"error", err,
		)
		return planner.Fallback{}, nil
	}
	return planner.WithFallback(gemini, planner.Fallback{}, logger), nil
}
