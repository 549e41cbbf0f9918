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

package campusd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/algocampus/campusd/certmeta"
	"github.com/algocampus/campusd/database"
	"github.com/algocampus/campusd/event"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/mempool"
	"github.com/algocampus/campusd/onchain"
	"github.com/algocampus/campusd/orchestrator"
	"github.com/algocampus/campusd/reconcile"
	"github.com/algocampus/campusd/txtrack"
)

var ErrNotStarted = errors.New("node not started")

type Node struct {
	eventBus       *event.EventBus
	db             *database.Database
	mempool        *mempool.Mempool
	ledger         *ledger.Ledger
	chain          *onchain.Client
	tracker        *txtrack.Tracker
	orchestrator   *orchestrator.Orchestrator
	sweeper        *reconcile.Sweeper
	scheduler      *ledger.Scheduler
	tracerProvider *sdktrace.TracerProvider
	shutdownFuncs  []func(context.Context) error
	config         Config
	done           chan struct{}
	startOnce      sync.Once
	shutdownOnce   sync.Once
	started        bool
}

func New(cfg Config) (*Node, error) {
	n := &Node{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	n.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
	return n, nil
}

// Start opens the stores and starts every component. Rounds are sealed on a
// timer only when the block producer is enabled. Stop must be called even
// when Start fails.
func (n *Node) Start(ctx context.Context) error {
	var err error
	n.startOnce.Do(func() {
		err = n.start(ctx)
		n.started = err == nil
	})
	return err
}

func (n *Node) start(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(database.Config{
		Logger:         n.config.logger,
		PromRegistry:   n.config.promRegistry,
		DataDir:        n.config.dataDir,
		MetadataDriver: n.config.metadataDriver,
		PostgresDsn:    n.config.postgresDsn,
		BlobGc:         n.config.blobGc,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Initialize mempool
	n.mempool = mempool.NewMempool(mempool.MempoolConfig{
		MempoolCapacity: n.config.mempoolCapacity,
		Logger:          n.config.logger,
		EventBus:        n.eventBus,
		PromRegistry:    n.config.promRegistry,
	})
	// Load ledger
	l, err := ledger.New(ledger.Config{
		DB:           n.db,
		Mempool:      n.mempool,
		EventBus:     n.eventBus,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		GenesisRound: n.config.genesisRound,
	})
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	n.ledger = l
	if n.config.isDevMode() {
		if err := n.fundOperator(); err != nil {
			return err
		}
	}
	manifest, err := n.loadManifest(ctx)
	if err != nil {
		return err
	}
	chain, err := onchain.New(onchain.Config{
		Ledger:   n.ledger,
		Logger:   n.config.logger,
		Manifest: manifest,
		Sender:   n.config.operator,
	})
	if err != nil {
		return err
	}
	n.chain = chain
	// Start transaction tracker
	tracker, err := txtrack.New(txtrack.Config{
		DB:           n.db,
		Lookup:       n.ledger,
		EventBus:     n.eventBus,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Workers:      n.config.tracker.Workers,
		QueueSize:    n.config.tracker.QueueSize,
		MaxAttempts:  n.config.tracker.MaxAttempts,
		Interval:     n.config.tracker.Interval,
	})
	if err != nil {
		return err
	}
	n.tracker = tracker
	if err := n.tracker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start tracker: %w", err)
	}
	// Configure orchestrator
	orchCfg := orchestrator.Config{
		DB:                 n.db,
		Chain:              n.chain,
		Generator:          n.config.generator,
		Tracker:            n.tracker,
		EventBus:           n.eventBus,
		Logger:             n.config.logger,
		PromRegistry:       n.config.promRegistry,
		IntentExpiryRounds: n.config.intentExpiryRounds,
		AutoExecuteLowRisk: n.config.autoExecuteLowRisk,
	}
	publisher, err := n.certPublisher(ctx)
	if err != nil {
		return err
	}
	if publisher != nil {
		orchCfg.Publisher = publisher
	}
	if n.tracerProvider != nil {
		orchCfg.TracerProvider = n.tracerProvider
	}
	n.orchestrator, err = orchestrator.New(orchCfg)
	if err != nil {
		return err
	}
	n.sweeper, err = reconcile.New(reconcile.Config{
		DB:           n.db,
		Chain:        n.chain,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return err
	}
	if n.config.blockProducer {
		n.startBlockProducer()
	}
	n.config.logger.Info(
		fmt.Sprintf("node started at round %d", n.ledger.Round()),
		"component", "node",
		"operator", n.config.operator.String(),
		"contracts", len(manifest),
	)
	return nil
}

// Run starts the node and blocks until ctx is done or the node is stopped
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-n.done:
	}
	return nil
}

func (n *Node) fundOperator() error {
	bal, err := n.ledger.Balance(n.config.operator)
	if err != nil {
		return err
	}
	if bal > 0 {
		return nil
	}
	if err := n.ledger.Fund(n.config.operator, devOperatorFunding); err != nil {
		return fmt.Errorf("failed to fund operator: %w", err)
	}
	n.config.logger.Info(
		"funded development operator account",
		"component", "node",
		"operator", n.config.operator.String(),
	)
	return nil
}

// loadManifest reads the application manifest. Contracts are deployed when
// requested explicitly, or in dev mode when no manifest exists yet.
func (n *Node) loadManifest(ctx context.Context) (onchain.Manifest, error) {
	var manifest onchain.Manifest
	if n.config.manifestPath != "" && !n.config.deployContracts {
		var err error
		manifest, err = onchain.LoadManifest(n.config.manifestPath)
		switch {
		case err == nil:
			return manifest, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	if !n.config.deployContracts && !n.config.isDevMode() {
		n.config.logger.Warn(
			"no application manifest, contract calls will fail until contracts are deployed",
			"component", "node",
			"path", n.config.manifestPath,
		)
		return onchain.Manifest{}, nil
	}
	manifest, err := onchain.DeployAll(ctx, n.ledger, n.config.operator)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy contracts: %w", err)
	}
	if n.config.manifestPath != "" {
		if err := manifest.Save(n.config.manifestPath); err != nil {
			return nil, fmt.Errorf("failed to save manifest: %w", err)
		}
	}
	for _, name := range manifest.Names() {
		n.config.logger.Info(
			fmt.Sprintf("deployed %s as app %d", name, manifest[name]),
			"component", "node",
		)
	}
	return manifest, nil
}

func (n *Node) certPublisher(ctx context.Context) (certmeta.Publisher, error) {
	if n.config.certPublisher != nil {
		return n.config.certPublisher, nil
	}
	cfg := n.config.certMetadata
	if cfg.Backend == "" && cfg.Dir == "" && cfg.Bucket == "" {
		return nil, nil
	}
	publisher, err := certmeta.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open certificate metadata publisher: %w", err)
	}
	if closer, ok := publisher.(io.Closer); ok {
		n.shutdownFuncs = append(n.shutdownFuncs, func(context.Context) error {
			return closer.Close()
		})
	}
	return publisher, nil
}

// startBlockProducer seals a round every tick and runs a reconciliation
// sweep every reconcileInterval
func (n *Node) startBlockProducer() {
	n.scheduler = ledger.NewScheduler(n.config.roundInterval)
	n.scheduler.Register(1, n.sealRound, func() {
		n.config.logger.Warn(
			"round seal still running, skipping tick",
			"component", "node",
		)
	})
	if n.config.reconcileInterval > 0 {
		ticks := int(
			(n.config.reconcileInterval + n.config.roundInterval - 1) / n.config.roundInterval,
		)
		n.scheduler.Register(ticks, n.reconcileSweep, nil)
	}
	n.scheduler.Start()
}

func (n *Node) sealRound(context.Context) {
	if _, err := n.ledger.SealRound(); err != nil {
		n.config.logger.Error(
			"failed to seal round",
			"component", "node",
			"error", err,
		)
	}
}

func (n *Node) reconcileSweep(ctx context.Context) {
	count, err := n.sweeper.Sweep(ctx)
	if err != nil {
		n.config.logger.Error(
			"reconciliation sweep failed",
			"component", "node",
			"error", err,
		)
	}
	if count > 0 {
		n.config.logger.Info(
			fmt.Sprintf("reconciled %d intents", count),
			"component", "node",
		)
	}
}

func (n *Node) Orchestrator() *orchestrator.Orchestrator {
	return n.orchestrator
}

func (n *Node) Chain() *onchain.Client {
	return n.chain
}

func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

func (n *Node) Sweeper() *reconcile.Sweeper {
	return n.sweeper
}

func (n *Node) Tracker() *txtrack.Tracker {
	return n.tracker
}

func (n *Node) Database() *database.Database {
	return n.db
}

func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}

// SealRound seals the current round on demand
func (n *Node) SealRound() (uint64, error) {
	if !n.started {
		return 0, ErrNotStarted
	}
	return n.ledger.SealRound()
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := defaultShutdownTimeout
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop accepting new work
	n.config.logger.Debug("shutdown phase 1: stopping new work", "component", "node")

	if n.scheduler != nil {
		n.scheduler.Stop()
	}

	if n.tracker != nil {
		if stopErr := n.tracker.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("tracker shutdown: %w", stopErr))
		}
	}

	// Phase 2: Seal executed transactions so they are not lost with the mempool
	n.config.logger.Debug("shutdown phase 2: sealing pending transactions", "component", "node")

	if n.ledger != nil {
		if n.mempool.Len() > 0 {
			if _, sealErr := n.ledger.SealRound(); sealErr != nil {
				err = errors.Join(err, fmt.Errorf("final round seal: %w", sealErr))
			}
		}
		if closeErr := n.ledger.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("ledger close: %w", closeErr))
		}
	}

	// Phase 3: Cleanup resources
	n.config.logger.Debug("shutdown phase 3: cleanup resources", "component", "node")

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}
