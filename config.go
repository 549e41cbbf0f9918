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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/algocampus/campusd/certmeta"
	"github.com/algocampus/campusd/database"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/planner"
)

// runMode constants for operational mode configuration
const (
	runModeServe = "serve"
	runModeDev   = "dev"
)

const (
	defaultRoundInterval     = 4 * time.Second
	defaultReconcileInterval = time.Minute
	defaultShutdownTimeout   = 30 * time.Second
	devOperatorFunding       = 1_000_000_000_000
)

// TrackerConfig tunes transaction confirmation tracking. Zero values use the
// tracker defaults.
type TrackerConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts uint
	Interval    time.Duration
}

type Config struct {
	promRegistry       prometheus.Registerer
	logger             *slog.Logger
	generator          planner.Generator
	certPublisher      certmeta.Publisher
	dataDir            string
	metadataDriver     string
	postgresDsn        string
	manifestPath       string
	runMode            string
	certMetadata       certmeta.Config
	tracker            TrackerConfig
	operator           ledger.Address
	mempoolCapacity    int64
	genesisRound       uint64
	intentExpiryRounds uint64
	roundInterval      time.Duration
	reconcileInterval  time.Duration
	shutdownTimeout    time.Duration
	autoExecuteLowRisk bool
	blockProducer      bool
	deployContracts    bool
	blobGc             bool
	tracing            bool
	tracingStdout      bool
}

// isDevMode returns true if running in development mode
func (c *Config) isDevMode() bool {
	return c.runMode == runModeDev
}

func (n *Node) configValidate() error {
	switch n.config.runMode {
	case "", runModeServe, runModeDev:
	default:
		return fmt.Errorf("invalid run mode: %q", n.config.runMode)
	}
	if n.config.operator.IsZero() {
		return errors.New("no operator account configured")
	}
	if n.config.blockProducer && n.config.roundInterval <= 0 {
		return fmt.Errorf(
			"invalid round interval: %s",
			n.config.roundInterval,
		)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new campusd config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:             slog.New(slog.NewJSONHandler(io.Discard, nil)),
		metadataDriver:     database.MetadataDriverSqlite,
		roundInterval:      defaultRoundInterval,
		reconcileInterval:  defaultReconcileInterval,
		shutdownTimeout:    defaultShutdownTimeout,
		autoExecuteLowRisk: true,
		runMode:            runModeServe,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. The default discards all logs
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithMetadataDriver selects the metadata store driver (sqlite or postgres)
func WithMetadataDriver(driver string, postgresDsn string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataDriver = driver
		c.postgresDsn = postgresDsn
	}
}

// WithBlobGc enables periodic value log garbage collection on the blob store
func WithBlobGc(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.blobGc = enabled
	}
}

// WithManifestPath specifies where the deployed application ids are kept
func WithManifestPath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.manifestPath = path
	}
}

// WithOperator specifies the service account that submits every on-chain call
func WithOperator(addr ledger.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.operator = addr
	}
}

// WithMempoolCapacity sets the mempool capacity (in bytes)
func WithMempoolCapacity(capacity int64) ConfigOptionFunc {
	return func(c *Config) {
		c.mempoolCapacity = capacity
	}
}

func WithGenesisRound(round uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.genesisRound = round
	}
}

// WithRoundInterval specifies how often the block producer seals a round
func WithRoundInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.roundInterval = interval
	}
}

// WithBlockProducer enables sealing rounds on a timer. Without it rounds only
// advance when sealed explicitly.
func WithBlockProducer(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.blockProducer = enabled
	}
}

// WithDeployContracts deploys a fresh set of contracts on start and
// overwrites the manifest
func WithDeployContracts(deploy bool) ConfigOptionFunc {
	return func(c *Config) {
		c.deployContracts = deploy
	}
}

// WithReconcileInterval specifies how often the block producer runs a
// reconciliation sweep. Zero disables the sweep.
func WithReconcileInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.reconcileInterval = interval
	}
}

// WithIntentExpiryRounds specifies how many rounds a recorded intent stays valid
func WithIntentExpiryRounds(rounds uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.intentExpiryRounds = rounds
	}
}

// WithAutoExecuteLowRisk allows low-risk plans to execute without approval
func WithAutoExecuteLowRisk(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.autoExecuteLowRisk = enabled
	}
}

// WithGenerator specifies the plan generator. The default is the
// deterministic fallback planner
func WithGenerator(generator planner.Generator) ConfigOptionFunc {
	return func(c *Config) {
		c.generator = generator
	}
}

// WithCertMetadata configures the certificate metadata publisher opened on start
func WithCertMetadata(cfg certmeta.Config) ConfigOptionFunc {
	return func(c *Config) {
		c.certMetadata = cfg
	}
}

// WithCertPublisher specifies an already opened certificate metadata
// publisher. It takes precedence over WithCertMetadata
func WithCertPublisher(publisher certmeta.Publisher) ConfigOptionFunc {
	return func(c *Config) {
		c.certPublisher = publisher
	}
}

func WithTracker(cfg TrackerConfig) ConfigOptionFunc {
	return func(c *Config) {
		c.tracker = cfg
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithRunMode sets the operational mode ("serve" or "dev").
// "dev" funds the operator account and deploys the contracts when no
// manifest exists yet
func WithRunMode(mode string) ConfigOptionFunc {
	return func(c *Config) {
		c.runMode = mode
	}
}
