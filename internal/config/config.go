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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "campusd.config"

const (
	DefaultShutdownTimeout = 30 * time.Second
	DefaultOperator        = "campusd-operator"
	envPrefix              = "campusd"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// RunMode represents the operational mode of the campusd node
type RunMode string

const (
	RunModeServe RunMode = "serve" // Seal rounds on a timer and serve metrics (default)
	RunModeDev   RunMode = "dev"   // Like serve, plus a funded operator and contracts deployed on start
)

// Valid returns true if the RunMode is a known valid mode
func (m RunMode) Valid() bool {
	switch m {
	case RunModeServe, RunModeDev, "":
		return true
	default:
		return false
	}
}

// IsDevMode returns true if the mode enables development behaviors
// (operator funding, automatic contract deployment)
func (m RunMode) IsDevMode() bool {
	return m == RunModeDev
}

type DatabaseConfig struct {
	Path           string `yaml:"path"`
	MetadataDriver string `yaml:"metadataDriver" split_words:"true"`
	PostgresDsn    string `yaml:"postgresDsn"    split_words:"true"`
	BlobGc         bool   `yaml:"blobGc"         split_words:"true"`
}

type LedgerConfig struct {
	RoundInterval   time.Duration `yaml:"roundInterval"   split_words:"true"`
	MempoolCapacity int64         `yaml:"mempoolCapacity" split_words:"true"`
	GenesisRound    uint64        `yaml:"genesisRound"    split_words:"true"`
}

type IntentsConfig struct {
	ExpiryRounds       uint64 `yaml:"expiryRounds"       split_words:"true"`
	AutoExecuteLowRisk bool   `yaml:"autoExecuteLowRisk" split_words:"true"`
}

type AIConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"apiKey"     envconfig:"API_KEY"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"maxRetries" split_words:"true"`
	Enabled    bool          `yaml:"enabled"`
}

type TrackerConfig struct {
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queueSize"   split_words:"true"`
	MaxAttempts uint          `yaml:"maxAttempts" split_words:"true"`
	Interval    time.Duration `yaml:"interval"`
}

type CertMetadataConfig struct {
	Backend         string `yaml:"backend"`
	Dir             string `yaml:"dir"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	BaseURL         string `yaml:"baseUrl"         envconfig:"BASE_URL"`
	Region          string `yaml:"region"`
	CredentialsFile string `yaml:"credentialsFile" split_words:"true"`
}

type Config struct {
	Database          DatabaseConfig     `yaml:"database"`
	Ledger            LedgerConfig       `yaml:"ledger"`
	Intents           IntentsConfig      `yaml:"intents"`
	AI                AIConfig           `yaml:"ai"                envconfig:"AI"`
	Tracker           TrackerConfig      `yaml:"tracker"`
	CertMetadata      CertMetadataConfig `yaml:"certMetadata"      split_words:"true"`
	Operator          string             `yaml:"operator"`
	ManifestPath      string             `yaml:"manifestPath"      split_words:"true"`
	SecretsFile       string             `yaml:"secretsFile"       split_words:"true"`
	MetricsBindAddr   string             `yaml:"metricsBindAddr"   split_words:"true"`
	RunMode           RunMode            `yaml:"runMode"           split_words:"true"`
	ReconcileInterval time.Duration      `yaml:"reconcileInterval" split_words:"true"`
	ShutdownTimeout   time.Duration      `yaml:"shutdownTimeout"   split_words:"true"`
	MetricsPort       uint               `yaml:"metricsPort"       split_words:"true"`
	Tracing           bool               `yaml:"tracing"`
	TracingStdout     bool               `yaml:"tracingStdout"     split_words:"true"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           ".campusd",
			MetadataDriver: "sqlite",
		},
		Ledger: LedgerConfig{
			RoundInterval:   4 * time.Second,
			MempoolCapacity: 1048576,
			GenesisRound:    1,
		},
		Intents: IntentsConfig{
			ExpiryRounds:       30,
			AutoExecuteLowRisk: true,
		},
		AI: AIConfig{
			Provider: "gemini",
			Model:    "gemini-1.5-flash",
			Timeout:  20 * time.Second,
		},
		Tracker: TrackerConfig{
			Workers:     4,
			QueueSize:   1024,
			MaxAttempts: 30,
			Interval:    2 * time.Second,
		},
		CertMetadata: CertMetadataConfig{
			Backend: "local",
			Dir:     ".campusd/public",
			BaseURL: "http://localhost:8000",
		},
		Operator:          DefaultOperator,
		ManifestPath:      ".campusd/apps.json",
		MetricsBindAddr:   "0.0.0.0",
		MetricsPort:       12799,
		RunMode:           RunModeServe,
		ReconcileInterval: time.Minute,
		ShutdownTimeout:   DefaultShutdownTimeout,
	}
}

var globalConfig = DefaultConfig()

// LoadConfig overlays the YAML config file and CAMPUSD_* environment
// variables onto the defaults. With no file given, ~/.campusd/campusd.yaml
// and then /etc/campusd/campusd.yaml are tried.
func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".campusd", "campusd.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/campusd/campusd.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	if globalConfig.RunMode == "" {
		globalConfig.RunMode = RunModeServe
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}

// Validate rejects settings the node cannot start with
func (c *Config) Validate() error {
	var errs []error
	if !c.RunMode.Valid() {
		errs = append(errs, fmt.Errorf(
			"invalid runMode: %q (must be 'serve' or 'dev')",
			c.RunMode,
		))
	}
	switch c.Database.MetadataDriver {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("invalid metadata driver: %q", c.Database.MetadataDriver))
	}
	if c.Database.MetadataDriver == "postgres" && c.Database.PostgresDsn == "" {
		errs = append(errs, errors.New("postgres metadata driver requires postgresDsn"))
	}
	switch c.CertMetadata.Backend {
	case "", "local", "gcs", "s3":
	default:
		errs = append(errs, fmt.Errorf("invalid certificate metadata backend: %q", c.CertMetadata.Backend))
	}
	if c.Ledger.RoundInterval <= 0 {
		errs = append(errs, errors.New("ledger roundInterval must be positive"))
	}
	if c.Intents.ExpiryRounds == 0 {
		errs = append(errs, errors.New("intents expiryRounds must be positive"))
	}
	return errors.Join(errs...)
}
