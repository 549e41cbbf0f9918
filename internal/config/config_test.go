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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobalConfig() {
	globalConfig = DefaultConfig()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campusd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	resetGlobalConfig()
	path := writeConfig(t, `
database:
  path: /var/lib/campusd
ledger:
  roundInterval: 1s
intents:
  expiryRounds: 45
  autoExecuteLowRisk: false
tracker:
  workers: 8
certMetadata:
  backend: s3
  bucket: campus-certs
runMode: dev
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	expected := DefaultConfig()
	expected.Database.Path = "/var/lib/campusd"
	expected.Ledger.RoundInterval = time.Second
	expected.Intents.ExpiryRounds = 45
	expected.Intents.AutoExecuteLowRisk = false
	expected.Tracker.Workers = 8
	expected.CertMetadata.Backend = "s3"
	expected.CertMetadata.Bucket = "campus-certs"
	expected.RunMode = RunModeDev
	assert.Equal(t, expected, cfg)
	assert.True(t, cfg.RunMode.IsDevMode())
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	resetGlobalConfig()
	path := writeConfig(t, `
ai:
  enabled: false
  model: from-file
`)
	t.Setenv("CAMPUSD_AI_ENABLED", "true")
	t.Setenv("CAMPUSD_AI_API_KEY", "secret")
	t.Setenv("CAMPUSD_INTENTS_EXPIRY_ROUNDS", "60")
	t.Setenv("CAMPUSD_TRACKER_INTERVAL", "500ms")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, "secret", cfg.AI.APIKey)
	assert.Equal(t, "from-file", cfg.AI.Model)
	assert.Equal(t, uint64(60), cfg.Intents.ExpiryRounds)
	assert.Equal(t, 500*time.Millisecond, cfg.Tracker.Interval)
}

func TestLoad_RejectsInvalidSettings(t *testing.T) {
	for name, content := range map[string]string{
		"run mode":        "runMode: load\n",
		"metadata driver": "database:\n  metadataDriver: oracle\n",
		"postgres dsn":    "database:\n  metadataDriver: postgres\n",
		"cert backend":    "certMetadata:\n  backend: ftp\n",
		"expiry":          "intents:\n  expiryRounds: 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			resetGlobalConfig()
			_, err := LoadConfig(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}
