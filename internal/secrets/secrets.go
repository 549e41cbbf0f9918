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

// Package secrets reads and writes the sops-encrypted secrets file that holds
// credentials kept out of the main config (currently the plan provider key).
package secrets

import (
	"errors"
	"fmt"
	"os"

	sopsapi "github.com/getsops/sops/v3"
	"github.com/getsops/sops/v3/aes"
	scommon "github.com/getsops/sops/v3/cmd/sops/common"
	"github.com/getsops/sops/v3/config"
	"github.com/getsops/sops/v3/decrypt"
	"github.com/getsops/sops/v3/gcpkms"
	skeys "github.com/getsops/sops/v3/keys"
	awskms "github.com/getsops/sops/v3/kms"
	jsonstore "github.com/getsops/sops/v3/stores/json"
	"github.com/getsops/sops/v3/version"
	"gopkg.in/yaml.v3"
)

const (
	envGcpKmsResourceId = "CAMPUSD_GCP_KMS_RESOURCE_ID"
	envAwsKmsKeyArns    = "CAMPUSD_AWS_KMS_KEY_ARNS"
	envAwsKmsProfile    = "CAMPUSD_AWS_KMS_PROFILE"
)

var ErrAlreadyEncrypted = errors.New("already encrypted")

// Secrets is the plaintext content of the secrets file
type Secrets struct {
	AIAPIKey string `yaml:"aiApiKey"`
}

// Load decrypts the secrets file at path and parses the YAML document inside
func Load(path string) (Secrets, error) {
	var ret Secrets
	data, err := os.ReadFile(path)
	if err != nil {
		return ret, fmt.Errorf("read secrets file: %w", err)
	}
	plain, err := Decrypt(data)
	if err != nil {
		return ret, fmt.Errorf("decrypt secrets file: %w", err)
	}
	if err := yaml.Unmarshal(plain, &ret); err != nil {
		return ret, fmt.Errorf("parse secrets file: %w", err)
	}
	return ret, nil
}

// Marshal renders secrets as the YAML document stored inside the encrypted file
func Marshal(s Secrets) ([]byte, error) {
	return yaml.Marshal(s)
}

// Save encrypts secrets and writes them to path, replacing any existing file
func Save(path string, s Secrets) error {
	plain, err := Marshal(s)
	if err != nil {
		return err
	}
	data, err := Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt secrets file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	return nil
}

func Decrypt(data []byte) ([]byte, error) {
	ret, err := decrypt.Data(data, "binary")
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Encrypt wraps data in a sops binary envelope using the KMS keys named in
// the environment
func Encrypt(data []byte) ([]byte, error) {
	storeConfig := &config.JSONBinaryStoreConfig{}
	input := jsonstore.NewBinaryStore(storeConfig)
	output := jsonstore.NewBinaryStore(storeConfig)

	branches, err := input.LoadPlainFile(data)
	if err != nil {
		return nil, fmt.Errorf("error loading data: %w", err)
	}
	for _, branch := range branches {
		for _, b := range branch {
			if b.Key == "sops" {
				return nil, ErrAlreadyEncrypted
			}
		}
	}

	keyGroups, err := masterKeyGroupsFromEnv()
	if err != nil {
		return nil, err
	}
	tree := sopsapi.Tree{
		Branches: branches,
		Metadata: sopsapi.Metadata{
			KeyGroups: keyGroups,
			Version:   version.Version,
		},
	}
	dataKey, errs := tree.GenerateDataKey()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed generating data key: %v", errs)
	}
	if err := scommon.EncryptTree(scommon.EncryptTreeOpts{
		DataKey: dataKey,
		Tree:    &tree,
		Cipher:  aes.NewCipher(),
	}); err != nil {
		return nil, fmt.Errorf("failed encrypt: %w", err)
	}
	encrypted, err := output.EmitEncryptedFile(tree)
	if err != nil {
		return nil, fmt.Errorf("failed output: %w", err)
	}
	return encrypted, nil
}

func masterKeyGroupsFromEnv() ([]sopsapi.KeyGroup, error) {
	var keyGroups []sopsapi.KeyGroup
	if rid := os.Getenv(envGcpKmsResourceId); rid != "" {
		var keys []skeys.MasterKey
		for _, k := range gcpkms.MasterKeysFromResourceIDString(rid) {
			keys = append(keys, k)
		}
		if len(keys) > 0 {
			keyGroups = append(keyGroups, keys)
		}
	}
	if arns := os.Getenv(envAwsKmsKeyArns); arns != "" {
		var keys []skeys.MasterKey
		profile := os.Getenv(envAwsKmsProfile)
		for _, k := range awskms.MasterKeysFromArnString(arns, nil, profile) {
			keys = append(keys, k)
		}
		if len(keys) > 0 {
			keyGroups = append(keyGroups, keys)
		}
	}
	if len(keyGroups) == 0 {
		return nil, fmt.Errorf(
			"sops requires at least one master key to encrypt: set %s and/or %s",
			envGcpKmsResourceId,
			envAwsKmsKeyArns,
		)
	}
	return keyGroups, nil
}
