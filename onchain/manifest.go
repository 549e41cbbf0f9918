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

package onchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/algocampus/campusd/contract/attendance"
	"github.com/algocampus/campusd/contract/certificate"
	"github.com/algocampus/campusd/contract/voting"
	"github.com/algocampus/campusd/ledger"
)

var ErrAppMissing = errors.New("app id missing from manifest")

// Manifest maps contract names to deployed application ids
type Manifest map[string]uint64

// ContractKinds maps each contract name to the application kind deployed
// for it
var ContractKinds = map[string]string{
	voting.Name:      voting.Kind,
	attendance.Name:  attendance.Kind,
	certificate.Name: certificate.Kind,
}

func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read app manifest: %w", err)
	}
	var ret Manifest
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("parse app manifest %s: %w", path, err)
	}
	return ret, nil
}

// Save writes the manifest atomically
func (m Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (m Manifest) AppID(name string) (uint64, error) {
	appID, ok := m[name]
	if !ok || appID == 0 {
		return 0, fmt.Errorf("%w: %s", ErrAppMissing, name)
	}
	return appID, nil
}

// Names returns the contract names in a stable order
func (m Manifest) Names() []string {
	ret := make([]string, 0, len(m))
	for name := range m {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// DeployAll deploys one instance of every campus contract with creator as
// the immutable creator
func DeployAll(ctx context.Context, l *ledger.Ledger, creator ledger.Address) (Manifest, error) {
	ret := Manifest{}
	names := make([]string, 0, len(ContractKinds))
	for name := range ContractKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res, err := l.Deploy(ctx, creator, ContractKinds[name])
		if err != nil {
			return nil, fmt.Errorf("deploy %s: %w", name, err)
		}
		appID, ok := res.Return.(uint64)
		if !ok {
			return nil, fmt.Errorf("deploy %s: unexpected return %T", name, res.Return)
		}
		ret[name] = appID
	}
	return ret, nil
}
