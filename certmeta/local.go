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

package certmeta

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// Local writes metadata documents below a directory served by the node
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir string, baseURL string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("certmeta: local directory not set")
	}
	return &Local{dir: dir, baseURL: baseURL}, nil
}

func (l *Local) Publish(_ context.Context, certHash string, meta Metadata) (string, error) {
	data, err := encode(meta)
	if err != nil {
		return "", err
	}
	key := objectKey("", certHash)
	path := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return "", err
	}
	return publicURL(l.baseURL, key), nil
}
