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
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS publishes metadata documents to a Google Cloud Storage bucket
type GCS struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	prefix  string
	baseURL string
}

func NewGCS(ctx context.Context, cfg Config) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("certmeta: gcs bucket not set")
	}
	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewGRPCClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("certmeta: create gcs client: %w", err)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + cfg.Bucket
	}
	return &GCS{
		client:  client,
		bucket:  client.Bucket(cfg.Bucket),
		prefix:  cfg.Prefix,
		baseURL: baseURL,
	}, nil
}

func (g *GCS) Publish(ctx context.Context, certHash string, meta Metadata) (string, error) {
	data, err := encode(meta)
	if err != nil {
		return "", err
	}
	key := objectKey(g.prefix, certHash)
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("certmeta: gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("certmeta: gcs write %s: %w", key, err)
	}
	return publicURL(g.baseURL, key), nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
