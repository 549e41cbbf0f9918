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

// Package certmeta builds ARC-3 certificate metadata and publishes it where
// the minted asset's URL can point to
package certmeta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
	BackendS3    = "s3"

	objectPathPrefix = "metadata/cert/"
)

var ErrUnknownBackend = errors.New("unknown certificate metadata backend")

// Certificate holds the off-chain certificate fields
type Certificate struct {
	Recipient     string
	RecipientName string
	CourseCode    string
	Title         string
	Description   string
	IssuedTs      uint64
}

// Metadata is an ARC-3 asset metadata document
type Metadata struct {
	Properties  Properties `json:"properties"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
}

type Properties struct {
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipient_name"`
	CourseCode    string `json:"course_code"`
	IssuedTs      uint64 `json:"issued_ts"`
}

// Build renders the metadata document for a certificate
func Build(cert Certificate) Metadata {
	description := cert.Description
	if description == "" {
		description = "AlgoCampus certificate for " + cert.CourseCode
	}
	return Metadata{
		Name:        "Certificate: " + cert.Title,
		Description: description,
		Properties: Properties{
			Recipient:     cert.Recipient,
			RecipientName: cert.RecipientName,
			CourseCode:    cert.CourseCode,
			IssuedTs:      cert.IssuedTs,
		},
	}
}

// Publisher stores a metadata document under the certificate hash and
// returns its public URL
type Publisher interface {
	Publish(ctx context.Context, certHash string, meta Metadata) (string, error)
}

type Config struct {
	Backend         string
	Dir             string
	Bucket          string
	Prefix          string
	BaseURL         string
	Region          string
	CredentialsFile string
}

// New opens the publisher selected by cfg.Backend
func New(ctx context.Context, cfg Config) (Publisher, error) {
	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocal(cfg.Dir, cfg.BaseURL)
	case BackendGCS:
		return NewGCS(ctx, cfg)
	case BackendS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}

func encode(meta Metadata) ([]byte, error) {
	return json.Marshal(meta)
}

func objectKey(prefix string, certHash string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return prefix + objectPathPrefix + certHash + ".json"
}

func publicURL(baseURL string, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + key
}
