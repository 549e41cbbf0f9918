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

package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	GeminiName            = "gemini"
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel    = "gemini-1.5-flash"
	DefaultGeminiTimeout  = 20 * time.Second

	geminiMaxResponseBytes = 1 << 20
	geminiTemperature      = 0.2
	geminiMaxOutputTokens  = 800
)

var ErrMissingAPIKey = errors.New("gemini api key is not configured")

type GeminiConfig struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Gemini asks the Gemini generateContent API for a plan
type Gemini struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	timeout    time.Duration
	maxRetries int
}

func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultGeminiEndpoint
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultGeminiTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Gemini{
		httpClient: hc,
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		timeout:    timeout,
		maxRetries: max(cfg.MaxRetries, 0),
	}, nil
}

func (g *Gemini) Name() string {
	return GeminiName
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// HTTPError is a non-2xx answer from the provider
type HTTPError struct {
	Body       string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gemini: http %d: %s", e.StatusCode, e.Body)
}

func geminiPrompt(req Request) (string, error) {
	planCtx, err := json.Marshal(req.Context)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	return "You are an automation planner for an Algorand campus platform. " +
		"Return strict JSON only with keys: summary, steps, risks, suggested_payload. " +
		"Action type: " + string(req.ActionType) + ". Prompt: " + req.Prompt +
		". Context: " + string(planCtx), nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (map[string]any, error) {
	prompt, err := geminiPrompt(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     geminiTemperature,
			MaxOutputTokens: geminiMaxOutputTokens,
		},
	})
	if err != nil {
		return nil, err
	}
	raw, err := g.post(ctx, body)
	if err != nil {
		return nil, err
	}
	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	var texts []string
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			texts = append(texts, part.Text)
		}
	}
	return map[string]any{
		"provider": GeminiName,
		"raw":      strings.Join(texts, "\n"),
		"response": data,
	}, nil
}

func (g *Gemini) post(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	target := fmt.Sprintf(
		"%s/models/%s:generateContent",
		g.endpoint,
		url.PathEscape(g.model),
	)
	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		// The key stays out of the URL so transport errors never carry it
		req.Header.Set("x-goog-api-key", g.apiKey)
		resp, err := g.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, geminiMaxResponseBytes))
			_ = resp.Body.Close()
			if readErr != nil {
				return nil, readErr
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			}
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
			// Client errors other than throttling are not retried
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, lastErr
			}
		}
		if attempt < g.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}
