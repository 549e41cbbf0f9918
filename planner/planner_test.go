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

package planner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algocampus/campusd/planner"
	"github.com/algocampus/campusd/policy"
)

func TestFallbackIsDeterministic(t *testing.T) {
	req := planner.Request{
		ActionType: policy.ActionFacultyPoll,
		Prompt:     strings.Repeat("é", 300),
		Context:    map[string]any{"course": "CS101"},
	}
	first, err := planner.Fallback{}.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := planner.Fallback{}.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, planner.FallbackName, first["provider"])
	assert.Equal(t, "faculty_poll_plan", first["action"])
	assert.Equal(t, strings.Repeat("é", 240), first["summary"])
	assert.Len(t, first["steps"], len(planner.FallbackSteps))
	assert.Equal(t, req.Context, first["context"])
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := planner.NewGemini(planner.GeminiConfig{})
	require.ErrorIs(t, err, planner.ErrMissingAPIKey)
}

func TestGeminiGenerate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		assert.Empty(t, r.URL.RawQuery)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"line one"},{"text":"line two"}]}}]}`))
	}))
	defer srv.Close()

	g, err := planner.NewGemini(planner.GeminiConfig{
		Endpoint: srv.URL,
		APIKey:   "secret",
		Model:    "test-model",
	})
	require.NoError(t, err)
	plan, err := g.Generate(context.Background(), planner.Request{
		ActionType: policy.ActionFacultySession,
		Prompt:     "weekly lab",
	})
	require.NoError(t, err)
	assert.Equal(t, "/models/test-model:generateContent", gotPath)
	assert.Equal(t, "secret", gotKey)
	require.Contains(t, gotBody, "contents")
	assert.Equal(t, planner.GeminiName, plan["provider"])
	assert.Equal(t, "line one\nline two", plan["raw"])
	assert.NotNil(t, plan["response"])
}

func TestGeminiRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()
	g, err := planner.NewGemini(planner.GeminiConfig{Endpoint: srv.URL, APIKey: "k", MaxRetries: 1})
	require.NoError(t, err)
	plan, err := g.Generate(context.Background(), planner.Request{ActionType: policy.ActionFacultyPoll})
	require.NoError(t, err)
	assert.Equal(t, "", plan["raw"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()
	g, err := planner.NewGemini(planner.GeminiConfig{Endpoint: srv.URL, APIKey: "k", MaxRetries: 3})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), planner.Request{ActionType: policy.ActionFacultyPoll})
	var httpErr *planner.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

type failingGenerator struct{}

func (failingGenerator) Name() string { return "broken" }

func (failingGenerator) Generate(context.Context, planner.Request) (map[string]any, error) {
	return nil, errors.New("provider down")
}

func TestWithFallback(t *testing.T) {
	gen := planner.WithFallback(failingGenerator{}, planner.Fallback{}, nil)
	assert.Equal(t, "broken", gen.Name())
	plan, err := gen.Generate(context.Background(), planner.Request{ActionType: policy.ActionFacultyPoll, Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, planner.FallbackName, plan["provider"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gen.Generate(ctx, planner.Request{ActionType: policy.ActionFacultyPoll})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFallbackLogOmitsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()
	g, err := planner.NewGemini(planner.GeminiConfig{
		Endpoint: endpoint,
		APIKey:   "campus-provider-key",
	})
	require.NoError(t, err)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	plan, err := planner.WithFallback(g, planner.Fallback{}, logger).Generate(
		context.Background(),
		planner.Request{ActionType: policy.ActionFacultyPoll, Prompt: "p"},
	)
	require.NoError(t, err)
	assert.Equal(t, planner.FallbackName, plan["provider"])
	require.NotEmpty(t, buf.String())
	assert.Contains(t, buf.String(), endpoint)
	assert.NotContains(t, buf.String(), "campus-provider-key")
}
