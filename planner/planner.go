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

// Package planner produces the human-readable plan body attached to an
// intent. Plans are advisory: they are stored with the intent but never
// decide what runs on chain.
package planner

import (
	"context"
	"io"
	"log/slog"

	"github.com/algocampus/campusd/policy"
)

type Request struct {
	ActionType policy.ActionType
	Prompt     string
	Context    map[string]any
}

// Generator turns a request into a plan document
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (map[string]any, error)
}

const (
	FallbackName   = "fallback"
	maxSummaryRune = 240
)

// FallbackSteps are the steps of every deterministic plan
var FallbackSteps = []string{
	"Validate role permissions",
	"Validate payload against smart-contract constraints",
	"Submit on-chain transaction via BFF service",
	"Track transaction status and persist audit event",
}

// Fallback builds a deterministic plan without calling a provider
type Fallback struct{}

func (Fallback) Name() string {
	return FallbackName
}

func (Fallback) Generate(_ context.Context, req Request) (map[string]any, error) {
	summary := []rune(req.Prompt)
	if len(summary) > maxSummaryRune {
		summary = summary[:maxSummaryRune]
	}
	steps := make([]any, 0, len(FallbackSteps))
	for _, step := range FallbackSteps {
		steps = append(steps, step)
	}
	planCtx := req.Context
	if planCtx == nil {
		planCtx = map[string]any{}
	}
	return map[string]any{
		"provider": FallbackName,
		"action":   string(req.ActionType),
		"summary":  string(summary),
		"steps":    steps,
		"context":  planCtx,
	}, nil
}

type chain struct {
	primary  Generator
	fallback Generator
	logger   *slog.Logger
}

// WithFallback returns a generator that uses fallback whenever primary
// fails
func WithFallback(primary Generator, fallback Generator, logger *slog.Logger) Generator {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &chain{primary: primary, fallback: fallback, logger: logger}
}

func (c *chain) Name() string {
	return c.primary.Name()
}

func (c *chain) Generate(ctx context.Context, req Request) (map[string]any, error) {
	plan, err := c.primary.Generate(ctx, req)
	if err == nil {
		return plan, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c.logger.Warn(
		"plan provider failed, using fallback",
		"component", "planner",
		"provider", c.primary.Name(),
		"action_type", string(req.ActionType),
		"error", err,
	)
	return c.fallback.Generate(ctx, req)
}
