// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/policy_engine"
)

// ProviderConfig tunes the engine-facing adapter.
type ProviderConfig struct {
	// Depth is the reasoning depth requested from the model.
	// Default: standard.
	Depth Depth

	// MaxDiffBytes is the largest rendered diff the provider will send.
	// Oversized diffs are rejected outright rather than truncated, so the
	// caller degrades that dimension instead of analyzing a partial
	// commit. Default: 262144.
	MaxDiffBytes int

	// Scanner redacts credentials and PII from the rendered diff before
	// it reaches the model. Nil disables redaction.
	Scanner *policy_engine.PolicyEngine
}

// DefaultProviderConfig returns the standard adapter configuration.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Depth:        DepthStandard,
		MaxDiffBytes: 256 << 10,
	}
}

// Provider adapts an LLMClient to the engine.InferenceProvider contract.
//
// # Description
//
// Each Analyze call renders the commit's hunks, builds a
// dimension-specific prompt, and parses the model's JSON response into
// findings. Failures are classified for the dispatcher's retry policy:
// transport and backend errors are transient, unparseable responses are
// malformed, and oversized diffs are rejected.
//
// # Thread Safety
//
// Safe for concurrent use when the underlying LLMClient is.
type Provider struct {
	llm LLMClient
	cfg ProviderConfig
	log *slog.Logger
}

// NewProvider creates a Provider. Zero config values fall back to
// defaults; a nil logger falls back to slog.Default().
func NewProvider(llm LLMClient, cfg ProviderConfig, log *slog.Logger) *Provider {
	def := DefaultProviderConfig()
	if cfg.Depth == "" {
		cfg.Depth = def.Depth
	}
	if cfg.MaxDiffBytes <= 0 {
		cfg.MaxDiffBytes = def.MaxDiffBytes
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		llm: llm,
		cfg: cfg,
		log: log.With(slog.String("component", "inference")),
	}
}

// Analyze implements engine.InferenceProvider.
func (p *Provider) Analyze(ctx context.Context, dim engine.AnalysisDimension, hunks []engine.DiffHunk) ([]engine.Finding, error) {
	if ctx == nil {
		return nil, engine.ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "Provider.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("dimension", string(dim)),
		attribute.Int("hunks", len(hunks)),
	)

	diffText := renderHunks(hunks)
	if len(diffText) > p.cfg.MaxDiffBytes {
		return nil, engine.NewProviderError(engine.ProviderRejected, dim,
			fmt.Errorf("rendered diff is %d bytes, limit %d", len(diffText), p.cfg.MaxDiffBytes))
	}

	if p.cfg.Scanner != nil {
		redacted, scanFindings := p.cfg.Scanner.RedactContent(diffText)
		if len(scanFindings) > 0 {
			p.log.Warn("redacted sensitive content from diff",
				"dimension", dim, "matches", len(scanFindings),
				"classification", scanFindings[0].ClassificationName)
			diffText = redacted
		}
	}

	raw, err := p.llm.Generate(ctx, buildPrompt(dim, p.cfg.Depth, diffText), GenerationParams{})
	if err != nil {
		return nil, engine.NewProviderError(engine.ProviderTransient, dim, err)
	}

	findings, err := extractFindings(raw)
	if err != nil {
		p.log.Warn("unparseable model response", "dimension", dim, "error", err)
		return nil, engine.NewProviderError(engine.ProviderMalformed, dim, err)
	}

	out := make([]engine.Finding, len(findings))
	for i, f := range findings {
		out[i] = engine.Finding{
			Dimension:     dim,
			Severity:      engine.Severity(strings.ToLower(f.Severity)),
			Confidence:    f.Confidence,
			Title:         f.Title,
			Description:   f.Description,
			AffectedFiles: f.AffectedFiles,
			LineNumbers:   f.LineNumbers,
			Evidence:      f.Evidence,
		}
	}
	return out, nil
}

// rawFinding is the wire shape the prompt asks the model to produce.
type rawFinding struct {
	Severity      string   `json:"severity"`
	Confidence    float64  `json:"confidence"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	AffectedFiles []string `json:"affected_files"`
	LineNumbers   []int    `json:"line_numbers"`
	Evidence      string   `json:"evidence"`
}

// extractFindings parses the model response. Accepts the requested
// {"findings":[...]} object, a bare array, or either wrapped in a fenced
// code block; anything else is malformed.
func extractFindings(raw string) ([]rawFinding, error) {
	s := strings.TrimSpace(raw)
	if fenced := stripFence(s); fenced != "" {
		s = fenced
	}

	var wrapper struct {
		Findings []rawFinding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(s), &wrapper); err == nil && wrapper.Findings != nil {
		return wrapper.Findings, nil
	}

	var bare []rawFinding
	if err := json.Unmarshal([]byte(s), &bare); err == nil {
		return bare, nil
	}

	// An object without a findings key still counts as "clean" when it
	// parses; a model that answers {} gets an empty finding set.
	var anyObj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &anyObj); err == nil {
		if _, ok := anyObj["findings"]; !ok {
			return []rawFinding{}, nil
		}
	}
	return nil, fmt.Errorf("response is not a findings object or array")
}

// stripFence unwraps ```json ... ``` fences. Returns "" when the input
// is not fenced.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return ""
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
