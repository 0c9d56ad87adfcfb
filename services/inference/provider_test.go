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
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/policy_engine"
)

type scriptedLLM struct {
	response string
	err      error
	prompt   string
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

var testHunks = []engine.DiffHunk{{
	FilePath:   "db/query.go",
	OldRange:   engine.LineRange{Start: 10, Lines: 1},
	NewRange:   engine.LineRange{Start: 10, Lines: 1},
	OldContent: `q := "SELECT * FROM t WHERE id = ?"`,
	NewContent: `q := "SELECT * FROM t WHERE id = " + id`,
}}

func TestAnalyzeParsesFindings(t *testing.T) {
	llm := &scriptedLLM{response: `{"findings":[{
		"severity":"HIGH","confidence":0.85,"title":"sql injection",
		"description":"string concatenation in query builder",
		"affected_files":["db/query.go"],"line_numbers":[10],
		"evidence":"id concatenated into SQL"}]}`}

	p := NewProvider(llm, ProviderConfig{}, nil)
	findings, err := p.Analyze(context.Background(), engine.DimSecurity, testHunks)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("len(findings) = %d, want 1", len(findings))
	}
	f := findings[0]
	if f.Dimension != engine.DimSecurity {
		t.Errorf("Dimension = %s, want %s", f.Dimension, engine.DimSecurity)
	}
	if f.Severity != engine.SeverityHigh {
		t.Errorf("Severity = %s, want %s (case-normalized)", f.Severity, engine.SeverityHigh)
	}
	if err := engine.ValidateFinding(f); err != nil {
		t.Errorf("parsed finding fails schema validation: %v", err)
	}
	if !strings.Contains(llm.prompt, "db/query.go") {
		t.Error("prompt must contain the rendered diff")
	}
	if !strings.Contains(llm.prompt, "injection") {
		t.Error("security prompt must state the dimension focus")
	}
}

func TestAnalyzeFencedAndBareResponses(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     int
	}{
		{
			name:     "fenced object",
			response: "```json\n{\"findings\":[{\"severity\":\"low\",\"confidence\":0.4,\"title\":\"x\"}]}\n```",
			want:     1,
		},
		{
			name:     "bare array",
			response: `[{"severity":"low","confidence":0.4,"title":"x"}]`,
			want:     1,
		},
		{
			name:     "empty findings",
			response: `{"findings":[]}`,
			want:     0,
		},
		{
			name:     "empty object counts as clean",
			response: `{}`,
			want:     0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(&scriptedLLM{response: tt.response}, ProviderConfig{}, nil)
			findings, err := p.Analyze(context.Background(), engine.DimFunctional, testHunks)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if len(findings) != tt.want {
				t.Errorf("len(findings) = %d, want %d", len(findings), tt.want)
			}
		})
	}
}

func TestAnalyzeErrorClassification(t *testing.T) {
	t.Run("transport error is transient", func(t *testing.T) {
		p := NewProvider(&scriptedLLM{err: errors.New("connection refused")}, ProviderConfig{}, nil)
		_, err := p.Analyze(context.Background(), engine.DimSecurity, testHunks)
		assertProviderKind(t, err, engine.ProviderTransient)
	})

	t.Run("prose response is malformed", func(t *testing.T) {
		p := NewProvider(&scriptedLLM{response: "I found no issues in this diff."}, ProviderConfig{}, nil)
		_, err := p.Analyze(context.Background(), engine.DimSecurity, testHunks)
		assertProviderKind(t, err, engine.ProviderMalformed)
	})

	t.Run("oversized diff is rejected without a model call", func(t *testing.T) {
		llm := &scriptedLLM{response: `{"findings":[]}`}
		p := NewProvider(llm, ProviderConfig{MaxDiffBytes: 8}, nil)
		_, err := p.Analyze(context.Background(), engine.DimSecurity, testHunks)
		assertProviderKind(t, err, engine.ProviderRejected)
		if llm.prompt != "" {
			t.Error("rejected diff must not reach the model")
		}
	})
}

func assertProviderKind(t *testing.T, err error, want engine.ProviderErrorKind) {
	t.Helper()
	var perr *engine.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error %v is not a *engine.ProviderError", err)
	}
	if perr.Kind != want {
		t.Errorf("Kind = %s, want %s", perr.Kind, want)
	}
}

func TestAnalyzeRedactsSecretsBeforeModelCall(t *testing.T) {
	scanner, err := policy_engine.NewPolicyEngine()
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}

	llm := &scriptedLLM{response: `{"findings":[]}`}
	p := NewProvider(llm, ProviderConfig{Scanner: scanner}, nil)

	hunks := []engine.DiffHunk{{
		FilePath:   "config/creds.go",
		NewRange:   engine.LineRange{Start: 1, Lines: 1},
		NewContent: `key := "AKIA1234567890ABCDEF"`,
	}}
	if _, err := p.Analyze(context.Background(), engine.DimSecurity, hunks); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if strings.Contains(llm.prompt, "AKIA1234567890ABCDEF") {
		t.Error("secret reached the model prompt")
	}
	if !strings.Contains(llm.prompt, "[REDACTED:credentials]") {
		t.Error("redaction placeholder missing from prompt")
	}
}
