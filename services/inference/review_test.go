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
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

const reviewResponse = `{
	"overall_score": 82,
	"code_quality": {"score": 80, "issues": ["query built by concatenation"], "strengths": ["small focused change"], "complexity": "low"},
	"best_practices": ["uses parameterized queries elsewhere"],
	"improvements": [{"type": "security", "description": "bind the id parameter", "priority": "high", "effort": "low", "impact": "removes the injection vector"}],
	"security_issues": ["id concatenated into SQL"],
	"performance_issues": []
}`

func TestReviewParsesResponse(t *testing.T) {
	llm := &scriptedLLM{response: reviewResponse}
	p := NewProvider(llm, ProviderConfig{}, nil)

	review, err := p.Review(context.Background(), ReviewContext{
		CommitHash: "abc1234",
		Author:     "Dev One",
		Subject:    "Inline the id filter",
	}, testHunks)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if review.CommitHash != "abc1234" {
		t.Errorf("CommitHash = %q, want abc1234", review.CommitHash)
	}
	if review.OverallScore != 82 {
		t.Errorf("OverallScore = %d, want 82", review.OverallScore)
	}
	if len(review.Improvements) != 1 || review.Improvements[0].Type != "security" {
		t.Errorf("Improvements = %+v, want one security entry", review.Improvements)
	}
	if !strings.Contains(llm.prompt, "Inline the id filter") {
		t.Error("prompt must cite the commit subject")
	}
	if !strings.Contains(llm.prompt, "db/query.go") {
		t.Error("prompt must contain the rendered diff")
	}
}

func TestReviewFencedResponse(t *testing.T) {
	llm := &scriptedLLM{response: "```json\n" + reviewResponse + "\n```"}
	p := NewProvider(llm, ProviderConfig{}, nil)

	review, err := p.Review(context.Background(), ReviewContext{CommitHash: "abc1234"}, testHunks)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if review.OverallScore != 82 {
		t.Errorf("OverallScore = %d, want 82", review.OverallScore)
	}
}

func TestReviewRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose", "this commit looks fine to me"},
		{"score out of range", `{"overall_score": 180}`},
		{"array instead of object", `[{"overall_score": 50}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(&scriptedLLM{response: tt.response}, ProviderConfig{}, nil)
			if _, err := p.Review(context.Background(), ReviewContext{CommitHash: "abc1234"}, testHunks); err == nil {
				t.Error("Review must reject an unparseable response")
			}
		})
	}
}

func TestReviewNilContext(t *testing.T) {
	p := NewProvider(&scriptedLLM{}, ProviderConfig{}, nil)
	if _, err := p.Review(nil, ReviewContext{}, testHunks); err != engine.ErrNilContext {
		t.Errorf("err = %v, want ErrNilContext", err)
	}
}
