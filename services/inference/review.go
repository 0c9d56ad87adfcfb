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
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

// ReviewContext carries the commit metadata the review prompt cites so
// the model can reason about intent, not just the raw hunks.
type ReviewContext struct {
	CommitHash string `json:"commit_hash"`
	Author     string `json:"author"`
	Subject    string `json:"subject"`
}

// CodeQuality is the model's structural assessment of the change.
type CodeQuality struct {
	Score      int      `json:"score"`
	Issues     []string `json:"issues"`
	Strengths  []string `json:"strengths"`
	Complexity string   `json:"complexity"`
}

// ReviewImprovement is one concrete suggestion from the review.
type ReviewImprovement struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Effort      string `json:"effort"`
	Impact      string `json:"impact"`
}

// CodeReview is the full qualitative review of one commit. Scores are
// on a 0-100 scale.
type CodeReview struct {
	CommitHash        string              `json:"commit_hash"`
	OverallScore      int                 `json:"overall_score"`
	CodeQuality       CodeQuality         `json:"code_quality"`
	BestPractices     []string            `json:"best_practices"`
	Improvements      []ReviewImprovement `json:"improvements"`
	SecurityIssues    []string            `json:"security_issues"`
	PerformanceIssues []string            `json:"performance_issues"`
}

// Review produces a qualitative code review for one commit's hunks.
//
// # Description
//
// Unlike Analyze, which hunts for regressions along a single dimension,
// Review assesses the change as a whole: quality, adherence to good
// practice, and improvement opportunities. The same size limit and
// redaction policy apply to the rendered diff.
//
// # Inputs
//
//   - ctx: Context for the model call. Must not be nil.
//   - rc: Commit metadata cited in the prompt.
//   - hunks: The commit's diff hunks.
//
// # Outputs
//
//   - *CodeReview: The parsed review with CommitHash filled in.
//   - error: Non-nil on oversized diffs, model failures, or responses
//     that do not parse as a review object.
func (p *Provider) Review(ctx context.Context, rc ReviewContext, hunks []engine.DiffHunk) (*CodeReview, error) {
	if ctx == nil {
		return nil, engine.ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "Provider.Review")
	defer span.End()
	span.SetAttributes(
		attribute.String("commit.hash", rc.CommitHash),
		attribute.Int("hunks", len(hunks)),
	)

	diffText := renderHunks(hunks)
	if len(diffText) > p.cfg.MaxDiffBytes {
		return nil, fmt.Errorf("rendered diff is %d bytes, limit %d", len(diffText), p.cfg.MaxDiffBytes)
	}

	if p.cfg.Scanner != nil {
		redacted, scanFindings := p.cfg.Scanner.RedactContent(diffText)
		if len(scanFindings) > 0 {
			p.log.Warn("redacted sensitive content from diff",
				"commit", rc.CommitHash, "matches", len(scanFindings),
				"classification", scanFindings[0].ClassificationName)
			diffText = redacted
		}
	}

	raw, err := p.llm.Generate(ctx, buildReviewPrompt(rc, diffText), GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("review generation: %w", err)
	}

	review, err := extractReview(raw)
	if err != nil {
		p.log.Warn("unparseable review response", "commit", rc.CommitHash, "error", err)
		return nil, err
	}
	review.CommitHash = rc.CommitHash
	return review, nil
}

// extractReview parses the model response into a CodeReview. Accepts a
// bare JSON object or one wrapped in a fenced code block.
func extractReview(raw string) (*CodeReview, error) {
	s := strings.TrimSpace(raw)
	if fenced := stripFence(s); fenced != "" {
		s = fenced
	}

	var review CodeReview
	if err := json.Unmarshal([]byte(s), &review); err != nil {
		return nil, fmt.Errorf("response is not a review object: %w", err)
	}
	if review.OverallScore < 0 || review.OverallScore > 100 {
		return nil, fmt.Errorf("overall_score %d outside 0-100", review.OverallScore)
	}
	return &review, nil
}
