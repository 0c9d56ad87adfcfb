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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

// Depth controls how much reasoning the model is asked to spend on one
// dimension.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// dimensionFocus tells the model what to look for per dimension.
var dimensionFocus = map[engine.AnalysisDimension]string{
	engine.DimFunctional:    "behavioral regressions: changed return values, inverted conditions, dropped error handling, altered control flow",
	engine.DimPerformance:   "performance regressions: added allocations in hot paths, new O(n^2) loops, removed caching, synchronous calls added to loops",
	engine.DimSecurity:      "security regressions: injection vectors, weakened validation, removed auth checks, secrets in code, unsafe deserialization",
	engine.DimTestImpact:    "test impact: assertions weakened or deleted, coverage removed, flaky timing dependencies introduced",
	engine.DimCompatibility: "compatibility breaks: changed public signatures, renamed exported symbols, altered wire or storage formats, removed fields",
	engine.DimMemoryLeak:    "memory leaks: resources opened but not closed, goroutines without exit paths, unbounded caches or slices retained",
	engine.DimRaceCondition: "race conditions: shared state accessed without synchronization, locks dropped or narrowed, check-then-act windows",
}

var depthInstructions = map[Depth]string{
	DepthQuick:    "Scan quickly. Report only issues you are confident about.",
	DepthStandard: "Examine each hunk. Report issues with concrete evidence from the diff.",
	DepthDeep:     "Reason through each hunk's interaction with the surrounding code. Report subtle issues and explain the failure path.",
}

// buildPrompt renders the analysis prompt for one dimension over a
// commit's hunks.
func buildPrompt(dim engine.AnalysisDimension, depth Depth, diffText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following commit diff for %s.\n", dimensionFocus[dim])
	b.WriteString(depthInstructions[depth])
	b.WriteString("\n\nRespond with a JSON object of the form:\n")
	b.WriteString(`{"findings":[{"severity":"low|medium|high|critical","confidence":0.0,"title":"...","description":"...","affected_files":["..."],"line_numbers":[1],"evidence":"..."}]}`)
	b.WriteString("\nReport an empty findings array when the diff is clean for this dimension. Do not invent issues.\n\n")
	b.WriteString("Diff:\n")
	b.WriteString(diffText)
	return b.String()
}

// buildReviewPrompt renders the whole-commit review prompt.
func buildReviewPrompt(rc ReviewContext, diffText string) string {
	var b strings.Builder
	b.WriteString("Review the following commit as a senior engineer. Assess code quality, adherence to good practice, and improvement opportunities.\n\n")
	fmt.Fprintf(&b, "Commit: %s\nAuthor: %s\nSubject: %s\n\n", rc.CommitHash, rc.Author, rc.Subject)
	b.WriteString("Respond with a JSON object of the form:\n")
	b.WriteString(`{"overall_score":0,"code_quality":{"score":0,"issues":["..."],"strengths":["..."],"complexity":"low|medium|high"},"best_practices":["..."],"improvements":[{"type":"refactoring|optimization|security|documentation","description":"...","priority":"low|medium|high","effort":"low|medium|high","impact":"..."}],"security_issues":["..."],"performance_issues":["..."]}`)
	b.WriteString("\nScores are 0-100. Use empty arrays for categories with nothing to report. Base every point on the diff.\n\n")
	b.WriteString("Diff:\n")
	b.WriteString(diffText)
	return b.String()
}

// renderHunks flattens diff hunks into the textual form fed to the
// model.
func renderHunks(hunks []engine.DiffHunk) string {
	var b strings.Builder
	for _, h := range hunks {
		fmt.Fprintf(&b, "--- %s (old lines %d-%d)\n", h.FilePath,
			h.OldRange.Start, h.OldRange.Start+h.OldRange.Lines-1)
		if h.OldContent != "" {
			b.WriteString(h.OldContent)
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "+++ %s (new lines %d-%d)\n", h.FilePath,
			h.NewRange.Start, h.NewRange.Start+h.NewRange.Lines-1)
		if h.NewContent != "" {
			b.WriteString(h.NewContent)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
