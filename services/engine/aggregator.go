// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"math"
	"time"
)

// AggregatorConfig tunes the risk scoring algorithm.
//
// The escalation rule generalizes a corroboration heuristic: when several
// independent dimensions flag the same files, the change is riskier than
// the worst single finding suggests. The exact threshold is configurable
// because the weighting may need calibration against real data.
type AggregatorConfig struct {
	// EscalationDimensions is how many distinct dimensions must report
	// severity >= EscalationSeverity on overlapping files before the risk
	// level is raised one step. Default: 3.
	EscalationDimensions int

	// EscalationSeverity is the minimum severity a finding must have to
	// count toward escalation. Default: medium.
	EscalationSeverity Severity

	// RequireFileOverlap requires the corroborating dimensions to touch
	// at least one common file. When false, dimension count alone
	// triggers escalation. Default: true.
	RequireFileOverlap bool
}

// DefaultAggregatorConfig returns the standard scoring configuration.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		EscalationDimensions: 3,
		EscalationSeverity:   SeverityMedium,
		RequireFileOverlap:   true,
	}
}

// Aggregator folds per-dimension findings into a single AnalysisResult.
//
// # Thread Safety
//
// Aggregator is stateless after construction and safe for concurrent use.
type Aggregator struct {
	cfg AggregatorConfig
}

// NewAggregator creates an Aggregator. Zero values in cfg fall back to
// the defaults.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	def := DefaultAggregatorConfig()
	if cfg.EscalationDimensions <= 0 {
		cfg.EscalationDimensions = def.EscalationDimensions
	}
	if cfg.EscalationSeverity.Order() == 0 {
		cfg.EscalationSeverity = def.EscalationSeverity
	}
	return &Aggregator{cfg: cfg}
}

// Aggregate computes the risk verdict for one commit.
//
// # Description
//
// The risk level is the maximum severity among findings, escalated one
// step (capped at critical) when EscalationDimensions or more distinct
// dimensions report severity >= EscalationSeverity on overlapping files.
// The confidence score is the severity-weighted mean of per-finding
// confidence, scaled down by (1 - degraded_fraction). A fully degraded
// analysis yields RiskUnknown with confidence zero: incomplete analysis
// is penalized rather than presented as false certainty.
//
// # Inputs
//
//   - commitHash: The commit identity carried into the result.
//   - findings: Findings from all non-degraded dimensions.
//   - degraded: Dimensions whose results could not be obtained reliably.
//   - requested: Total number of dimensions requested (>= len(degraded)).
//
// # Outputs
//
//   - AnalysisResult: Immutable aggregate. Suggestions are left empty;
//     the caller attaches FixRanker output before caching.
func (a *Aggregator) Aggregate(
	commitHash string,
	findings []Finding,
	degraded []AnalysisDimension,
	requested int,
) AnalysisResult {
	result := AnalysisResult{
		CommitHash:         commitHash,
		Findings:           findings,
		Suggestions:        []FixSuggestion{},
		DegradedDimensions: degraded,
		ComputedAt:         time.Now().UTC(),
	}
	if findings == nil {
		result.Findings = []Finding{}
	}
	if degraded == nil {
		result.DegradedDimensions = []AnalysisDimension{}
	}

	degradedFraction := 0.0
	if requested > 0 {
		degradedFraction = float64(len(degraded)) / float64(requested)
	}

	// Full degradation: nothing reliable was observed.
	if requested > 0 && len(degraded) >= requested {
		result.RiskLevel = RiskUnknown
		result.ConfidenceScore = 0
		return result
	}

	result.RiskLevel = a.riskLevel(findings)
	result.ConfidenceScore = a.confidence(findings, degradedFraction)
	return result
}

// riskLevel computes max severity plus the corroboration escalation.
func (a *Aggregator) riskLevel(findings []Finding) RiskLevel {
	if len(findings) == 0 {
		return RiskLow
	}

	maxSev := SeverityLow
	for _, f := range findings {
		if f.Severity.Order() > maxSev.Order() {
			maxSev = f.Severity
		}
	}
	level := riskFromSeverity(maxSev)

	if a.corroborated(findings) {
		level = escalate(level)
	}
	return level
}

// corroborated reports whether enough independent dimensions flagged
// overlapping files at or above the escalation severity.
func (a *Aggregator) corroborated(findings []Finding) bool {
	if !a.cfg.RequireFileOverlap {
		dims := make(map[AnalysisDimension]struct{})
		for _, f := range findings {
			if f.Severity.Order() >= a.cfg.EscalationSeverity.Order() {
				dims[f.Dimension] = struct{}{}
			}
		}
		return len(dims) >= a.cfg.EscalationDimensions
	}

	// Per file, the set of dimensions that flagged it.
	byFile := make(map[string]map[AnalysisDimension]struct{})
	for _, f := range findings {
		if f.Severity.Order() < a.cfg.EscalationSeverity.Order() {
			continue
		}
		for _, file := range f.AffectedFiles {
			dims, ok := byFile[file]
			if !ok {
				dims = make(map[AnalysisDimension]struct{})
				byFile[file] = dims
			}
			dims[f.Dimension] = struct{}{}
		}
	}
	for _, dims := range byFile {
		if len(dims) >= a.cfg.EscalationDimensions {
			return true
		}
	}
	return false
}

// confidence computes the severity-weighted mean of finding confidence,
// scaled by completeness. A clean analysis (no findings) is fully
// confident in its low verdict before the degradation penalty.
func (a *Aggregator) confidence(findings []Finding, degradedFraction float64) float64 {
	base := 1.0
	if len(findings) > 0 {
		var sum, weight float64
		for _, f := range findings {
			w := float64(f.Severity.Order())
			sum += clamp01(f.Confidence) * w
			weight += w
		}
		if weight > 0 {
			base = sum / weight
		}
	}
	return clamp01(base * (1 - degradedFraction))
}

// clamp01 clamps v into [0,1].
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
