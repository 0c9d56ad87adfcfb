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
	"testing"
)

func finding(dim AnalysisDimension, sev Severity, conf float64, title string, files ...string) Finding {
	return Finding{
		Dimension:     dim,
		Severity:      sev,
		Confidence:    conf,
		Title:         title,
		AffectedFiles: files,
	}
}

func TestAggregateRiskLevel(t *testing.T) {
	tests := []struct {
		name     string
		findings []Finding
		want     RiskLevel
	}{
		{
			name:     "no findings is low risk",
			findings: nil,
			want:     RiskLow,
		},
		{
			name: "single low finding",
			findings: []Finding{
				finding(DimFunctional, SeverityLow, 0.9, "unused variable", "a.go"),
			},
			want: RiskLow,
		},
		{
			name: "max severity wins without corroboration",
			findings: []Finding{
				finding(DimFunctional, SeverityLow, 0.9, "unused variable", "a.go"),
				finding(DimSecurity, SeverityHigh, 0.8, "sql injection", "db.go"),
			},
			want: RiskHigh,
		},
		{
			name: "three dimensions on one file escalate one step",
			findings: []Finding{
				finding(DimFunctional, SeverityMedium, 0.8, "nil deref", "core.go"),
				finding(DimPerformance, SeverityMedium, 0.7, "quadratic loop", "core.go"),
				finding(DimRaceCondition, SeverityHigh, 0.9, "unguarded map", "core.go"),
			},
			want: RiskCritical,
		},
		{
			name: "three dimensions on disjoint files do not escalate",
			findings: []Finding{
				finding(DimFunctional, SeverityMedium, 0.8, "nil deref", "a.go"),
				finding(DimPerformance, SeverityMedium, 0.7, "quadratic loop", "b.go"),
				finding(DimRaceCondition, SeverityHigh, 0.9, "unguarded map", "c.go"),
			},
			want: RiskHigh,
		},
		{
			name: "low severity findings never corroborate",
			findings: []Finding{
				finding(DimFunctional, SeverityLow, 0.8, "style nit", "core.go"),
				finding(DimPerformance, SeverityLow, 0.7, "minor alloc", "core.go"),
				finding(DimTestImpact, SeverityLow, 0.9, "flaky assert", "core.go"),
			},
			want: RiskLow,
		},
		{
			name: "escalation caps at critical",
			findings: []Finding{
				finding(DimSecurity, SeverityCritical, 0.95, "rce", "srv.go"),
				finding(DimFunctional, SeverityHigh, 0.9, "panic path", "srv.go"),
				finding(DimMemoryLeak, SeverityMedium, 0.8, "leaked conn", "srv.go"),
			},
			want: RiskCritical,
		},
	}

	agg := NewAggregator(DefaultAggregatorConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := agg.Aggregate("abc123", tt.findings, nil, len(AllDimensions()))
			if result.RiskLevel != tt.want {
				t.Errorf("RiskLevel = %s, want %s", result.RiskLevel, tt.want)
			}
		})
	}
}

func TestAggregateDegradation(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())

	t.Run("full degradation yields unknown risk", func(t *testing.T) {
		degraded := AllDimensions()
		result := agg.Aggregate("abc123", nil, degraded, len(degraded))
		if result.RiskLevel != RiskUnknown {
			t.Errorf("RiskLevel = %s, want %s", result.RiskLevel, RiskUnknown)
		}
		if result.ConfidenceScore != 0 {
			t.Errorf("ConfidenceScore = %v, want 0", result.ConfidenceScore)
		}
	})

	t.Run("partial degradation lowers confidence proportionally", func(t *testing.T) {
		findings := []Finding{
			finding(DimFunctional, SeverityMedium, 0.8, "nil deref", "a.go"),
		}
		full := agg.Aggregate("abc123", findings, nil, 4)
		partial := agg.Aggregate("abc123", findings, []AnalysisDimension{DimSecurity}, 4)
		if partial.ConfidenceScore >= full.ConfidenceScore {
			t.Errorf("degraded confidence %v not below full confidence %v",
				partial.ConfidenceScore, full.ConfidenceScore)
		}
		want := full.ConfidenceScore * 0.75
		if math.Abs(partial.ConfidenceScore-want) > 1e-9 {
			t.Errorf("ConfidenceScore = %v, want %v", partial.ConfidenceScore, want)
		}
	})

	t.Run("clean analysis has full confidence", func(t *testing.T) {
		result := agg.Aggregate("abc123", nil, nil, 7)
		if result.ConfidenceScore != 1.0 {
			t.Errorf("ConfidenceScore = %v, want 1.0", result.ConfidenceScore)
		}
	})
}

func TestAggregateConfidenceWeighting(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())

	// A critical finding's confidence should dominate a low finding's.
	findings := []Finding{
		finding(DimSecurity, SeverityCritical, 0.9, "rce", "srv.go"),
		finding(DimFunctional, SeverityLow, 0.1, "style nit", "a.go"),
	}
	result := agg.Aggregate("abc123", findings, nil, 7)

	// Weighted mean: (0.9*4 + 0.1*1) / (4+1) = 0.74.
	want := 0.74
	if math.Abs(result.ConfidenceScore-want) > 1e-9 {
		t.Errorf("ConfidenceScore = %v, want %v", result.ConfidenceScore, want)
	}
}

func TestAggregateEscalationConfig(t *testing.T) {
	// Raising the dimension threshold to 4 disables escalation for a
	// three-dimension pileup.
	cfg := DefaultAggregatorConfig()
	cfg.EscalationDimensions = 4
	agg := NewAggregator(cfg)

	findings := []Finding{
		finding(DimFunctional, SeverityMedium, 0.8, "nil deref", "core.go"),
		finding(DimPerformance, SeverityMedium, 0.7, "quadratic loop", "core.go"),
		finding(DimRaceCondition, SeverityHigh, 0.9, "unguarded map", "core.go"),
	}
	result := agg.Aggregate("abc123", findings, nil, 7)
	if result.RiskLevel != RiskHigh {
		t.Errorf("RiskLevel = %s, want %s", result.RiskLevel, RiskHigh)
	}
}
