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
	"fmt"
	"sort"
	"strings"
)

// FixRanker turns findings into deduplicated, deterministically ordered
// fix suggestions.
//
// # Description
//
// Findings whose remediation overlaps (same affected file with an
// overlapping line range) are grouped into one suggestion so the same fix
// is never proposed twice. Suggestions are ordered by
// severity_weight / effort_weight, highest first, so cheap fixes for
// severe issues surface before expensive fixes for minor ones. Ties break
// on higher confidence, then lexical title order, which keeps the output
// stable for identical inputs.
//
// # Thread Safety
//
// FixRanker is stateless and safe for concurrent use.
type FixRanker struct{}

// NewFixRanker creates a FixRanker.
func NewFixRanker() *FixRanker {
	return &FixRanker{}
}

// fixGroup is a cluster of findings sharing a remediation site.
type fixGroup struct {
	findings []Finding
	files    map[string]struct{}
}

// Rank produces ordered fix suggestions for a finding set.
//
// Rank is deterministic: identical input finding sets always yield
// identically ordered output.
func (r *FixRanker) Rank(findings []Finding) []FixSuggestion {
	if len(findings) == 0 {
		return []FixSuggestion{}
	}

	// Canonical input order first so grouping is order-independent.
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Title != sorted[j].Title {
			return sorted[i].Title < sorted[j].Title
		}
		return sorted[i].Dimension < sorted[j].Dimension
	})

	groups := groupByRemediation(sorted)

	type ranked struct {
		suggestion FixSuggestion
		score      float64
	}
	out := make([]ranked, 0, len(groups))
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		s, maxSev := r.synthesize(g)
		key := s.Title + "\x00" + strings.Join(sortedKeys(g.files), ",")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ranked{
			suggestion: s,
			score:      float64(maxSev.Order()) / s.EffortLevel.Weight(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].suggestion.Confidence != out[j].suggestion.Confidence {
			return out[i].suggestion.Confidence > out[j].suggestion.Confidence
		}
		return out[i].suggestion.Title < out[j].suggestion.Title
	})

	suggestions := make([]FixSuggestion, len(out))
	for i, rk := range out {
		suggestions[i] = rk.suggestion
	}
	return suggestions
}

// groupByRemediation clusters findings that share an affected file with
// an overlapping line range. Findings without line numbers group on file
// identity alone; findings without files stay singleton.
func groupByRemediation(findings []Finding) []*fixGroup {
	var groups []*fixGroup
	for _, f := range findings {
		placed := false
		for _, g := range groups {
			if remediationOverlaps(g, f) {
				g.findings = append(g.findings, f)
				for _, file := range f.AffectedFiles {
					g.files[file] = struct{}{}
				}
				placed = true
				break
			}
		}
		if placed {
			continue
		}
		g := &fixGroup{findings: []Finding{f}, files: make(map[string]struct{})}
		for _, file := range f.AffectedFiles {
			g.files[file] = struct{}{}
		}
		groups = append(groups, g)
	}
	return groups
}

// remediationOverlaps reports whether f repairs the same site as g.
func remediationOverlaps(g *fixGroup, f Finding) bool {
	if len(f.AffectedFiles) == 0 {
		return false
	}
	shared := false
	for _, file := range f.AffectedFiles {
		if _, ok := g.files[file]; ok {
			shared = true
			break
		}
	}
	if !shared {
		return false
	}
	if len(f.LineNumbers) == 0 {
		return true
	}
	for _, member := range g.findings {
		if len(member.LineNumbers) == 0 {
			return true
		}
		if linesOverlap(member.LineNumbers, f.LineNumbers) {
			return true
		}
	}
	return false
}

// linesOverlap reports whether the line spans [min,max] of two findings
// intersect.
func linesOverlap(a, b []int) bool {
	aMin, aMax := minMax(a)
	bMin, bMax := minMax(b)
	return aMin <= bMax && bMin <= aMax
}

func minMax(vals []int) (int, int) {
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// synthesize builds one suggestion from a group of findings and returns
// the max severity among its members, which drives the ranking score.
func (r *FixRanker) synthesize(g *fixGroup) (FixSuggestion, Severity) {
	maxSev := SeverityLow
	maxConf := 0.0
	var descs []string
	var changes []CodeChange
	for _, f := range g.findings {
		if f.Severity.Order() > maxSev.Order() {
			maxSev = f.Severity
		}
		if f.Confidence > maxConf {
			maxConf = f.Confidence
		}
		if f.Description != "" {
			descs = append(descs, f.Description)
		}
		for _, file := range f.AffectedFiles {
			line := 0
			if len(f.LineNumbers) > 0 {
				line, _ = minMax(f.LineNumbers)
			}
			changes = append(changes, CodeChange{File: file, Line: line})
		}
	}

	title := g.findings[0].Title
	files := sortedKeys(g.files)
	effort := estimateEffort(len(files), len(g.findings))

	return FixSuggestion{
		Title:       "Fix: " + title,
		Description: strings.Join(descs, " "),
		CodeChanges: dedupeChanges(changes),
		EffortLevel: effort,
		RiskAssessment: fmt.Sprintf("addresses %s severity issue across %d file(s)",
			maxSev, len(files)),
		Confidence: maxConf,
	}, maxSev
}

// estimateEffort maps remediation spread to an effort level. A fix
// contained in one file is cheap; one spanning many files or many
// findings is not.
func estimateEffort(files, findings int) EffortLevel {
	switch {
	case files <= 1 && findings <= 2:
		return EffortLow
	case files <= 3:
		return EffortMedium
	default:
		return EffortHigh
	}
}

func dedupeChanges(changes []CodeChange) []CodeChange {
	seen := make(map[string]struct{}, len(changes))
	out := changes[:0]
	for _, c := range changes {
		key := fmt.Sprintf("%s:%d", c.File, c.Line)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
