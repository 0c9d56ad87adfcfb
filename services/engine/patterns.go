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
	"regexp"
	"sort"
	"strings"
)

// Title normalization strips file-specific tokens so the same underlying
// issue matches across commits: path-like tokens, file names with code
// extensions, "line N" references, and bare numbers.
var (
	reFileToken  = regexp.MustCompile(`[\w./\\-]*[\w-]+\.(go|py|js|jsx|ts|tsx|java|c|cc|cpp|h|hpp|rs|rb|php|cs|kt|swift|sql|sh|yaml|yml|json|toml|proto)\b(:\d+)?`)
	rePathToken  = regexp.MustCompile(`\S*/\S+`)
	reLineRef    = regexp.MustCompile(`\blines?\s*[:#]?\s*\d+(\s*-\s*\d+)?\b`)
	reBareNumber = regexp.MustCompile(`\b\d+\b`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// PatternDetectorConfig tunes cross-commit clustering.
type PatternDetectorConfig struct {
	// MinOccurrences is how many times a signature must recur before it
	// is reported as a pattern. Default: 2.
	MinOccurrences int
}

// PatternDetector clusters findings across the results of a completed
// batch by signature.
//
// # Description
//
// The signature is (dimension, normalized title): titles are lower-cased
// and stripped of file names, paths, and line numbers, so "Unbounded
// recursion in parse() at parser.go:42" and "Unbounded recursion in
// parse() at lexer.go:7" cluster together. A cluster is reported only
// when it recurs at least MinOccurrences times.
//
// # Thread Safety
//
// PatternDetector is stateless after construction and safe for
// concurrent use.
type PatternDetector struct {
	cfg PatternDetectorConfig
}

// NewPatternDetector creates a PatternDetector. A zero MinOccurrences
// falls back to 2.
func NewPatternDetector(cfg PatternDetectorConfig) *PatternDetector {
	if cfg.MinOccurrences <= 0 {
		cfg.MinOccurrences = 2
	}
	return &PatternDetector{cfg: cfg}
}

// Detect clusters findings across batch results into recurring patterns.
//
// # Outputs
//
//   - []Pattern: Patterns sorted by descending occurrence count, then
//     descending max severity among members, then signature. The slice is
//     never nil.
func (d *PatternDetector) Detect(results []*AnalysisResult) []Pattern {
	type cluster struct {
		pattern Pattern
		maxSev  Severity
		commits map[string]struct{}
	}
	clusters := make(map[string]*cluster)

	for _, res := range results {
		if res == nil {
			continue
		}
		for _, f := range res.Findings {
			sig := NormalizeSignature(f.Title)
			if sig == "" {
				continue
			}
			key := string(f.Dimension) + "\x00" + sig
			c, ok := clusters[key]
			if !ok {
				c = &cluster{
					pattern: Pattern{
						Signature:             sig,
						Dimension:             f.Dimension,
						RepresentativeFinding: f,
					},
					maxSev:  f.Severity,
					commits: make(map[string]struct{}),
				}
				clusters[key] = c
			}
			c.pattern.OccurrenceCount++
			c.commits[res.CommitHash] = struct{}{}

			// The representative is the most severe member, highest
			// confidence on ties.
			if f.Severity.Order() > c.maxSev.Order() ||
				(f.Severity.Order() == c.maxSev.Order() &&
					f.Confidence > c.pattern.RepresentativeFinding.Confidence) {
				c.pattern.RepresentativeFinding = f
			}
			if f.Severity.Order() > c.maxSev.Order() {
				c.maxSev = f.Severity
			}
		}
	}

	patterns := make([]Pattern, 0, len(clusters))
	severities := make(map[string]Severity, len(clusters))
	for _, c := range clusters {
		if c.pattern.OccurrenceCount < d.cfg.MinOccurrences {
			continue
		}
		commits := make([]string, 0, len(c.commits))
		for hash := range c.commits {
			commits = append(commits, hash)
		}
		sort.Strings(commits)
		c.pattern.ExampleCommits = commits
		patterns = append(patterns, c.pattern)
		severities[string(c.pattern.Dimension)+"\x00"+c.pattern.Signature] = c.maxSev
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].OccurrenceCount != patterns[j].OccurrenceCount {
			return patterns[i].OccurrenceCount > patterns[j].OccurrenceCount
		}
		si := severities[string(patterns[i].Dimension)+"\x00"+patterns[i].Signature]
		sj := severities[string(patterns[j].Dimension)+"\x00"+patterns[j].Signature]
		if si.Order() != sj.Order() {
			return si.Order() > sj.Order()
		}
		return patterns[i].Signature < patterns[j].Signature
	})
	return patterns
}

// NormalizeSignature lower-cases a finding title and strips file-specific
// tokens so equivalent issues in different files share a signature.
func NormalizeSignature(title string) string {
	s := strings.ToLower(title)
	s = reFileToken.ReplaceAllString(s, "")
	s = rePathToken.ReplaceAllString(s, "")
	s = reLineRef.ReplaceAllString(s, "")
	s = reBareNumber.ReplaceAllString(s, "")
	s = strings.Trim(s, " \t:;,.-@")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
