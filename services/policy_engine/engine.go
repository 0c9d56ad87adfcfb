// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy_engine classifies and redacts sensitive content in diff
// text before it leaves the process. Commit diffs routinely contain
// credentials committed by mistake; the inference provider runs every
// rendered diff through this engine before handing it to an LLM backend.
package policy_engine

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianRegress/services/policy_engine/enforcement"
)

// PolicyEngine serves as the main entry point for data classification
// operations. It holds the compiled rules and provides methods to scan
// content against them.
type PolicyEngine struct {
	Classifiers []Classification
}

// NewPolicyEngine initializes a new instance of the PolicyEngine.
//
// It automatically loads the policy definitions embedded in the binary
// via the enforcement package:
// 1. Unmarshals the embedded YAML data.
// 2. Compiles all regex patterns.
// 3. Sorts classifications by priority.
//
// Returns an error if the embedded YAML is malformed or contains invalid
// regex.
func NewPolicyEngine() (*PolicyEngine, error) {
	var classificationFile PolicyEngineClassificationFile
	if err := yaml.Unmarshal(enforcement.DataClassificationPatterns, &classificationFile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded policy file: %w", err)
	}

	// Compile the regex patterns for performance and sort by priority
	if err := classificationFile.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile a regex %w", err)
	}

	classificationFile.SortByPriority()

	return &PolicyEngine{Classifiers: classificationFile.ClassificationPatterns}, nil
}

// ClassifyData performs a quick boolean check on a byte slice to
// determine its classification.
//
// It iterates through classifications by priority and returns the name
// of the first classification that matches the data. If no match is
// found, it returns "public".
func (e *PolicyEngine) ClassifyData(data []byte) string {
	for _, classifier := range e.Classifiers {
		for _, re := range classifier.CompiledPatterns {
			if re.Match(data) {
				return classifier.Name
			}
		}
	}
	return "public"
}

// ScanContent performs a comprehensive audit of a string.
//
// It splits the content into lines and checks every line against every
// pattern in the engine, capturing line numbers and the specific text
// that triggered each match.
func (e *PolicyEngine) ScanContent(content string) []ScanFinding {
	var findings []ScanFinding
	lines := strings.Split(content, "\n")
	for lineNum, line := range lines {
		for _, classifier := range e.Classifiers {
			for _, pattern := range classifier.Patterns {
				match := pattern.compiledPattern.FindString(line)
				if match != "" {
					findings = append(findings, ScanFinding{
						LineNumber:         lineNum + 1,
						MatchedContent:     strings.TrimSpace(match),
						ClassificationName: classifier.Name,
						PatternId:          pattern.Id,
						PatternDescription: pattern.Description,
						Confidence:         pattern.Confidence,
					})
				}
			}
		}
	}
	return findings
}

// RedactContent replaces every pattern match in content with a
// placeholder naming its classification, and reports what was redacted.
//
// The redacted text is safe to forward to an external inference backend;
// the placeholders keep the line structure intact so reported line
// numbers still line up with the original diff.
func (e *PolicyEngine) RedactContent(content string) (string, []ScanFinding) {
	findings := e.ScanContent(content)
	if len(findings) == 0 {
		return content, nil
	}
	for _, classifier := range e.Classifiers {
		placeholder := "[REDACTED:" + classifier.Name + "]"
		for _, re := range classifier.CompiledPatterns {
			content = re.ReplaceAllString(content, placeholder)
		}
	}
	return content, findings
}
