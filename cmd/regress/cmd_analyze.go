// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	analyzeDims      []string
	analyzeThreshold string
	analyzeJSON      bool
	analyzeQuiet     bool
	analyzeTimeout   int
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var analyzeCmd = &cobra.Command{
	Use:   "analyze <commit>",
	Short: "Analyze a commit for regression risk",
	Long: `Analyze a single commit across the regression dimensions and print
the aggregated verdict with fix suggestions.

Examples:
  regress analyze abc1234                      # Analyze with all dimensions
  regress analyze abc1234 --dimensions security,memory_leak
  regress analyze abc1234 --threshold medium   # Fail if risk > medium
  regress analyze abc1234 --json               # JSON output for automation

Exit Codes:
  0 = Risk at or below threshold (safe to proceed)
  1 = Risk above threshold (requires review)
  2 = Error (bad input, Git failure, analysis failure)`,
	Args: cobra.ExactArgs(1),
	Run:  runAnalyzeCommand,
}

func init() {
	analyzeCmd.Flags().StringSliceVar(&analyzeDims, "dimensions", nil,
		"Comma-separated dimension subset (default: all)")
	analyzeCmd.Flags().StringVar(&analyzeThreshold, "threshold", "high",
		"Exit 0 if at/below: low, medium, high, critical")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false,
		"Output as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeQuiet, "quiet", false,
		"Only exit code, no output")
	analyzeCmd.Flags().IntVar(&analyzeTimeout, "timeout", 600,
		"Total timeout in seconds")

	rootCmd.AddCommand(analyzeCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAnalyzeCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(analyzeTimeout)*time.Second)
	defer cancel()

	dims, err := parseDimensions(analyzeDims)
	if err != nil {
		outputCLIError("Invalid dimensions", err, analyzeJSON)
		os.Exit(ExitError)
	}

	eng, _, closeAll, err := newLocalEngine()
	if err != nil {
		outputCLIError("Engine initialization failed", err, analyzeJSON)
		os.Exit(ExitError)
	}
	defer closeAll()

	result, err := eng.Analyze(ctx, engine.CommitDescriptor{
		CommitHash:     args[0],
		RepositoryPath: repoPath,
	}, dims)
	if err != nil {
		outputCLIError("Analysis failed", err, analyzeJSON)
		os.Exit(ExitError)
	}

	if !analyzeQuiet {
		if analyzeJSON {
			outputJSON(result)
		} else {
			outputAnalysisText(result)
		}
	}

	threshold := engine.ParseRiskLevel(analyzeThreshold)
	if result.RiskLevel.Exceeds(threshold) {
		os.Exit(ExitRiskFound)
	}
	os.Exit(ExitSuccess)
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

func outputCLIError(msg string, err error, asJSON bool) {
	if asJSON {
		result := map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

func outputJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(ExitError)
	}
}

func outputAnalysisText(result *engine.AnalysisResult) {
	fmt.Printf("Commit:     %s\n", result.CommitHash)
	fmt.Printf("Risk:       %s\n", result.RiskLevel)
	fmt.Printf("Confidence: %.2f\n", result.ConfidenceScore)
	if len(result.DegradedDimensions) > 0 {
		names := make([]string, len(result.DegradedDimensions))
		for i, d := range result.DegradedDimensions {
			names[i] = string(d)
		}
		fmt.Printf("Degraded:   %s\n", strings.Join(names, ", "))
	}

	if len(result.Findings) == 0 {
		fmt.Println("\nNo findings.")
		return
	}

	fmt.Printf("\nFindings (%d):\n", len(result.Findings))
	for _, f := range result.Findings {
		fmt.Printf("  [%s/%s] %s\n", f.Dimension, f.Severity, f.Title)
		if len(f.AffectedFiles) > 0 {
			fmt.Printf("      files: %s\n", strings.Join(f.AffectedFiles, ", "))
		}
	}

	if len(result.Suggestions) > 0 {
		fmt.Printf("\nSuggested fixes (%d):\n", len(result.Suggestions))
		for i, s := range result.Suggestions {
			fmt.Printf("  %d. %s (effort: %s, confidence: %.2f)\n",
				i+1, s.Title, s.EffortLevel, s.Confidence)
		}
	}
}
