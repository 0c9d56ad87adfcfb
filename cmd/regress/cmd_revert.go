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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	revertTimelineOverride bool
	revertJSON             bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var revertCmd = &cobra.Command{
	Use:   "revert <commit>",
	Short: "Recommend whether to revert an analyzed commit",
	Long: `Turn a stored analysis into a revert recommendation. The commit must
have been analyzed first (regress analyze).

Examples:
  regress revert abc1234
  regress revert abc1234 --timeline-override  # Release freeze: avoid revert
  regress revert abc1234 --json

Exit Codes:
  0 = Recommendation produced
  2 = Error (commit not analyzed, store failure)`,
	Args: cobra.ExactArgs(1),
	Run:  runRevertCommand,
}

func init() {
	revertCmd.Flags().BoolVar(&revertTimelineOverride, "timeline-override", false,
		"Caller cannot absorb a revert right now (release freeze)")
	revertCmd.Flags().BoolVar(&revertJSON, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(revertCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runRevertCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng, _, closeAll, err := newLocalEngine()
	if err != nil {
		outputCLIError("Engine initialization failed", err, revertJSON)
		os.Exit(ExitError)
	}
	defer closeAll()

	rec, err := eng.Recommend(ctx, args[0], engine.RevertConstraints{
		TimelineOverride: revertTimelineOverride,
	})
	if err != nil {
		outputCLIError("Revert recommendation failed", err, revertJSON)
		os.Exit(ExitError)
	}

	if revertJSON {
		outputJSON(rec)
		os.Exit(ExitSuccess)
	}

	fmt.Printf("Commit:   %s\n", rec.CommitHash)
	fmt.Printf("Decision: %s\n", rec.Decision)
	fmt.Printf("Why:      %s\n", rec.Rationale)
	for _, alt := range rec.AlternativeActions {
		fmt.Printf("Also consider: %s\n", alt)
	}
	os.Exit(ExitSuccess)
}
