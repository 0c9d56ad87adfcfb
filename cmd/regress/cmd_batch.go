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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/gitdiff"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	batchFrom        string
	batchTo          string
	batchDims        []string
	batchConcurrency int
	batchFailFast    bool
	batchPatterns    bool
	batchJSON        bool
	batchThreshold   string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var batchCmd = &cobra.Command{
	Use:   "batch [commits...]",
	Short: "Analyze a set of commits and detect recurring patterns",
	Long: `Analyze several commits as one batch job, streaming progress as
commits finish. With --from/--to the commit list is resolved from the
repository's history instead of the argument list.

Examples:
  regress batch abc1234 def5678 0badf00
  regress batch --from v1.2.0 --to HEAD
  regress batch --from main --to HEAD --patterns  # Report recurring findings
  regress batch abc1234 def5678 --fail-fast       # Stop on first failure

Exit Codes:
  0 = Batch completed, no commit above threshold
  1 = At least one commit above threshold
  2 = Error (batch failed or was cancelled)`,
	Run: runBatchCommand,
}

func init() {
	batchCmd.Flags().StringVar(&batchFrom, "from", "",
		"Start of commit range (exclusive)")
	batchCmd.Flags().StringVar(&batchTo, "to", "",
		"End of commit range (inclusive)")
	batchCmd.Flags().StringSliceVar(&batchDims, "dimensions", nil,
		"Comma-separated dimension subset (default: all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2,
		"Number of commits analyzed in parallel")
	batchCmd.Flags().BoolVar(&batchFailFast, "fail-fast", false,
		"Stop scheduling new commits after the first failure")
	batchCmd.Flags().BoolVar(&batchPatterns, "patterns", false,
		"Report finding patterns recurring across commits")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false,
		"Output as JSON")
	batchCmd.Flags().StringVar(&batchThreshold, "threshold", "high",
		"Exit 0 if every commit is at/below: low, medium, high, critical")

	rootCmd.AddCommand(batchCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runBatchCommand(cmd *cobra.Command, args []string) {
	dims, err := parseDimensions(batchDims)
	if err != nil {
		outputCLIError("Invalid dimensions", err, batchJSON)
		os.Exit(ExitError)
	}

	eng, _, closeAll, err := newLocalEngine()
	if err != nil {
		outputCLIError("Engine initialization failed", err, batchJSON)
		os.Exit(ExitError)
	}
	defer closeAll()

	hashes := args
	if len(hashes) == 0 && batchFrom != "" && batchTo != "" {
		git := gitdiff.NewProvider(nil)
		hashes, err = git.ListCommitRange(context.Background(), repoPath, batchFrom, batchTo)
		if err != nil {
			outputCLIError("Failed to resolve commit range", err, batchJSON)
			os.Exit(ExitError)
		}
	}
	if len(hashes) == 0 {
		outputCLIError("No commits to analyze",
			fmt.Errorf("pass commit hashes or --from/--to"), batchJSON)
		os.Exit(ExitError)
	}

	commits := make([]engine.CommitDescriptor, len(hashes))
	for i, hash := range hashes {
		commits[i] = engine.CommitDescriptor{
			CommitHash:     hash,
			RepositoryPath: repoPath,
		}
	}

	jobID, err := eng.SubmitBatch(context.Background(), commits, engine.BatchOptions{
		Dimensions:  dims,
		Concurrency: batchConcurrency,
		FailFast:    batchFailFast,
	})
	if err != nil {
		outputCLIError("Batch submission failed", err, batchJSON)
		os.Exit(ExitError)
	}

	// Ctrl-C cancels the job cooperatively; in-flight commits finish.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nCancelling batch...")
		eng.CancelBatch(jobID)
	}()

	final := watchBatch(eng, jobID)
	signal.Stop(sigCh)

	if batchJSON {
		outputJSON(final)
	}

	if final.State != engine.JobCompleted {
		if !batchJSON {
			fmt.Fprintf(os.Stderr, "Batch finished in state %s\n", final.State)
		}
		os.Exit(ExitError)
	}

	if batchPatterns {
		reportPatterns(eng, jobID)
	}

	os.Exit(batchExitCode(eng, jobID))
}

// watchBatch streams progress snapshots to stderr until the job reaches
// a terminal state, returning the final snapshot.
func watchBatch(eng *engine.Engine, jobID string) engine.BatchProgress {
	var last engine.BatchProgress

	progress, cancel, err := eng.WatchBatch(jobID)
	if err != nil {
		// Job may already be terminal; fall back to a single poll.
		last, _ = eng.PollBatch(jobID)
		return last
	}
	defer cancel()

	for snapshot := range progress {
		last = snapshot
		if !batchJSON {
			fmt.Fprintf(os.Stderr, "\r%d/%d analyzed, %d failed",
				snapshot.Completed, snapshot.Total, snapshot.Failed)
		}
	}
	if !batchJSON {
		fmt.Fprintln(os.Stderr)
	}
	return last
}

func reportPatterns(eng *engine.Engine, jobID string) {
	patterns, err := eng.DetectPatterns(jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pattern detection failed: %v\n", err)
		return
	}
	if batchJSON {
		outputJSON(map[string]any{"patterns": patterns})
		return
	}
	if len(patterns) == 0 {
		fmt.Println("No recurring patterns.")
		return
	}
	fmt.Printf("Recurring patterns (%d):\n", len(patterns))
	for _, p := range patterns {
		fmt.Printf("  [%s] %q seen in %d commits\n",
			p.Dimension, p.RepresentativeFinding.Title, p.OccurrenceCount)
	}
}

// batchExitCode checks every successful result against the threshold.
func batchExitCode(eng *engine.Engine, jobID string) int {
	results, err := eng.BatchResults(jobID)
	if err != nil {
		return ExitError
	}
	threshold := engine.ParseRiskLevel(batchThreshold)
	for _, r := range results {
		if r.RiskLevel.Exceeds(threshold) {
			if !batchJSON {
				fmt.Printf("Commit %s exceeds threshold: %s\n", r.CommitHash, r.RiskLevel)
			}
			return ExitRiskFound
		}
	}
	return ExitSuccess
}
