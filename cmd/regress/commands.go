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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/gitdiff"
	"github.com/AleutianAI/AleutianRegress/services/inference"
	"github.com/AleutianAI/AleutianRegress/services/policy_engine"
	"github.com/AleutianAI/AleutianRegress/services/store"
)

// Exit codes shared by all commands. CI pipelines gate on these.
const (
	ExitSuccess   = 0
	ExitRiskFound = 1
	ExitError     = 2
)

// Config holds CLI configuration loaded from regress.yaml.
type Config struct {
	// StorePath is the BadgerDB directory for persisted results.
	StorePath string `yaml:"store_path"`

	// AnalysisDepth controls prompt depth: quick, standard, deep.
	AnalysisDepth string `yaml:"analysis_depth"`

	// LLMBackend overrides LLM_BACKEND_TYPE when set.
	LLMBackend string `yaml:"llm_backend"`
}

// DefaultCLIConfig returns the configuration used when regress.yaml is
// absent.
func DefaultCLIConfig() Config {
	return Config{
		StorePath:     "./data/regress",
		AnalysisDepth: "standard",
	}
}

// --- Global Command Variables ---
var (
	configPath string
	repoPath   string
	quietLogs  bool

	rootCmd = &cobra.Command{
		Use:   "regress",
		Short: "A cli to analyze commits for regression risk",
		Long: `Regress inspects Git commits with an LLM-backed analysis engine
and reports findings, fix suggestions, and revert recommendations.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "regress.yaml",
		"Path to the CLI config file")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", ".",
		"Path to the Git repository")
	rootCmd.PersistentFlags().BoolVar(&quietLogs, "quiet-logs", true,
		"Suppress structured engine logs on stderr")
}

// newLocalEngine builds an engine wired to the configured store and LLM
// backend. The caller owns the returned close function.
func newLocalEngine() (*engine.Engine, *store.Store, func(), error) {
	logHandler := slog.NewTextHandler(os.Stderr, nil)
	if quietLogs {
		logHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		})
	}
	logger := slog.New(logHandler)

	if config.LLMBackend != "" {
		os.Setenv("LLM_BACKEND_TYPE", config.LLMBackend)
	}
	llm, err := inference.NewLLMClient()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize LLM client: %w", err)
	}
	scanner, err := policy_engine.NewPolicyEngine()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize policy engine: %w", err)
	}
	provider := inference.NewProvider(llm, inference.ProviderConfig{
		Depth:   inference.Depth(config.AnalysisDepth),
		Scanner: scanner,
	}, logger)

	storeCfg := store.DefaultConfig(config.StorePath)
	st, err := store.Open(storeCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open result store: %w", err)
	}

	metrics, err := engine.NewMetrics(otel.Meter("aleutian.regress.cli"))
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("register metrics: %w", err)
	}

	git := gitdiff.NewProvider(logger)
	eng := engine.New(git, provider, st, engine.Config{}, logger, metrics)

	closeAll := func() {
		eng.Close()
		if err := st.Close(); err != nil {
			logger.Warn("store close error", "error", err)
		}
	}
	return eng, st, closeAll, nil
}

// parseDimensions converts --dimensions values, failing fast on unknown
// names so typos do not silently narrow an analysis.
func parseDimensions(raw []string) ([]engine.AnalysisDimension, error) {
	dims := make([]engine.AnalysisDimension, 0, len(raw))
	for _, r := range raw {
		d := engine.AnalysisDimension(r)
		if !d.Valid() {
			return nil, fmt.Errorf("unknown dimension %q", r)
		}
		dims = append(dims, d)
	}
	return dims, nil
}
