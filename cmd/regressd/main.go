// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command regressd starts the commit regression analysis HTTP server.
//
// This is the main entry point for the containerized regress service.
// It reads configuration from environment variables and starts the
// server.
//
// # Environment Variables
//
//   - REGRESS_PORT: HTTP server port (default: 12310)
//   - REGRESS_STORE_PATH: BadgerDB data directory (default: ./data/regress)
//   - REGRESS_ANALYSIS_DEPTH: quick, standard, or deep (default: standard)
//   - REGRESS_LOG_LEVEL: debug, info, warn, or error (default: info)
//   - REGRESS_LOG_FILE: optional JSON log file path, in addition to stderr
//   - LLM_BACKEND_TYPE: LLM provider - ollama or openai (default: ollama)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP collector endpoint
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none
//
// # Usage
//
//	REGRESS_PORT=12310 regressd
//
//	# Or via container
//	podman-compose up regress
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianRegress/pkg/logging"
	"github.com/AleutianAI/AleutianRegress/services/server"
)

func main() {
	logger := logging.New(logging.Config{
		Level:      logging.ParseLevel(getEnvString("REGRESS_LOG_LEVEL", "info")),
		Service:    "regressd",
		FilePath:   os.Getenv("REGRESS_LOG_FILE"),
		JSONStderr: true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := server.Config{
		Port:          getEnvInt("REGRESS_PORT", 12310),
		StorePath:     getEnvString("REGRESS_STORE_PATH", "./data/regress"),
		AnalysisDepth: getEnvString("REGRESS_ANALYSIS_DEPTH", "standard"),
	}

	slog.Info("Starting regress service",
		"port", cfg.Port,
		"store_path", cfg.StorePath,
		"analysis_depth", cfg.AnalysisDepth,
	)

	svc, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create regress service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Regress service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("Invalid integer in environment, using default",
			"key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}
