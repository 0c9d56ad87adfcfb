// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server assembles the commit regression analysis service: the
// decision engine, the Badger-backed result store, the Git diff
// provider, the LLM inference provider, and the HTTP surface that ties
// them together.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/gitdiff"
	"github.com/AleutianAI/AleutianRegress/services/inference"
	"github.com/AleutianAI/AleutianRegress/services/policy_engine"
	"github.com/AleutianAI/AleutianRegress/services/server/routes"
	"github.com/AleutianAI/AleutianRegress/services/server/telemetry"
	"github.com/AleutianAI/AleutianRegress/services/store"
)

// Config holds server configuration options.
//
// # Description
//
// Config centralizes all configuration for the regress service. Values
// can be populated from environment variables, config files, or
// programmatically for testing.
//
// All fields are optional with defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// StorePath is the BadgerDB directory for persisted results.
	// Default: "./data/regress"
	StorePath string

	// InMemoryStore replaces the on-disk store with a volatile one.
	// Intended for tests and ephemeral deployments.
	InMemoryStore bool

	// AnalysisDepth controls prompt depth: "quick", "standard", "deep".
	// Default: "standard"
	AnalysisDepth string

	// CacheSize caps the in-memory fingerprint cache.
	// Default: engine.DefaultCacheSize
	CacheSize int

	// GinMode sets the Gin framework mode: "debug", "release", "test".
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// Telemetry configures tracing and metrics exporters.
	// Default: telemetry.DefaultConfig()
	Telemetry telemetry.Config
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "./data/regress"
	}
	if cfg.AnalysisDepth == "" {
		cfg.AnalysisDepth = string(inference.DepthStandard)
	}
	if cfg.Telemetry == (telemetry.Config{}) {
		cfg.Telemetry = telemetry.DefaultConfig()
	}
	return cfg
}

// Service is the running regress server.
type Service struct {
	config Config

	engine    *engine.Engine
	store     *store.Store
	git       *gitdiff.Provider
	inference *inference.Provider
	router    *gin.Engine

	telemetryShutdown func(context.Context) error
}

// New assembles the service from configuration.
//
// # Description
//
// Initializes telemetry, the result store, the Git and inference
// collaborators, and the decision engine, then builds the HTTP router.
// The LLM backend is chosen from the LLM_BACKEND_TYPE environment
// variable, matching the inference package's client factory.
//
// # Inputs
//
//   - cfg: Service configuration. A zero Config uses all defaults.
//
// # Outputs
//
//   - *Service: Ready-to-run service. Call Run or Router.
//   - error: Non-nil if any dependency fails to initialize.
//
// # Thread Safety
//
// Call once at startup.
func New(cfg Config) (*Service, error) {
	cfg = applyConfigDefaults(cfg)
	s := &Service{config: cfg}

	shutdown, err := telemetry.Init(context.Background(), cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetryShutdown = shutdown

	storeCfg := store.DefaultConfig(cfg.StorePath)
	if cfg.InMemoryStore {
		storeCfg = store.InMemoryConfig()
	}
	storeCfg.Logger = slog.Default()
	s.store, err = store.Open(storeCfg)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}

	llm, err := inference.NewLLMClient()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	scanner, err := policy_engine.NewPolicyEngine()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	s.inference = inference.NewProvider(llm, inference.ProviderConfig{
		Depth:   inference.Depth(cfg.AnalysisDepth),
		Scanner: scanner,
	}, slog.Default())

	s.git = gitdiff.NewProvider(slog.Default())

	metrics, err := engine.NewMetrics(otel.Meter("aleutian.regress"))
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s.engine = engine.New(s.git, s.inference, s.store, engine.Config{
		CacheSize: cfg.CacheSize,
	}, slog.Default(), metrics)

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *Service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting regress server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for integration testing.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *Service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("regress-service"))

	routes.SetupRoutes(s.router, s.engine, s.store, s.git, s.inference)

	if handler := telemetry.MetricsHandler(); handler != nil {
		s.router.GET("/metrics", gin.WrapH(handler))
	}
}

// cleanup releases all resources held by the service.
func (s *Service) cleanup() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("result store close error", "error", err)
		}
	}
	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetryShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}
}
