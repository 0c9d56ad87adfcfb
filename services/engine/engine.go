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
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.regress.engine")

// ResultStore persists analysis results beyond the in-memory cache.
// Implementations are keyed by commit hash and must be safe for
// concurrent use.
type ResultStore interface {
	SaveResult(ctx context.Context, result *AnalysisResult) error
	LoadResult(ctx context.Context, commitHash string) (*AnalysisResult, error)
}

// BatchStore persists batch job snapshots at state transitions. The
// engine wires it automatically when the configured ResultStore also
// implements it; batches still run without one, they just leave no
// durable job record.
type BatchStore interface {
	SaveBatch(ctx context.Context, progress BatchProgress) error
}

// Config assembles the tunables of every engine stage.
type Config struct {
	Dispatcher DispatcherConfig
	Aggregator AggregatorConfig
	Patterns   PatternDetectorConfig

	// CacheSize is the maximum number of fingerprinted results held in
	// memory. Zero means DefaultCacheSize.
	CacheSize int
}

// Engine is the orchestration and decision facade for commit regression
// analysis.
//
// # Description
//
// The engine owns the full pipeline for one commit: diff retrieval,
// concurrent per-dimension inference, aggregation into a risk verdict,
// fix ranking, and on-demand revert advice. Multi-commit work goes
// through the batch orchestrator; recurring findings across a batch are
// surfaced as patterns. Results are cached by fingerprint and persisted
// through the configured store.
//
// # Thread Safety
//
// Safe for concurrent use.
type Engine struct {
	git        GitProvider
	dispatcher *Dispatcher
	aggregator *Aggregator
	ranker     *FixRanker
	advisor    *RevertAdvisor
	detector   *PatternDetector
	cache      *ResultCache
	batch      *BatchOrchestrator
	store      ResultStore
	log        *slog.Logger
	metrics    *Metrics
}

// New creates an Engine.
//
// # Inputs
//
//   - git: Diff collaborator. Required.
//   - inference: AI inference collaborator. Required.
//   - store: Result persistence. May be nil; results then live only in
//     the in-memory cache.
//   - cfg: Stage tunables; zero values fall back to defaults.
//   - log: Structured logger. May be nil.
//   - metrics: Pre-registered instruments. May be nil.
func New(
	git GitProvider,
	inference InferenceProvider,
	store ResultStore,
	cfg Config,
	log *slog.Logger,
	metrics *Metrics,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "engine"))

	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	e := &Engine{
		git:        git,
		dispatcher: NewDispatcher(inference, cfg.Dispatcher, log, metrics),
		aggregator: NewAggregator(cfg.Aggregator),
		ranker:     NewFixRanker(),
		advisor:    NewRevertAdvisor(),
		detector:   NewPatternDetector(cfg.Patterns),
		cache:      NewResultCache(size),
		store:      store,
		log:        log,
		metrics:    metrics,
	}
	batchStore, _ := store.(BatchStore)
	e.batch = NewBatchOrchestrator(e.analyzeCommit, batchStore, log, metrics)
	return e
}

// Analyze runs the full pipeline for a single commit.
//
// # Description
//
// The result is computed at most once per (commit, dimension set)
// fingerprint: concurrent callers for the same fingerprint share one
// computation, and later callers hit the cache. Degraded dimensions
// lower the confidence score instead of failing the analysis; only a
// diff-retrieval failure or a fully degraded pipeline surfaces as is.
//
// # Inputs
//
//   - ctx: Must not be nil.
//   - commit: Commit identity. Hash and repository path are required.
//   - dims: Dimensions to run. Empty means the full set.
//
// # Outputs
//
//   - *AnalysisResult: The aggregate verdict with ranked suggestions.
//   - error: ErrNilContext, ErrInvalidDimension, a *GitAccessError, or a
//     *CacheComputeError wrapping the pipeline failure.
func (e *Engine) Analyze(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension) (*AnalysisResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return e.analyzeCommit(ctx, commit, dims, nil)
}

// analyzeCommit is the shared per-commit pipeline behind Analyze and the
// batch workers. The stop channel carries batch-level cooperative
// cancellation into the dispatcher.
func (e *Engine) analyzeCommit(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error) {
	if len(dims) == 0 {
		dims = AllDimensions()
	}
	for _, dim := range dims {
		if !dim.Valid() {
			return nil, ErrInvalidDimension
		}
	}
	if err := validate.Struct(commit); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "engine.analyze_commit", trace.WithAttributes(
		attribute.String("commit.hash", commit.CommitHash),
		attribute.Int("dimensions", len(dims)),
	))
	defer span.End()

	fingerprint := commit.Fingerprint(dims)
	computed := false
	result, err := e.cache.GetOrCompute(ctx, fingerprint, func(ctx context.Context) (*AnalysisResult, error) {
		computed = true
		return e.compute(ctx, commit, dims, stop)
	})
	if e.metrics != nil {
		e.metrics.RecordCacheLookup(ctx, !computed)
	}
	if err != nil {
		span.RecordError(err)
		if e.metrics != nil {
			e.metrics.RecordError(ctx, "engine")
		}
		return nil, err
	}
	return result, nil
}

// compute runs the uncached pipeline: diff, fan-out, aggregate, rank.
func (e *Engine) compute(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error) {
	start := time.Now()

	hunks, err := e.git.GetDiff(ctx, commit.RepositoryPath, commit.CommitHash)
	if err != nil {
		return nil, err
	}

	findings, degraded, err := e.dispatcher.Dispatch(ctx, hunks, dims, stop)
	if err != nil {
		return nil, err
	}

	result := e.aggregator.Aggregate(commit.CommitHash, findings, degraded, len(dims))
	result.Suggestions = e.ranker.Rank(result.Findings)

	if e.store != nil {
		// Persistence is best-effort; the verdict is already computed.
		if err := e.store.SaveResult(ctx, &result); err != nil {
			e.log.Warn("persist analysis result",
				"commit", commit.CommitHash, "error", err)
		}
	}

	if e.metrics != nil {
		e.metrics.RecordAnalysis(ctx, result.RiskLevel, time.Since(start))
	}
	e.log.Info("commit analyzed",
		"commit", commit.CommitHash,
		"risk_level", result.RiskLevel,
		"confidence", result.ConfidenceScore,
		"findings", len(result.Findings),
		"degraded", len(result.DegradedDimensions),
		"elapsed", time.Since(start))
	return &result, nil
}

// Result returns a previously computed analysis for a commit, checking
// the persistent store. Returns ErrResultNotFound when the commit has
// never been analyzed.
func (e *Engine) Result(ctx context.Context, commitHash string) (*AnalysisResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if e.store == nil {
		return nil, ErrResultNotFound
	}
	return e.store.LoadResult(ctx, commitHash)
}

// Recommend produces the revert verdict for an already analyzed commit.
//
// The recommendation is derived on demand and never cached: the same
// result under different constraints can yield different decisions.
func (e *Engine) Recommend(ctx context.Context, commitHash string, constraints RevertConstraints) (RevertRecommendation, error) {
	result, err := e.Result(ctx, commitHash)
	if err != nil {
		return RevertRecommendation{}, err
	}
	return e.advisor.Advise(result, constraints), nil
}

// SubmitBatch enqueues a multi-commit analysis job.
func (e *Engine) SubmitBatch(ctx context.Context, commits []CommitDescriptor, opts BatchOptions) (string, error) {
	return e.batch.Submit(ctx, commits, opts)
}

// PollBatch returns a point-in-time snapshot of a batch job.
func (e *Engine) PollBatch(jobID string) (BatchProgress, error) {
	return e.batch.Poll(jobID)
}

// CancelBatch requests cooperative cancellation of a batch job.
func (e *Engine) CancelBatch(jobID string) error {
	return e.batch.Cancel(jobID)
}

// WatchBatch subscribes to progress snapshots for a batch job.
func (e *Engine) WatchBatch(jobID string) (<-chan BatchProgress, func(), error) {
	return e.batch.Watch(jobID)
}

// BatchResults returns the successful per-commit results of a terminal
// batch job.
func (e *Engine) BatchResults(jobID string) ([]*AnalysisResult, error) {
	return e.batch.Results(jobID)
}

// DetectPatterns surfaces finding signatures recurring across a
// completed batch job. A cancelled or failed job never yields patterns:
// its partial result set would under-count occurrences and misreport
// cluster sizes. Patterns are recomputed per call, never persisted.
func (e *Engine) DetectPatterns(jobID string) ([]Pattern, error) {
	progress, err := e.batch.Poll(jobID)
	if err != nil {
		return nil, err
	}
	if progress.State != JobCompleted {
		return nil, ErrJobNotCompleted
	}
	results, err := e.batch.Results(jobID)
	if err != nil {
		return nil, err
	}
	return e.detector.Detect(results), nil
}

// CacheStats returns cumulative fingerprint-cache counters.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// Close cancels all running batch jobs and waits for their workers to
// drain.
func (e *Engine) Close() {
	e.batch.Close()
}
