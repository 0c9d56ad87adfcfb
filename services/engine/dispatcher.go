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
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// InferenceProvider is the AI inference collaborator contract.
//
// Implementations are non-deterministic, fallible, and possibly slow.
// Failures should be classified as *ProviderError so the dispatcher can
// apply the right retry policy; unclassified errors are treated as
// transient.
type InferenceProvider interface {
	Analyze(ctx context.Context, dim AnalysisDimension, hunks []DiffHunk) ([]Finding, error)
}

// GitProvider is the Git diff collaborator contract. Failures are
// reported as *GitAccessError.
type GitProvider interface {
	GetDiff(ctx context.Context, repoPath, commitHash string) ([]DiffHunk, error)
}

// DispatcherConfig tunes per-dimension fan-out.
type DispatcherConfig struct {
	// CallTimeout bounds each individual inference call, including the
	// single retry. Default: 45s.
	CallTimeout time.Duration

	// RateLimit is the shared calls-per-second budget across all
	// dimensions of all active commits. The inference collaborator is a
	// shared, rate-limited resource; the engine must not exceed its
	// throughput contract. Default: 4/s.
	RateLimit rate.Limit

	// RateBurst is the limiter burst. Default: 4.
	RateBurst int
}

// DefaultDispatcherConfig returns the standard fan-out configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		CallTimeout: 45 * time.Second,
		RateLimit:   rate.Limit(4),
		RateBurst:   4,
	}
}

// Dispatcher fans one commit's diff out across the requested analysis
// dimensions.
//
// # Description
//
// Each dimension runs concurrently under its own timeout. A dimension
// that times out, returns schema-invalid output, or is rejected by the
// collaborator is marked degraded: it is excluded from findings and
// recorded so the aggregator can lower confidence, rather than failing
// the whole commit. Transient and malformed failures are retried exactly
// once; explicit rejections are never retried.
//
// # Thread Safety
//
// Safe for concurrent use; all dispatches share one rate limiter.
type Dispatcher struct {
	provider InferenceProvider
	limiter  *rate.Limiter
	cfg      DispatcherConfig
	log      *slog.Logger
	metrics  *Metrics
}

// NewDispatcher creates a Dispatcher. Zero config values fall back to
// defaults; a nil logger falls back to slog.Default().
func NewDispatcher(provider InferenceProvider, cfg DispatcherConfig, log *slog.Logger, metrics *Metrics) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		provider: provider,
		limiter:  rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		cfg:      cfg,
		log:      log.With(slog.String("component", "dispatcher")),
		metrics:  metrics,
	}
}

// Dispatch runs the requested dimensions concurrently and merges their
// findings into a single unordered set tagged by dimension.
//
// # Inputs
//
//   - ctx: Context for the whole commit. Must not be nil.
//   - hunks: The commit's diff payload.
//   - dims: Requested dimensions. Must all be valid.
//   - stop: Optional cooperative cancel signal. When closed, dimensions
//     that have not started (and retries that have not begun) are skipped
//     and marked degraded; in-flight calls finish or hit their timeout.
//
// # Outputs
//
//   - []Finding: Merged findings from non-degraded dimensions, in
//     deterministic (dimension, title) order.
//   - []AnalysisDimension: Degraded dimensions in canonical order.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	hunks []DiffHunk,
	dims []AnalysisDimension,
	stop <-chan struct{},
) ([]Finding, []AnalysisDimension, error) {
	if ctx == nil {
		return nil, nil, ErrNilContext
	}
	if len(dims) == 0 {
		return nil, nil, ErrNoDimensions
	}
	for _, dim := range dims {
		if !dim.Valid() {
			return nil, nil, ErrInvalidDimension
		}
	}

	var (
		mu       sync.Mutex
		findings []Finding
		degraded []AnalysisDimension
		wg       sync.WaitGroup
	)

	for _, dim := range dims {
		wg.Add(1)
		go func(dim AnalysisDimension) {
			defer wg.Done()
			results, ok := d.runDimension(ctx, dim, hunks, stop)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				findings = append(findings, results...)
			} else {
				degraded = append(degraded, dim)
			}
		}(dim)
	}
	wg.Wait()

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Dimension != findings[j].Dimension {
			return findings[i].Dimension < findings[j].Dimension
		}
		return findings[i].Title < findings[j].Title
	})
	sort.Slice(degraded, func(i, j int) bool { return degraded[i] < degraded[j] })
	return findings, degraded, nil
}

// runDimension executes one dimension with the bounded retry policy.
// Returns ok=false when the dimension degraded.
func (d *Dispatcher) runDimension(
	ctx context.Context,
	dim AnalysisDimension,
	hunks []DiffHunk,
	stop <-chan struct{},
) ([]Finding, bool) {
	const maxAttempts = 2 // one retry, stated as contract

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if stopped(stop) || ctx.Err() != nil {
			d.log.Debug("dimension skipped on cancel", "dimension", dim)
			return nil, false
		}

		results, err := d.callOnce(ctx, dim, hunks)
		if err == nil {
			d.record(ctx, dim, "ok")
			return results, true
		}

		var perr *ProviderError
		if errors.As(err, &perr) && perr.Kind == ProviderRejected {
			// Explicit semantic rejection: never retried.
			d.log.Warn("dimension rejected by provider", "dimension", dim, "error", err)
			d.record(ctx, dim, "rejected")
			return nil, false
		}
		if attempt < maxAttempts {
			d.log.Warn("dimension call failed, retrying once",
				"dimension", dim, "attempt", attempt, "error", err)
			continue
		}
		d.log.Warn("dimension degraded", "dimension", dim, "error", err)
		d.record(ctx, dim, "degraded")
	}
	return nil, false
}

// callOnce performs a single rate-limited, timeout-bounded inference
// call and schema-validates the response.
func (d *Dispatcher) callOnce(ctx context.Context, dim AnalysisDimension, hunks []DiffHunk) ([]Finding, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, NewProviderError(ProviderTransient, dim, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	raw, err := d.provider.Analyze(callCtx, dim, hunks)
	d.observeDuration(ctx, dim, time.Since(start))
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			return nil, err
		}
		// Unclassified failures (deadline, connection reset) count as
		// transient.
		return nil, NewProviderError(ProviderTransient, dim, err)
	}

	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		f.Dimension = dim
		if err := ValidateFinding(f); err != nil {
			return nil, NewProviderError(ProviderMalformed, dim, err)
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func (d *Dispatcher) record(ctx context.Context, dim AnalysisDimension, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordDimensionCall(ctx, dim, outcome)
	}
}

func (d *Dispatcher) observeDuration(ctx context.Context, dim AnalysisDimension, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordDimensionDuration(ctx, dim, elapsed)
	}
}

// stopped reports whether the cooperative cancel signal fired.
func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
