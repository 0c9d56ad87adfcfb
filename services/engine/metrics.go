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
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the regression engine.
//
// Description:
//
//	Provides standard counters and histograms for commit analyses,
//	per-dimension inference calls, batch jobs, and cache behavior.
//	All metrics use the "regress_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Analysis Metrics ---

	// AnalysesTotal counts completed commit analyses by risk level.
	AnalysesTotal metric.Int64Counter

	// AnalysisDuration records end-to-end commit analysis duration in seconds.
	AnalysisDuration metric.Float64Histogram

	// --- Dimension Metrics ---

	// DimensionCallsTotal counts inference calls by dimension and outcome
	// (ok, rejected, degraded).
	DimensionCallsTotal metric.Int64Counter

	// DimensionCallDuration records inference call duration in seconds.
	DimensionCallDuration metric.Float64Histogram

	// --- Batch Metrics ---

	// BatchJobsTotal counts batch jobs by terminal state.
	BatchJobsTotal metric.Int64Counter

	// BatchCommitsTotal counts per-commit batch outcomes (done, error).
	BatchCommitsTotal metric.Int64Counter

	// BatchActiveWorkers tracks currently running batch workers.
	BatchActiveWorkers metric.Int64UpDownCounter

	// --- Cache Metrics ---

	// CacheRequestsTotal counts fingerprint lookups by result (hit, miss).
	CacheRequestsTotal metric.Int64Counter

	// --- Error Metrics ---

	// ErrorsTotal counts total errors by component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Description:
//
//	Registers all pre-defined metrics with the provided meter.
//	Returns an error if any metric registration fails.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all counters and histograms initialized.
//	error - Non-nil if metric registration fails.
//
// Example:
//
//	meter := otel.Meter("regress")
//	metrics, err := engine.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.AnalysesTotal.Add(ctx, 1, ...)
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- Analysis Metrics ---
	m.AnalysesTotal, err = meter.Int64Counter(
		"regress_analyses_total",
		metric.WithDescription("Total completed commit analyses"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create analyses_total: %w", err)
	}

	m.AnalysisDuration, err = meter.Float64Histogram(
		"regress_analysis_duration_seconds",
		metric.WithDescription("End-to-end commit analysis duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create analysis_duration: %w", err)
	}

	// --- Dimension Metrics ---
	m.DimensionCallsTotal, err = meter.Int64Counter(
		"regress_dimension_calls_total",
		metric.WithDescription("Total inference calls by dimension and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dimension_calls_total: %w", err)
	}

	m.DimensionCallDuration, err = meter.Float64Histogram(
		"regress_dimension_call_duration_seconds",
		metric.WithDescription("Inference call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, fmt.Errorf("create dimension_call_duration: %w", err)
	}

	// --- Batch Metrics ---
	m.BatchJobsTotal, err = meter.Int64Counter(
		"regress_batch_jobs_total",
		metric.WithDescription("Total batch jobs by terminal state"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch_jobs_total: %w", err)
	}

	m.BatchCommitsTotal, err = meter.Int64Counter(
		"regress_batch_commits_total",
		metric.WithDescription("Total per-commit batch outcomes"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch_commits_total: %w", err)
	}

	m.BatchActiveWorkers, err = meter.Int64UpDownCounter(
		"regress_batch_active_workers",
		metric.WithDescription("Currently running batch workers"),
		metric.WithUnit("{worker}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch_active_workers: %w", err)
	}

	// --- Cache Metrics ---
	m.CacheRequestsTotal, err = meter.Int64Counter(
		"regress_cache_requests_total",
		metric.WithDescription("Total fingerprint cache lookups"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_requests_total: %w", err)
	}

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"regress_errors_total",
		metric.WithDescription("Total errors by component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RecordAnalysis records one completed commit analysis.
func (m *Metrics) RecordAnalysis(ctx context.Context, risk RiskLevel, elapsed time.Duration) {
	m.AnalysesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("risk_level", string(risk)),
	))
	m.AnalysisDuration.Record(ctx, elapsed.Seconds())
}

// RecordDimensionCall records the outcome of one per-dimension inference call.
func (m *Metrics) RecordDimensionCall(ctx context.Context, dim AnalysisDimension, outcome string) {
	m.DimensionCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dimension", string(dim)),
		attribute.String("outcome", outcome),
	))
}

// RecordDimensionDuration records the latency of one inference call.
func (m *Metrics) RecordDimensionDuration(ctx context.Context, dim AnalysisDimension, elapsed time.Duration) {
	m.DimensionCallDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("dimension", string(dim)),
	))
}

// RecordBatchJob records a batch job reaching a terminal state.
func (m *Metrics) RecordBatchJob(ctx context.Context, state JobState) {
	m.BatchJobsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(state)),
	))
}

// RecordBatchCommit records one per-commit batch outcome.
func (m *Metrics) RecordBatchCommit(ctx context.Context, status CommitStatus) {
	m.BatchCommitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
}

// RecordCacheLookup records one fingerprint cache lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordError records one error for a component.
func (m *Metrics) RecordError(ctx context.Context, component string) {
	m.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
	))
}
