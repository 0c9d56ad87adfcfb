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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeProvider scripts per-dimension behavior and counts calls.
type fakeProvider struct {
	mu     sync.Mutex
	calls  map[AnalysisDimension]int
	script func(dim AnalysisDimension, attempt int) ([]Finding, error)
}

func newFakeProvider(script func(dim AnalysisDimension, attempt int) ([]Finding, error)) *fakeProvider {
	return &fakeProvider{
		calls:  make(map[AnalysisDimension]int),
		script: script,
	}
}

func (p *fakeProvider) Analyze(ctx context.Context, dim AnalysisDimension, hunks []DiffHunk) ([]Finding, error) {
	p.mu.Lock()
	p.calls[dim]++
	attempt := p.calls[dim]
	p.mu.Unlock()
	return p.script(dim, attempt)
}

func (p *fakeProvider) callCount(dim AnalysisDimension) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[dim]
}

func testDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		CallTimeout: time.Second,
		RateLimit:   rate.Inf,
		RateBurst:   1,
	}
}

func TestDispatchMergesAndTags(t *testing.T) {
	provider := newFakeProvider(func(dim AnalysisDimension, attempt int) ([]Finding, error) {
		if dim == DimSecurity {
			return []Finding{{
				Severity:   SeverityHigh,
				Confidence: 0.8,
				Title:      "sql injection",
			}}, nil
		}
		return nil, nil
	})

	d := NewDispatcher(provider, testDispatcherConfig(), nil, nil)
	findings, degraded, err := d.Dispatch(context.Background(), nil, AllDimensions(), nil)
	require.NoError(t, err)

	assert.Empty(t, degraded)
	require.Len(t, findings, 1)
	assert.Equal(t, DimSecurity, findings[0].Dimension, "findings must be tagged by dimension")
	for _, dim := range AllDimensions() {
		assert.Equal(t, 1, provider.callCount(dim))
	}
}

func TestDispatchRetriesTransientOnce(t *testing.T) {
	provider := newFakeProvider(func(dim AnalysisDimension, attempt int) ([]Finding, error) {
		if attempt == 1 {
			return nil, NewProviderError(ProviderTransient, dim, errors.New("timeout"))
		}
		return []Finding{{Severity: SeverityLow, Confidence: 0.5, Title: "recovered"}}, nil
	})

	d := NewDispatcher(provider, testDispatcherConfig(), nil, nil)
	findings, degraded, err := d.Dispatch(context.Background(), nil, []AnalysisDimension{DimFunctional}, nil)
	require.NoError(t, err)

	assert.Empty(t, degraded)
	require.Len(t, findings, 1)
	assert.Equal(t, 2, provider.callCount(DimFunctional))
}

func TestDispatchDegradesAfterRetry(t *testing.T) {
	provider := newFakeProvider(func(dim AnalysisDimension, attempt int) ([]Finding, error) {
		return nil, NewProviderError(ProviderMalformed, dim, errors.New("not json"))
	})

	d := NewDispatcher(provider, testDispatcherConfig(), nil, nil)
	findings, degraded, err := d.Dispatch(context.Background(), nil, []AnalysisDimension{DimPerformance}, nil)
	require.NoError(t, err)

	assert.Empty(t, findings)
	assert.Equal(t, []AnalysisDimension{DimPerformance}, degraded)
	assert.Equal(t, 2, provider.callCount(DimPerformance), "malformed responses retry exactly once")
}

func TestDispatchNeverRetriesRejection(t *testing.T) {
	provider := newFakeProvider(func(dim AnalysisDimension, attempt int) ([]Finding, error) {
		return nil, NewProviderError(ProviderRejected, dim, errors.New("diff too large"))
	})

	d := NewDispatcher(provider, testDispatcherConfig(), nil, nil)
	_, degraded, err := d.Dispatch(context.Background(), nil, []AnalysisDimension{DimSecurity}, nil)
	require.NoError(t, err)

	assert.Equal(t, []AnalysisDimension{DimSecurity}, degraded)
	assert.Equal(t, 1, provider.callCount(DimSecurity), "rejections must not retry")
}

func TestDispatchSchemaInvalidFindingIsMalformed(t *testing.T) {
	provider := newFakeProvider(func(dim AnalysisDimension, attempt int) ([]Finding, error) {
		// Confidence out of range on the first attempt.
		if attempt == 1 {
			return []Finding{{Severity: SeverityHigh, Confidence: 1.7, Title: "bad"}}, nil
		}
		return []Finding{{Severity: SeverityHigh, Confidence: 0.7, Title: "good"}}, nil
	})

	d := NewDispatcher(provider, testDispatcherConfig(), nil, nil)
	findings, degraded, err := d.Dispatch(context.Background(), nil, []AnalysisDimension{DimFunctional}, nil)
	require.NoError(t, err)

	assert.Empty(t, degraded)
	require.Len(t, findings, 1)
	assert.Equal(t, "good", findings[0].Title)
	assert.Equal(t, 2, provider.callCount(DimFunctional))
}

func TestDispatchStopSkipsDimensions(t *testing.T) {
	provider := newFakeProvider(func(dim AnalysisDimension, attempt int) ([]Finding, error) {
		return nil, nil
	})
	stop := make(chan struct{})
	close(stop)

	d := NewDispatcher(provider, testDispatcherConfig(), nil, nil)
	findings, degraded, err := d.Dispatch(context.Background(), nil, AllDimensions(), stop)
	require.NoError(t, err)

	assert.Empty(t, findings)
	assert.Len(t, degraded, len(AllDimensions()), "stopped dimensions degrade instead of running")
	for _, dim := range AllDimensions() {
		assert.Equal(t, 0, provider.callCount(dim))
	}
}

func TestDispatchValidation(t *testing.T) {
	d := NewDispatcher(newFakeProvider(nil), testDispatcherConfig(), nil, nil)

	_, _, err := d.Dispatch(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoDimensions)

	_, _, err = d.Dispatch(context.Background(), nil, []AnalysisDimension{"astrology"}, nil)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	var nilCtx context.Context
	_, _, err = d.Dispatch(nilCtx, nil, []AnalysisDimension{DimSecurity}, nil)
	assert.ErrorIs(t, err, ErrNilContext)
}
