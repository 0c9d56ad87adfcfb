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
	"errors"
	"fmt"
)

// Engine errors.
var (
	// ErrNilContext is returned when a nil context is passed to an engine entry point.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNoDimensions is returned when an analysis request names no dimensions.
	ErrNoDimensions = errors.New("at least one analysis dimension is required")

	// ErrInvalidDimension is returned when a dimension is outside the closed set.
	ErrInvalidDimension = errors.New("unknown analysis dimension")

	// ErrInvalidConcurrency is returned when a batch is submitted with zero or
	// negative worker count.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")

	// ErrNoCommits is returned when a batch is submitted with an empty commit list.
	ErrNoCommits = errors.New("batch requires at least one commit")

	// ErrJobNotFound is returned when a job ID does not name a known batch.
	ErrJobNotFound = errors.New("batch job not found")

	// ErrJobNotCompleted is returned when patterns are requested before the
	// batch reached the completed state.
	ErrJobNotCompleted = errors.New("batch job has not completed")

	// ErrResultNotFound is returned when no analysis result exists for a commit.
	ErrResultNotFound = errors.New("analysis result not found")

	// ErrEngineClosed is returned after the engine has been shut down.
	ErrEngineClosed = errors.New("engine is closed")
)

// ProviderErrorKind classifies inference collaborator failures. The kind
// decides the retry policy: transient and malformed responses are retried
// once, rejections are degraded immediately.
type ProviderErrorKind int

const (
	// ProviderTransient covers network failures, timeouts, and 5xx responses.
	ProviderTransient ProviderErrorKind = iota

	// ProviderMalformed covers schema-invalid or unparseable output.
	ProviderMalformed

	// ProviderRejected covers explicit semantic rejection, e.g. the
	// collaborator reports the diff payload is too large or the caller is
	// rate limited out of quota. Never retried.
	ProviderRejected
)

// String returns the wire name of the kind.
func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderTransient:
		return "transient"
	case ProviderMalformed:
		return "malformed"
	case ProviderRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ProviderError is a classified failure from the inference collaborator.
type ProviderError struct {
	Kind      ProviderErrorKind
	Dimension AnalysisDimension
	Err       error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference provider %s error (dimension %s): %v", e.Kind, e.Dimension, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err with a kind and the dimension it occurred on.
func NewProviderError(kind ProviderErrorKind, dim AnalysisDimension, err error) *ProviderError {
	return &ProviderError{Kind: kind, Dimension: dim, Err: err}
}

// GitAccessError reports that the Git collaborator could not read the
// repository or resolve the commit. Fatal for that commit only; a batch
// records it in the per-commit status and continues.
type GitAccessError struct {
	RepositoryPath string
	CommitHash     string
	Err            error
}

// Error implements the error interface.
func (e *GitAccessError) Error() string {
	return fmt.Sprintf("git access failed for %s at %s: %v", e.CommitHash, e.RepositoryPath, e.Err)
}

// Unwrap returns the underlying cause.
func (e *GitAccessError) Unwrap() error { return e.Err }

// CacheComputeError reports that a cache-fronted computation failed. The
// failure is surfaced to the caller and nothing is cached, so a later
// caller may retry.
type CacheComputeError struct {
	Fingerprint string
	Err         error
}

// Error implements the error interface.
func (e *CacheComputeError) Error() string {
	return fmt.Sprintf("analysis computation failed (fingerprint %.12s): %v", e.Fingerprint, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CacheComputeError) Unwrap() error { return e.Err }
