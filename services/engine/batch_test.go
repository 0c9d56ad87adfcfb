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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCommits(n int) []CommitDescriptor {
	commits := make([]CommitDescriptor, n)
	for i := range commits {
		commits[i] = CommitDescriptor{
			CommitHash:     string(rune('a'+i)) + "000000",
			RepositoryPath: "/repo",
		}
	}
	return commits
}

// waitTerminal polls until the job settles or the test times out.
func waitTerminal(t *testing.T, b *BatchOrchestrator, jobID string) BatchProgress {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		progress, err := b.Poll(jobID)
		require.NoError(t, err)
		if progress.State.Terminal() {
			return progress
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached a terminal state (state=%s)", jobID, progress.State)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBatchCompletesDespiteCommitFailure(t *testing.T) {
	analyze := func(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error) {
		if commit.CommitHash == "c000000" {
			return nil, &GitAccessError{
				RepositoryPath: commit.RepositoryPath,
				CommitHash:     commit.CommitHash,
			}
		}
		return &AnalysisResult{CommitHash: commit.CommitHash, RiskLevel: RiskLow}, nil
	}

	b := NewBatchOrchestrator(analyze, nil, nil, nil)
	defer b.Close()

	jobID, err := b.Submit(context.Background(), testCommits(5), BatchOptions{Concurrency: 2})
	require.NoError(t, err)

	progress := waitTerminal(t, b, jobID)
	assert.Equal(t, JobCompleted, progress.State, "a single unreadable commit must not fail the batch")
	assert.Equal(t, 4, progress.Completed)
	assert.Equal(t, 1, progress.Failed)

	var errored *CommitProgress
	for i := range progress.Commits {
		if progress.Commits[i].Status == CommitError {
			errored = &progress.Commits[i]
		}
	}
	require.NotNil(t, errored)
	assert.Equal(t, "c000000", errored.CommitHash)
	assert.NotEmpty(t, errored.Error)

	results, err := b.Results(jobID)
	require.NoError(t, err)
	assert.Len(t, results, 4, "failed commits are omitted from results")
}

func TestBatchFailFast(t *testing.T) {
	var calls atomic.Int64
	analyze := func(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error) {
		calls.Add(1)
		return nil, &GitAccessError{CommitHash: commit.CommitHash}
	}

	b := NewBatchOrchestrator(analyze, nil, nil, nil)
	defer b.Close()

	jobID, err := b.Submit(context.Background(), testCommits(10), BatchOptions{Concurrency: 1, FailFast: true})
	require.NoError(t, err)

	progress := waitTerminal(t, b, jobID)
	assert.Equal(t, JobFailed, progress.State)
	assert.Less(t, calls.Load(), int64(10), "fail-fast must stop scheduling after the first failure")
}

func TestBatchCancellation(t *testing.T) {
	started := make(chan string, 16)
	release := make(chan struct{})
	analyze := func(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error) {
		started <- commit.CommitHash
		<-release
		return &AnalysisResult{CommitHash: commit.CommitHash}, nil
	}

	b := NewBatchOrchestrator(analyze, nil, nil, nil)
	defer b.Close()

	jobID, err := b.Submit(context.Background(), testCommits(5), BatchOptions{Concurrency: 2})
	require.NoError(t, err)

	// Wait for both workers to pick up a commit, then cancel.
	<-started
	<-started
	require.NoError(t, b.Cancel(jobID))
	close(release)

	progress := waitTerminal(t, b, jobID)
	assert.Equal(t, JobCancelled, progress.State)

	// The two in-flight commits finished; the rest never started.
	assert.Equal(t, 2, progress.Completed, "in-flight commits must finish")
	pending := 0
	for _, c := range progress.Commits {
		if c.Status == CommitPending {
			pending++
		}
	}
	assert.Equal(t, 3, pending, "pending commits must never start after cancel")

	// Cancelling a terminal job is a no-op.
	assert.NoError(t, b.Cancel(jobID))
}

func TestBatchResultsBeforeTerminal(t *testing.T) {
	release := make(chan struct{})
	analyze := func(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error) {
		<-release
		return &AnalysisResult{CommitHash: commit.CommitHash}, nil
	}

	b := NewBatchOrchestrator(analyze, nil, nil, nil)
	defer b.Close()

	jobID, err := b.Submit(context.Background(), testCommits(2), BatchOptions{Concurrency: 1})
	require.NoError(t, err)

	_, err = b.Results(jobID)
	assert.ErrorIs(t, err, ErrJobNotCompleted)
	close(release)

	waitTerminal(t, b, jobID)
	results, err := b.Results(jobID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestBatchWatchDeliversTerminalSnapshot(t *testing.T) {
	analyze := func(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error) {
		return &AnalysisResult{CommitHash: commit.CommitHash}, nil
	}

	b := NewBatchOrchestrator(analyze, nil, nil, nil)
	defer b.Close()

	jobID, err := b.Submit(context.Background(), testCommits(3), BatchOptions{Concurrency: 1})
	require.NoError(t, err)

	ch, cancel, err := b.Watch(jobID)
	require.NoError(t, err)
	defer cancel()

	var last BatchProgress
	for snap := range ch {
		last = snap
	}
	assert.Equal(t, JobCompleted, last.State, "watchers must always see the terminal snapshot")
	assert.Equal(t, 3, last.Completed)
}

func TestBatchSubmitValidation(t *testing.T) {
	b := NewBatchOrchestrator(nil, nil, nil, nil)
	defer b.Close()
	ctx := context.Background()

	_, err := b.Submit(ctx, nil, BatchOptions{Concurrency: 1})
	assert.ErrorIs(t, err, ErrNoCommits)

	_, err = b.Submit(ctx, testCommits(1), BatchOptions{Concurrency: 0})
	assert.ErrorIs(t, err, ErrInvalidConcurrency)

	_, err = b.Submit(ctx, testCommits(1), BatchOptions{
		Concurrency: 1,
		Dimensions:  []AnalysisDimension{"astrology"},
	})
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = b.Poll("no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

// recordingBatchStore captures every persisted snapshot.
type recordingBatchStore struct {
	mu    sync.Mutex
	snaps []BatchProgress
}

func (r *recordingBatchStore) SaveBatch(ctx context.Context, progress BatchProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, progress)
	return nil
}

func (r *recordingBatchStore) states() []JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]JobState, len(r.snaps))
	for i, s := range r.snaps {
		states[i] = s.State
	}
	return states
}

func TestBatchPersistsStateTransitions(t *testing.T) {
	analyze := func(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error) {
		return &AnalysisResult{CommitHash: commit.CommitHash, RiskLevel: RiskLow}, nil
	}

	rec := &recordingBatchStore{}
	b := NewBatchOrchestrator(analyze, rec, nil, nil)
	defer b.Close()

	jobID, err := b.Submit(context.Background(), testCommits(3), BatchOptions{Concurrency: 2})
	require.NoError(t, err)
	waitTerminal(t, b, jobID)

	// The terminal persist happens just after the terminal state becomes
	// pollable, so wait for it rather than sampling immediately.
	deadline := time.After(5 * time.Second)
	for {
		states := rec.states()
		if len(states) > 0 && states[len(states)-1] == JobCompleted {
			assert.Equal(t, JobRunning, states[0])
			break
		}
		select {
		case <-deadline:
			t.Fatalf("terminal snapshot never persisted (states=%v)", states)
		case <-time.After(5 * time.Millisecond):
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, snap := range rec.snaps {
		assert.Equal(t, jobID, snap.JobID)
	}
}

func TestBatchWatcherAlwaysGetsTerminalSnapshot(t *testing.T) {
	analyze := func(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error) {
		return &AnalysisResult{CommitHash: commit.CommitHash, RiskLevel: RiskLow}, nil
	}

	b := NewBatchOrchestrator(analyze, nil, nil, nil)
	defer b.Close()

	// Far more notifications than the watcher buffer holds.
	jobID, err := b.Submit(context.Background(), testCommits(40), BatchOptions{Concurrency: 4})
	require.NoError(t, err)

	ch, cancel, err := b.Watch(jobID)
	require.NoError(t, err)
	defer cancel()

	// Do not read until the job has settled, so the buffer overflows
	// and intermediate snapshots are dropped.
	waitTerminal(t, b, jobID)

	var last BatchProgress
	for snap := range ch {
		last = snap
	}
	assert.Equal(t, JobCompleted, last.State,
		"an undrained watcher must still receive the terminal snapshot")
	assert.Equal(t, 40, last.Completed)
	assert.Equal(t, 0, last.Failed)
}
