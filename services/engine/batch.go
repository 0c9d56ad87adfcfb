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
	"sync"
	"time"

	"github.com/google/uuid"
)

// AnalyzeFunc analyzes one commit. The stop channel is the batch's
// cooperative cancel signal; implementations pass it through so that
// in-flight dimension work can wind down without being torn mid-call.
type AnalyzeFunc func(ctx context.Context, commit CommitDescriptor, dims []AnalysisDimension, stop <-chan struct{}) (*AnalysisResult, error)

// BatchOptions configures one batch submission.
type BatchOptions struct {
	// Dimensions to run per commit. Empty means the full dimension set.
	Dimensions []AnalysisDimension

	// Concurrency is the number of commits analyzed in parallel.
	// Must be >= 1.
	Concurrency int

	// FailFast stops scheduling new commits after the first commit-level
	// failure and marks the job failed. Default is to continue: a single
	// unreadable commit never aborts the batch.
	FailFast bool
}

// batchJob is the orchestrator's internal record of one submitted job.
type batchJob struct {
	mu sync.Mutex

	id        string
	state     JobState
	commits   []CommitDescriptor
	progress  []CommitProgress
	results   []*AnalysisResult
	createdAt time.Time

	completed int
	failed    int

	// stop is closed exactly once to request cooperative cancellation.
	stop     chan struct{}
	stopOnce sync.Once
	// cancelled distinguishes an operator cancel from a fail-fast stop.
	cancelled bool

	watchers []chan BatchProgress
}

// requestStop closes the job's cancel signal at most once.
func (j *batchJob) requestStop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

// snapshotLocked builds a consistent BatchProgress. Caller holds j.mu.
func (j *batchJob) snapshotLocked() BatchProgress {
	commits := make([]CommitProgress, len(j.progress))
	copy(commits, j.progress)
	return BatchProgress{
		JobID:     j.id,
		State:     j.state,
		Total:     len(j.commits),
		Completed: j.completed,
		Failed:    j.failed,
		Commits:   commits,
		CreatedAt: j.createdAt,
	}
}

// notifyLocked pushes the current snapshot to all watchers without
// blocking; a slow watcher misses intermediate snapshots, never final
// ones: on a terminal transition, stale buffered snapshots are evicted
// until the final one fits, then the channel is closed. Caller holds
// j.mu.
func (j *batchJob) notifyLocked() {
	snap := j.snapshotLocked()
	terminal := j.state.Terminal()
	for _, w := range j.watchers {
		select {
		case w <- snap:
			continue
		default:
		}
		if !terminal {
			continue
		}
		// All sends on w happen under j.mu, so evicting one buffered
		// snapshot always frees a slot for the final send; a concurrent
		// reader only makes more room.
		for {
			select {
			case w <- snap:
			case <-w:
				continue
			}
			break
		}
	}
	if terminal {
		for _, w := range j.watchers {
			close(w)
		}
		j.watchers = nil
	}
}

// BatchOrchestrator runs multi-commit analysis jobs.
//
// # Description
//
// Each submitted job analyzes its commits through a bounded worker pool
// and is observable through point-in-time progress snapshots. A commit
// that fails (unreadable hash, collaborator outage) is recorded as a
// per-commit error; the job itself still completes unless FailFast is
// set. Cancellation is cooperative: in-flight commits finish, pending
// commits never start.
//
// # Thread Safety
//
// Safe for concurrent use. Progress snapshots are copies; mutating a
// returned snapshot does not affect the job.
type BatchOrchestrator struct {
	analyze AnalyzeFunc
	store   BatchStore
	log     *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	jobs   map[string]*batchJob
	closed bool
	wg     sync.WaitGroup
}

// NewBatchOrchestrator creates an orchestrator around the given per-commit
// analysis function. A nil store skips batch state persistence; a nil
// logger falls back to slog.Default().
func NewBatchOrchestrator(analyze AnalyzeFunc, store BatchStore, log *slog.Logger, metrics *Metrics) *BatchOrchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &BatchOrchestrator{
		analyze: analyze,
		store:   store,
		log:     log.With(slog.String("component", "batch")),
		metrics: metrics,
		jobs:    make(map[string]*batchJob),
	}
}

// Submit enqueues a new batch job and returns its ID immediately.
//
// # Inputs
//
//   - ctx: Context governing the whole job, not just the submission.
//   - commits: Commits to analyze. Must be non-empty.
//   - opts: Concurrency, dimension set, and failure policy.
//
// # Outputs
//
//   - string: The job ID for Poll/Cancel/Results.
//   - error: ErrNilContext, ErrNoCommits, ErrInvalidConcurrency, or
//     ErrEngineClosed.
func (b *BatchOrchestrator) Submit(ctx context.Context, commits []CommitDescriptor, opts BatchOptions) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	if len(commits) == 0 {
		return "", ErrNoCommits
	}
	if opts.Concurrency < 1 {
		return "", ErrInvalidConcurrency
	}
	dims := opts.Dimensions
	if len(dims) == 0 {
		dims = AllDimensions()
	}
	for _, dim := range dims {
		if !dim.Valid() {
			return "", ErrInvalidDimension
		}
	}

	job := &batchJob{
		id:        uuid.NewString(),
		state:     JobQueued,
		commits:   commits,
		progress:  make([]CommitProgress, len(commits)),
		results:   make([]*AnalysisResult, len(commits)),
		createdAt: time.Now().UTC(),
		stop:      make(chan struct{}),
	}
	for i, c := range commits {
		job.progress[i] = CommitProgress{CommitHash: c.CommitHash, Status: CommitPending}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrEngineClosed
	}
	b.jobs[job.id] = job
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(ctx, job, dims, opts)

	b.log.Info("batch submitted",
		"job_id", job.id,
		"commits", len(commits),
		"concurrency", opts.Concurrency)
	return job.id, nil
}

// run is the job supervisor: it drives the worker pool and settles the
// terminal state after every worker drains.
func (b *BatchOrchestrator) run(ctx context.Context, job *batchJob, dims []AnalysisDimension, opts BatchOptions) {
	defer b.wg.Done()

	job.mu.Lock()
	job.state = JobRunning
	job.notifyLocked()
	snap := job.snapshotLocked()
	job.mu.Unlock()
	b.persistSnapshot(ctx, snap)

	workers := opts.Concurrency
	if workers > len(job.commits) {
		workers = len(job.commits)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				// An index handed out in the same instant the stop signal
				// fired must still not start; it stays pending.
				if stopped(job.stop) {
					continue
				}
				b.runCommit(ctx, job, idx, dims, opts)
			}
		}()
	}

feed:
	for i := range job.commits {
		select {
		case <-job.stop:
			break feed
		case <-ctx.Done():
			job.requestStop()
			break feed
		case indices <- i:
		}
	}
	close(indices)
	wg.Wait()

	job.mu.Lock()
	switch {
	case job.cancelled:
		job.state = JobCancelled
	case opts.FailFast && job.failed > 0:
		job.state = JobFailed
	default:
		job.state = JobCompleted
	}
	state := job.state
	job.notifyLocked()
	snap = job.snapshotLocked()
	job.mu.Unlock()

	// The job ctx may already be cancelled when the terminal state is a
	// cancellation; the durable record must still be written.
	b.persistSnapshot(context.WithoutCancel(ctx), snap)

	if b.metrics != nil {
		b.metrics.RecordBatchJob(ctx, state)
	}
	b.log.Info("batch finished",
		"job_id", job.id,
		"state", state,
		"completed", job.completed,
		"failed", job.failed)
}

// runCommit analyzes a single commit slot and records its outcome.
func (b *BatchOrchestrator) runCommit(ctx context.Context, job *batchJob, idx int, dims []AnalysisDimension, opts BatchOptions) {
	if b.metrics != nil {
		b.metrics.BatchActiveWorkers.Add(ctx, 1)
		defer b.metrics.BatchActiveWorkers.Add(ctx, -1)
	}

	job.mu.Lock()
	job.progress[idx].Status = CommitRunning
	job.notifyLocked()
	job.mu.Unlock()

	result, err := b.analyze(ctx, job.commits[idx], dims, job.stop)

	job.mu.Lock()
	defer job.mu.Unlock()
	if err != nil {
		job.progress[idx].Status = CommitError
		job.progress[idx].Error = err.Error()
		job.failed++
		if opts.FailFast {
			job.requestStop()
		}
		b.log.Warn("batch commit failed",
			"job_id", job.id,
			"commit", job.commits[idx].CommitHash,
			"error", err)
	} else {
		job.progress[idx].Status = CommitDone
		job.results[idx] = result
		job.completed++
	}
	if b.metrics != nil {
		b.metrics.RecordBatchCommit(ctx, job.progress[idx].Status)
	}
	job.notifyLocked()
}

// persistSnapshot writes the job record through the batch store, if one
// is configured. Persistence failures are logged, never fatal: the
// in-memory job remains authoritative for the life of the engine.
func (b *BatchOrchestrator) persistSnapshot(ctx context.Context, snap BatchProgress) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveBatch(ctx, snap); err != nil {
		b.log.Warn("batch state persist failed", "job_id", snap.JobID, "error", err)
	}
}

// Poll returns a point-in-time snapshot of the job.
func (b *BatchOrchestrator) Poll(jobID string) (BatchProgress, error) {
	job, err := b.lookup(jobID)
	if err != nil {
		return BatchProgress{}, err
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.snapshotLocked(), nil
}

// Cancel requests cooperative cancellation of a job.
//
// In-flight commit analyses finish; pending commits never start. The job
// settles in the cancelled state once every worker drains. Cancelling a
// job that is already terminal is a no-op.
func (b *BatchOrchestrator) Cancel(jobID string) error {
	job, err := b.lookup(jobID)
	if err != nil {
		return err
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	if job.state.Terminal() {
		return nil
	}
	job.cancelled = true
	job.requestStop()
	b.log.Info("batch cancel requested", "job_id", jobID)
	return nil
}

// Results returns the per-commit analysis results of a terminal job, in
// submission order with failed commits omitted.
//
// # Outputs
//
//   - []*AnalysisResult: Successful results only.
//   - error: ErrJobNotFound, or ErrJobNotCompleted while the job is
//     still queued or running.
func (b *BatchOrchestrator) Results(jobID string) ([]*AnalysisResult, error) {
	job, err := b.lookup(jobID)
	if err != nil {
		return nil, err
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	if !job.state.Terminal() {
		return nil, ErrJobNotCompleted
	}
	out := make([]*AnalysisResult, 0, len(job.results))
	for _, r := range job.results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// Watch subscribes to progress snapshots for a job. The returned channel
// receives snapshots as the job advances and is closed once the job
// reaches a terminal state; the final snapshot is always delivered.
// The cancel function detaches the watcher early.
func (b *BatchOrchestrator) Watch(jobID string) (<-chan BatchProgress, func(), error) {
	job, err := b.lookup(jobID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan BatchProgress, 16)

	job.mu.Lock()
	if job.state.Terminal() {
		ch <- job.snapshotLocked()
		close(ch)
		job.mu.Unlock()
		return ch, func() {}, nil
	}
	job.watchers = append(job.watchers, ch)
	ch <- job.snapshotLocked()
	job.mu.Unlock()

	cancel := func() {
		job.mu.Lock()
		defer job.mu.Unlock()
		for i, w := range job.watchers {
			if w == ch {
				job.watchers = append(job.watchers[:i], job.watchers[i+1:]...)
				close(w)
				return
			}
		}
	}
	return ch, cancel, nil
}

// Close cancels all non-terminal jobs and blocks until their workers
// drain. Further submissions return ErrEngineClosed.
func (b *BatchOrchestrator) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, job := range b.jobs {
		job.mu.Lock()
		if !job.state.Terminal() {
			job.cancelled = true
			job.requestStop()
		}
		job.mu.Unlock()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *BatchOrchestrator) lookup(jobID string) (*batchJob, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	job, ok := b.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}
