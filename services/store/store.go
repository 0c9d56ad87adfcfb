// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists analysis results and batch job records in an
// embedded BadgerDB instance.
//
// BadgerDB gives low-latency local access without an external database
// process, which keeps the analyzer deployable as a single binary next
// to the repository it watches.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

const (
	resultPrefix  = "result:"
	historyPrefix = "history:"
	batchPrefix   = "batch:"
)

// Config holds configuration for the analysis store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. If nil, that logging
	// is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and a
// 5-minute GC cadence.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for testing: no disk I/O, no
// GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the embedded persistence layer for analysis results.
//
// # Description
//
// Results are keyed by commit hash, with a timestamp-ordered history
// index for recency queries. Batch job snapshots are stored under their
// job ID so terminal jobs survive restarts.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type Store struct {
	db     *badger.DB
	gcStop chan struct{}
	gcDone chan struct{}
	log    *slog.Logger
}

// Open creates and opens a Store with the given configuration.
//
// # Outputs
//
//   - *Store: The opened store. Caller must call Close() when done.
//   - error: Non-nil if the path is invalid or the database cannot be
//     opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		db:  db,
		log: log.With(slog.String("component", "store")),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when nothing needed GC.
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// SaveResult implements engine.ResultStore. The latest result for a
// commit replaces any earlier one; the history index keeps one entry per
// computation.
func (s *Store) SaveResult(ctx context.Context, result *engine.AnalysisResult) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", result.CommitHash, err)
	}
	historyKey := fmt.Sprintf("%s%020d:%s",
		historyPrefix, result.ComputedAt.UnixNano(), result.CommitHash)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(resultPrefix+result.CommitHash), payload); err != nil {
			return err
		}
		return txn.Set([]byte(historyKey), []byte(result.CommitHash))
	})
}

// LoadResult implements engine.ResultStore. Returns
// engine.ErrResultNotFound for commits that were never analyzed.
func (s *Store) LoadResult(ctx context.Context, commitHash string) (*engine.AnalysisResult, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	var result engine.AnalysisResult
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(resultPrefix + commitHash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, engine.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load result %s: %w", commitHash, err)
	}
	return &result, nil
}

// History returns the most recent analyses, newest first, up to limit.
func (s *Store) History(ctx context.Context, limit int) ([]*engine.AnalysisResult, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var hashes []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(historyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the prefix range.
		seek := append([]byte(historyPrefix), 0xFF)
		seen := make(map[string]struct{})
		for it.Seek(seek); it.ValidForPrefix([]byte(historyPrefix)) && len(hashes) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				hash := string(val)
				if _, dup := seen[hash]; !dup {
					seen[hash] = struct{}{}
					hashes = append(hashes, hash)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}

	results := make([]*engine.AnalysisResult, 0, len(hashes))
	for _, hash := range hashes {
		result, err := s.LoadResult(ctx, hash)
		if errors.Is(err, engine.ErrResultNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Statistics summarizes everything the store holds.
type Statistics struct {
	TotalAnalyses   int                      `json:"total_analyses"`
	ByRiskLevel     map[engine.RiskLevel]int `json:"by_risk_level"`
	MeanConfidence  float64                  `json:"mean_confidence"`
	DegradedResults int                      `json:"degraded_results"`
}

// Stats scans all stored results and aggregates per-risk counts.
func (s *Store) Stats(ctx context.Context) (Statistics, error) {
	stats := Statistics{ByRiskLevel: make(map[engine.RiskLevel]int)}
	if err := ctxErr(ctx); err != nil {
		return stats, err
	}

	var confidenceSum float64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(resultPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(resultPrefix)); it.ValidForPrefix([]byte(resultPrefix)); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var result engine.AnalysisResult
				if err := json.Unmarshal(val, &result); err != nil {
					return err
				}
				stats.TotalAnalyses++
				stats.ByRiskLevel[result.RiskLevel]++
				confidenceSum += result.ConfidenceScore
				if len(result.DegradedDimensions) > 0 {
					stats.DegradedResults++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("scan results: %w", err)
	}
	if stats.TotalAnalyses > 0 {
		stats.MeanConfidence = confidenceSum / float64(stats.TotalAnalyses)
	}
	return stats, nil
}

// SaveBatch persists a batch job snapshot under its job ID.
func (s *Store) SaveBatch(ctx context.Context, progress engine.BatchProgress) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal batch %s: %w", progress.JobID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(batchPrefix+progress.JobID), payload)
	})
}

// LoadBatch returns a persisted batch snapshot. Returns
// engine.ErrJobNotFound for unknown IDs.
func (s *Store) LoadBatch(ctx context.Context, jobID string) (engine.BatchProgress, error) {
	var progress engine.BatchProgress
	if err := ctxErr(ctx); err != nil {
		return progress, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(batchPrefix + jobID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &progress)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return progress, engine.ErrJobNotFound
	}
	if err != nil {
		return progress, fmt.Errorf("load batch %s: %w", jobID, err)
	}
	return progress, nil
}

// DeleteResult removes a commit's result and its history entries.
func (s *Store) DeleteResult(ctx context.Context, commitHash string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(resultPrefix + commitHash)); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(historyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var stale [][]byte
		for it.Seek([]byte(historyPrefix)); it.ValidForPrefix([]byte(historyPrefix)); it.Next() {
			key := it.Item().KeyCopy(nil)
			if strings.HasSuffix(string(key), ":"+commitHash) {
				stale = append(stale, key)
			}
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return engine.ErrNilContext
	}
	return ctx.Err()
}
