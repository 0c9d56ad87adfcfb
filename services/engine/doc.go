// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements the regression analysis orchestration and
// decision engine.
//
// The engine turns per-dimension findings produced by an AI inference
// collaborator into a reproducible risk verdict for a commit, ranks
// candidate fixes, and decides whether a revert is advisable. It also
// drives concurrent multi-commit batch jobs with progress and cancellation
// semantics, caches per-commit results idempotently, and detects recurring
// issue patterns across a batch.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────────┐
//	│                        Analysis Pipeline                          │
//	├───────────────────────────────────────────────────────────────────┤
//	│                                                                    │
//	│  CommitDescriptor                                                  │
//	│        │                                                           │
//	│        ▼                                                           │
//	│  ResultCache ──(fingerprint hit)──▶ AnalysisResult                 │
//	│        │ miss                                                      │
//	│        ▼                                                           │
//	│  Dispatcher ──▶ gitdiff.Provider (diff)                            │
//	│        │                                                           │
//	│        ├──▶ functional ─┐   concurrent per-dimension calls to      │
//	│        ├──▶ security   ─┤   the inference collaborator, each       │
//	│        ├──▶ performance─┤   with its own timeout, sharing one      │
//	│        └──▶ …          ─┘   rate limiter                           │
//	│        │                                                           │
//	│        ▼                                                           │
//	│  Aggregator ──▶ FixRanker ──▶ AnalysisResult                       │
//	│                                   │                                │
//	│                                   ├──▶ RevertAdvisor               │
//	│                                   └──▶ PatternDetector (batches)   │
//	│                                                                    │
//	└───────────────────────────────────────────────────────────────────┘
//
// # Degradation model
//
// A dimension that times out, returns malformed output, or is rejected by
// the collaborator is marked degraded. Degraded dimensions never abort a
// commit's analysis; they are excluded from findings and lower the
// aggregate confidence. A commit whose dimensions all degraded yields the
// RiskUnknown sentinel with confidence zero. Commit-level failures (bad
// repository path, unknown hash) never abort sibling work in a batch.
//
// # Thread Safety
//
// All exported types in this package are safe for concurrent use unless
// documented otherwise. The ResultCache is the only shared mutable state
// touched by batch workers; all mutation goes through its single
// get-or-compute entry point.
package engine
