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
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// AnalysisDimension is one independent analysis lens applied to a commit.
//
// The set is closed. Each dimension is independently timed and
// independently failable; there is no ordering between dimensions.
type AnalysisDimension string

const (
	DimFunctional    AnalysisDimension = "functional"
	DimPerformance   AnalysisDimension = "performance"
	DimSecurity      AnalysisDimension = "security"
	DimTestImpact    AnalysisDimension = "test_impact"
	DimCompatibility AnalysisDimension = "compatibility"
	DimMemoryLeak    AnalysisDimension = "memory_leak"
	DimRaceCondition AnalysisDimension = "race_condition"
)

// AllDimensions returns the full closed dimension set in canonical order.
func AllDimensions() []AnalysisDimension {
	return []AnalysisDimension{
		DimFunctional,
		DimPerformance,
		DimSecurity,
		DimTestImpact,
		DimCompatibility,
		DimMemoryLeak,
		DimRaceCondition,
	}
}

// Valid reports whether d is a member of the closed dimension set.
func (d AnalysisDimension) Valid() bool {
	switch d {
	case DimFunctional, DimPerformance, DimSecurity, DimTestImpact,
		DimCompatibility, DimMemoryLeak, DimRaceCondition:
		return true
	default:
		return false
	}
}

// Severity classifies how serious a single finding is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Order returns the numeric order of the severity (low=1 .. critical=4).
// Unknown values order below low.
func (s Severity) Order() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// RiskLevel is the aggregate risk verdict for one commit.
//
// RiskUnknown is a sentinel distinct from RiskLow: it means the analysis
// fully degraded and nothing reliable can be said about the commit.
type RiskLevel string

const (
	RiskUnknown  RiskLevel = "unknown"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Order returns the numeric order of the risk level (unknown=0 .. critical=4).
func (r RiskLevel) Order() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// Exceeds reports whether r is strictly above the threshold.
func (r RiskLevel) Exceeds(threshold RiskLevel) bool {
	return r.Order() > threshold.Order()
}

// ParseRiskLevel parses a string to a RiskLevel, defaulting to RiskUnknown.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToLower(s) {
	case "low":
		return RiskLow
	case "medium":
		return RiskMedium
	case "high":
		return RiskHigh
	case "critical":
		return RiskCritical
	default:
		return RiskUnknown
	}
}

// riskFromSeverity maps a finding severity to the equivalent risk level.
func riskFromSeverity(s Severity) RiskLevel {
	switch s {
	case SeverityLow:
		return RiskLow
	case SeverityMedium:
		return RiskMedium
	case SeverityHigh:
		return RiskHigh
	case SeverityCritical:
		return RiskCritical
	default:
		return RiskUnknown
	}
}

// escalate raises a risk level by one step, capped at critical.
func escalate(r RiskLevel) RiskLevel {
	switch r {
	case RiskLow:
		return RiskMedium
	case RiskMedium:
		return RiskHigh
	case RiskHigh, RiskCritical:
		return RiskCritical
	default:
		return r
	}
}

// EffortLevel estimates how expensive a fix is to implement.
type EffortLevel string

const (
	EffortLow    EffortLevel = "low"
	EffortMedium EffortLevel = "medium"
	EffortHigh   EffortLevel = "high"
)

// Weight returns the divisor used when scoring suggestions. Cheap fixes
// for severe issues surface first, so lower effort means a smaller divisor.
func (e EffortLevel) Weight() float64 {
	switch e {
	case EffortLow:
		return 1
	case EffortMedium:
		return 2
	case EffortHigh:
		return 3
	default:
		return 2
	}
}

// CommitDescriptor is the immutable identity of work to analyze.
type CommitDescriptor struct {
	CommitHash     string `json:"commit_hash" validate:"required"`
	RepositoryPath string `json:"repository_path" validate:"required"`
	ParentHash     string `json:"parent_hash,omitempty"`
}

// Fingerprint derives the deterministic cache key for this commit and the
// requested dimension set.
//
// # Description
//
// The fingerprint is SHA256(commit_hash + "\x00" + repository_path +
// "\x00" + sorted dimensions). Dimension order in the request does not
// affect the key, so re-requesting the same analysis always hits the same
// cache entry.
func (c CommitDescriptor) Fingerprint(dims []AnalysisDimension) string {
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = string(d)
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(c.CommitHash))
	h.Write([]byte{0})
	h.Write([]byte(c.RepositoryPath))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(names, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// LineRange is a half-open range of lines within one side of a diff.
type LineRange struct {
	Start int `json:"start"`
	Lines int `json:"lines"`
}

// DiffHunk is one contiguous region of change supplied by the Git
// collaborator. Read-only input to the engine.
type DiffHunk struct {
	FilePath   string    `json:"file_path"`
	OldRange   LineRange `json:"old_range"`
	NewRange   LineRange `json:"new_range"`
	OldContent string    `json:"old_content"`
	NewContent string    `json:"new_content"`
}

// Finding is one issue reported by the inference collaborator for a
// single dimension. One dimension yields zero or more findings.
type Finding struct {
	Dimension     AnalysisDimension `json:"dimension" validate:"required"`
	Severity      Severity          `json:"severity" validate:"required,oneof=low medium high critical"`
	Confidence    float64           `json:"confidence" validate:"gte=0,lte=1"`
	Title         string            `json:"title" validate:"required"`
	Description   string            `json:"description"`
	AffectedFiles []string          `json:"affected_files"`
	LineNumbers   []int             `json:"line_numbers,omitempty"`
	Evidence      string            `json:"evidence,omitempty"`
}

// CodeChange is a concrete edit referenced by a FixSuggestion.
type CodeChange struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	OldCode string `json:"old_code,omitempty"`
	NewCode string `json:"new_code,omitempty"`
}

// FixSuggestion is a candidate remediation derived from one or more
// findings. Suggestions reference findings many-to-many; neither owns
// the other.
type FixSuggestion struct {
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	CodeChanges    []CodeChange `json:"code_changes,omitempty"`
	EffortLevel    EffortLevel  `json:"effort_level"`
	RiskAssessment string       `json:"risk_assessment,omitempty"`
	Confidence     float64      `json:"confidence"`
}

// AnalysisResult is the aggregate verdict for one commit across all
// requested dimensions. Owned exclusively by the engine and immutable
// once computed; cached by fingerprint.
type AnalysisResult struct {
	CommitHash         string              `json:"commit_hash"`
	RiskLevel          RiskLevel           `json:"risk_level"`
	ConfidenceScore    float64             `json:"confidence_score"`
	Findings           []Finding           `json:"findings"`
	Suggestions        []FixSuggestion     `json:"suggestions"`
	DegradedDimensions []AnalysisDimension `json:"degraded_dimensions"`
	ComputedAt         time.Time           `json:"computed_at"`
}

// RevertDecision is the terminal outcome of the revert advisor.
type RevertDecision string

const (
	DecisionRevert     RevertDecision = "revert"
	DecisionFixForward RevertDecision = "fix_forward"
	DecisionMonitor    RevertDecision = "monitor"
)

// RevertConstraints carries caller-supplied context for the revert
// decision, such as release timeline pressure.
type RevertConstraints struct {
	// TimelineOverride indicates the caller cannot absorb a revert right
	// now (release freeze, hotfix window). It suppresses the revert
	// decision in favor of fix_forward or monitor.
	TimelineOverride bool `json:"timeline_override"`
}

// RevertRecommendation is computed on demand from an AnalysisResult and
// is never persisted as part of the result's identity.
type RevertRecommendation struct {
	CommitHash         string         `json:"commit_hash"`
	Decision           RevertDecision `json:"decision"`
	Rationale          string         `json:"rationale"`
	AlternativeActions []string       `json:"alternative_actions"`
}

// JobState is the lifecycle state of a batch job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state is terminal.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// CommitStatus is the per-commit status inside a batch job.
type CommitStatus string

const (
	CommitPending CommitStatus = "pending"
	CommitRunning CommitStatus = "running"
	CommitDone    CommitStatus = "done"
	CommitError   CommitStatus = "error"
)

// CommitProgress is the per-commit slot of a BatchProgress snapshot.
type CommitProgress struct {
	CommitHash string       `json:"commit_hash"`
	Status     CommitStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
}

// BatchProgress is a point-in-time snapshot of a batch job. Counters are
// monotonically non-decreasing across successive snapshots and
// Completed+Failed never exceeds Total.
type BatchProgress struct {
	JobID     string           `json:"job_id"`
	State     JobState         `json:"state"`
	Total     int              `json:"total"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Commits   []CommitProgress `json:"commits"`
	CreatedAt time.Time        `json:"created_at"`
}

// Pattern is a finding signature recurring across commits in one batch.
// Derived and ephemeral; recomputed per batch, never persisted.
type Pattern struct {
	Signature             string            `json:"signature"`
	Dimension             AnalysisDimension `json:"dimension"`
	OccurrenceCount       int               `json:"occurrence_count"`
	ExampleCommits        []string          `json:"example_commits"`
	RepresentativeFinding Finding           `json:"representative_finding"`
}

// validate is the shared validator instance for schema checks.
var validate = validator.New()

// ValidateFinding checks a collaborator-supplied finding against the
// schema invariants: known dimension, known severity, confidence in
// [0,1], non-empty title.
//
// # Outputs
//
//   - error: Non-nil if the finding is schema-invalid. The dispatcher
//     treats this as a malformed response.
func ValidateFinding(f Finding) error {
	if !f.Dimension.Valid() {
		return ErrInvalidDimension
	}
	return validate.Struct(f)
}
