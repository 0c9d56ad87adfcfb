// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for analysis and batch HTTP handlers

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/gitdiff"
	"github.com/AleutianAI/AleutianRegress/services/inference"
	"github.com/AleutianAI/AleutianRegress/services/store"
)

// stubGit serves a fixed hunk set for every commit.
type stubGit struct{}

func (stubGit) GetDiff(ctx context.Context, repoPath, commitHash string) ([]engine.DiffHunk, error) {
	return []engine.DiffHunk{{
		FilePath: "pkg/core/core.go",
		OldRange:   engine.LineRange{Start: 10, Lines: 2},
		NewRange:   engine.LineRange{Start: 10, Lines: 3},
		NewContent: "if p == nil {\n\treturn\n}",
	}}, nil
}

// stubInference reports one security finding and nothing else.
type stubInference struct{}

func (stubInference) Analyze(ctx context.Context, dim engine.AnalysisDimension, hunks []engine.DiffHunk) ([]engine.Finding, error) {
	if dim != engine.DimSecurity {
		return nil, nil
	}
	return []engine.Finding{{
		Dimension:     dim,
		Severity:      engine.SeverityHigh,
		Title:         "Unvalidated input reaches query builder",
		Description:   "User input is concatenated into the query",
		AffectedFiles: []string{"pkg/core/core.go"},
		LineNumbers:   []int{10},
		Confidence:    0.9,
	}}, nil
}

// stubReviewGit extends stubGit with fixed commit metadata.
type stubReviewGit struct{ stubGit }

func (stubReviewGit) GetCommitInfo(ctx context.Context, repoPath, commitHash string) (gitdiff.CommitInfo, error) {
	return gitdiff.CommitInfo{
		Hash:    commitHash,
		Author:  "Dev One",
		Subject: "Tighten input validation",
	}, nil
}

// stubReviewer returns a canned review or a scripted error.
type stubReviewer struct{ err error }

func (s stubReviewer) Review(ctx context.Context, rc inference.ReviewContext, hunks []engine.DiffHunk) (*inference.CodeReview, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &inference.CodeReview{
		CommitHash:   rc.CommitHash,
		OverallScore: 72,
		CodeQuality:  inference.CodeQuality{Score: 70, Complexity: "low"},
		Improvements: []inference.ReviewImprovement{{
			Type:        "refactoring",
			Description: "extract the validation helper",
			Priority:    "medium",
			Effort:      "low",
		}},
	}, nil
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	eng := engine.New(stubGit{}, stubInference{}, st, engine.Config{
		Dispatcher: engine.DispatcherConfig{RateLimit: 1000, RateBurst: 1000},
	}, nil, nil)
	t.Cleanup(eng.Close)
	return eng
}

func newTestRouter(eng *engine.Engine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/analyze", HandleAnalyze(eng))
	router.GET("/v1/analyses/:hash", HandleGetAnalysis(eng))
	router.GET("/v1/analyses/:hash/fixes", HandleGetFixes(eng))
	router.POST("/v1/analyses/:hash/revert", HandleRevertAdvice(eng))
	router.GET("/v1/analyses/:hash/review", HandleCodeReview(eng, stubReviewGit{}, stubReviewer{}))
	router.POST("/v1/batches", HandleSubmitBatch(eng, nil))
	router.GET("/v1/batches/:jobId", HandleBatchProgress(eng))
	router.DELETE("/v1/batches/:jobId", HandleCancelBatch(eng))
	router.GET("/v1/batches/:jobId/patterns", HandleBatchPatterns(eng))
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Analyze handler tests
// =============================================================================

func TestHandleAnalyze_InvalidJSON(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/analyze", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAnalyze_MissingCommitHash(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := postJSON(t, router, "/v1/analyze", map[string]any{
		"repository_path": "/repos/demo",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAnalyze_UnknownDimension(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := postJSON(t, router, "/v1/analyze", AnalyzeRequest{
		CommitHash:     "abc1234",
		RepositoryPath: "/repos/demo",
		Dimensions:     []engine.AnalysisDimension{"astrology"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAnalyze_ReturnsResult(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := postJSON(t, router, "/v1/analyze", AnalyzeRequest{
		CommitHash:     "abc1234",
		RepositoryPath: "/repos/demo",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result engine.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "abc1234", result.CommitHash)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, engine.DimSecurity, result.Findings[0].Dimension)
	assert.NotEmpty(t, result.Suggestions)
}

func TestHandleGetAnalysis_NotFound(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := get(router, "/v1/analyses/deadbee")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetFixes_AfterAnalyze(t *testing.T) {
	eng := newTestEngine(t)
	router := newTestRouter(eng)

	w := postJSON(t, router, "/v1/analyze", AnalyzeRequest{
		CommitHash:     "abc1234",
		RepositoryPath: "/repos/demo",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = get(router, "/v1/analyses/abc1234/fixes")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		CommitHash  string                 `json:"commit_hash"`
		Suggestions []engine.FixSuggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "abc1234", body.CommitHash)
	assert.NotEmpty(t, body.Suggestions)
}

func TestHandleRevertAdvice_EmptyBodyAllowed(t *testing.T) {
	eng := newTestEngine(t)
	router := newTestRouter(eng)

	w := postJSON(t, router, "/v1/analyze", AnalyzeRequest{
		CommitHash:     "abc1234",
		RepositoryPath: "/repos/demo",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/analyses/abc1234/revert", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec engine.RevertRecommendation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "abc1234", rec.CommitHash)
	assert.NotEmpty(t, rec.Rationale)
}

func TestHandleCodeReview_RequiresRepoParam(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := get(router, "/v1/analyses/abc1234/review")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCodeReview_UnanalyzedCommit(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := get(router, "/v1/analyses/deadbee/review?repo=/repos/demo")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCodeReview_AfterAnalyze(t *testing.T) {
	eng := newTestEngine(t)
	router := newTestRouter(eng)

	w := postJSON(t, router, "/v1/analyze", AnalyzeRequest{
		CommitHash:     "abc1234",
		RepositoryPath: "/repos/demo",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = get(router, "/v1/analyses/abc1234/review?repo=/repos/demo")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Commit    gitdiff.CommitInfo   `json:"commit"`
		RiskLevel engine.RiskLevel     `json:"risk_level"`
		Review    inference.CodeReview `json:"review"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "abc1234", body.Commit.Hash)
	assert.Equal(t, 72, body.Review.OverallScore)
	require.Len(t, body.Review.Improvements, 1)
	assert.Equal(t, "refactoring", body.Review.Improvements[0].Type)
	assert.NotEmpty(t, body.RiskLevel)
}

// =============================================================================
// Batch handler tests
// =============================================================================

func TestHandleSubmitBatch_NoCommits(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := postJSON(t, router, "/v1/batches", BatchRequest{
		RepositoryPath: "/repos/demo",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSubmitBatch_AndPoll(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := postJSON(t, router, "/v1/batches", BatchRequest{
		RepositoryPath: "/repos/demo",
		Commits:        []string{"a000000", "b000000"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var submitted map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	jobID := submitted["job_id"]
	require.NotEmpty(t, jobID)

	deadline := time.Now().Add(5 * time.Second)
	var progress engine.BatchProgress
	for {
		w = get(router, "/v1/batches/"+jobID)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
		if progress.State == engine.JobCompleted {
			break
		}
		require.True(t, time.Now().Before(deadline), "batch never completed: %v", progress.State)
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 2, progress.Completed)
}

func TestHandleBatchProgress_UnknownJob(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := get(router, "/v1/batches/nonexistent")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCancelBatch_UnknownJob(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/batches/nonexistent", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleBatchPatterns_BeforeCompletion(t *testing.T) {
	router := newTestRouter(newTestEngine(t))

	w := postJSON(t, router, "/v1/batches", BatchRequest{
		RepositoryPath: "/repos/demo",
		Commits:        []string{"a000000", "b000000", "c000000", "d000000"},
		Concurrency:    1,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var submitted map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))

	// The job is almost certainly still running with concurrency 1.
	w = get(router, "/v1/batches/"+submitted["job_id"]+"/patterns")
	if w.Code != http.StatusOK {
		assert.Equal(t, http.StatusConflict, w.Code)
	}
}
