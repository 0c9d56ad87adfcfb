// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/gitdiff"
)

// CommitRange selects commits by Git range instead of an explicit list.
type CommitRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// BatchRequest is the body of POST /v1/batches. Either Commits or Range
// must be set.
type BatchRequest struct {
	RepositoryPath string                     `json:"repository_path" binding:"required"`
	Commits        []string                   `json:"commits,omitempty"`
	Range          *CommitRange               `json:"range,omitempty"`
	Dimensions     []engine.AnalysisDimension `json:"dimensions,omitempty"`
	Concurrency    int                        `json:"concurrency,omitempty"`
	FailFast       bool                       `json:"fail_fast,omitempty"`
}

func HandleSubmitBatch(eng *engine.Engine, git *gitdiff.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		hashes := req.Commits
		if len(hashes) == 0 && req.Range != nil {
			var err error
			hashes, err = git.ListCommitRange(c.Request.Context(),
				req.RepositoryPath, req.Range.From, req.Range.To)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
		}
		if len(hashes) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no commits in request"})
			return
		}

		commits := make([]engine.CommitDescriptor, len(hashes))
		for i, hash := range hashes {
			commits[i] = engine.CommitDescriptor{
				CommitHash:     hash,
				RepositoryPath: req.RepositoryPath,
			}
		}

		concurrency := req.Concurrency
		if concurrency <= 0 {
			concurrency = 2
		}

		// The job must outlive this request; only batch cancellation stops
		// it.
		jobID, err := eng.SubmitBatch(context.Background(), commits, engine.BatchOptions{
			Dimensions:  req.Dimensions,
			Concurrency: concurrency,
			FailFast:    req.FailFast,
		})
		if err != nil {
			writeBatchError(c, err)
			return
		}
		slog.Info("Batch submitted", "job_id", jobID, "commits", len(commits))
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
	}
}

func HandleBatchProgress(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		progress, err := eng.PollBatch(c.Param("jobId"))
		if err != nil {
			writeBatchError(c, err)
			return
		}
		c.JSON(http.StatusOK, progress)
	}
}

func HandleCancelBatch(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		if err := eng.CancelBatch(jobID); err != nil {
			writeBatchError(c, err)
			return
		}
		slog.Info("Batch cancel requested", "job_id", jobID)
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": "cancelling"})
	}
}

func HandleBatchPatterns(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		patterns, err := eng.DetectPatterns(c.Param("jobId"))
		if err != nil {
			writeBatchError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"patterns": patterns})
	}
}

func writeBatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown batch job"})
	case errors.Is(err, engine.ErrJobNotCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "batch job has not finished"})
	case errors.Is(err, engine.ErrNoCommits),
		errors.Is(err, engine.ErrInvalidConcurrency),
		errors.Is(err, engine.ErrInvalidDimension):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrEngineClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine is shutting down"})
	default:
		slog.Error("batch request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch operation failed"})
	}
}
