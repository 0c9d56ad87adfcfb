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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/gitdiff"
	"github.com/AleutianAI/AleutianRegress/services/inference"
)

// ReviewGit is the slice of the Git provider the review handler needs.
type ReviewGit interface {
	GetDiff(ctx context.Context, repoPath, commitHash string) ([]engine.DiffHunk, error)
	GetCommitInfo(ctx context.Context, repoPath, commitHash string) (gitdiff.CommitInfo, error)
}

// Reviewer produces qualitative commit reviews.
type Reviewer interface {
	Review(ctx context.Context, rc inference.ReviewContext, hunks []engine.DiffHunk) (*inference.CodeReview, error)
}

// HandleCodeReview serves GET /v1/analyses/:hash/review.
//
// The commit must already have a stored analysis; reviewing an
// unanalyzed commit returns 404. The repository path comes from the
// required "repo" query parameter because stored results do not retain
// it.
func HandleCodeReview(eng *engine.Engine, git ReviewGit, rev Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		repo := c.Query("repo")
		if repo == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "repo query parameter is required"})
			return
		}
		hash := c.Param("hash")

		result, err := eng.Result(c.Request.Context(), hash)
		if err != nil {
			writeAnalysisError(c, err)
			return
		}

		info, err := git.GetCommitInfo(c.Request.Context(), repo, hash)
		if err != nil {
			writeAnalysisError(c, err)
			return
		}
		hunks, err := git.GetDiff(c.Request.Context(), repo, hash)
		if err != nil {
			writeAnalysisError(c, err)
			return
		}

		review, err := rev.Review(c.Request.Context(), inference.ReviewContext{
			CommitHash: info.Hash,
			Author:     info.Author,
			Subject:    info.Subject,
		}, hunks)
		if err != nil {
			slog.Error("code review failed", "commit", hash, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "code review failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"commit":     info,
			"risk_level": result.RiskLevel,
			"review":     review,
		})
	}
}
