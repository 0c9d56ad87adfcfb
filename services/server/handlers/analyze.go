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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

// AnalyzeRequest is the body of POST /v1/analyze.
type AnalyzeRequest struct {
	CommitHash     string                     `json:"commit_hash" binding:"required"`
	RepositoryPath string                     `json:"repository_path" binding:"required"`
	Dimensions     []engine.AnalysisDimension `json:"dimensions,omitempty"`
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func HandleAnalyze(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AnalyzeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		slog.Info("Received analyze request", "commit", req.CommitHash)

		result, err := eng.Analyze(c.Request.Context(), engine.CommitDescriptor{
			CommitHash:     req.CommitHash,
			RepositoryPath: req.RepositoryPath,
		}, req.Dimensions)
		if err != nil {
			writeAnalysisError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func HandleGetAnalysis(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := eng.Result(c.Request.Context(), c.Param("hash"))
		if err != nil {
			writeAnalysisError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func HandleGetFixes(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := eng.Result(c.Request.Context(), c.Param("hash"))
		if err != nil {
			writeAnalysisError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"commit_hash": result.CommitHash,
			"suggestions": result.Suggestions,
		})
	}
}

// RevertRequest is the body of POST /v1/analyses/:hash/revert.
type RevertRequest struct {
	TimelineOverride bool `json:"timeline_override"`
}

func HandleRevertAdvice(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RevertRequest
		// An empty body means no constraints.
		if c.Request.ContentLength > 0 {
			if err := c.BindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
				return
			}
		}

		rec, err := eng.Recommend(c.Request.Context(), c.Param("hash"),
			engine.RevertConstraints{TimelineOverride: req.TimelineOverride})
		if err != nil {
			writeAnalysisError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// writeAnalysisError maps engine errors onto HTTP statuses.
func writeAnalysisError(c *gin.Context, err error) {
	var gitErr *engine.GitAccessError
	var valErr validator.ValidationErrors
	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error()})
	case errors.Is(err, engine.ErrResultNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for this commit"})
	case errors.Is(err, engine.ErrInvalidDimension):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown analysis dimension"})
	case errors.As(err, &gitErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": gitErr.Error()})
	default:
		slog.Error("analysis request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
	}
}
