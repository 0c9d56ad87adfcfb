// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/gitdiff"
	"github.com/AleutianAI/AleutianRegress/services/server/handlers"
	"github.com/AleutianAI/AleutianRegress/services/store"
)

func SetupRoutes(router *gin.Engine, eng *engine.Engine, st *store.Store, git *gitdiff.Provider, rev handlers.Reviewer) {

	router.GET("/health", handlers.HealthCheck)

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/analyze", handlers.HandleAnalyze(eng))

		batches := v1.Group("/batches")
		{
			batches.POST("", handlers.HandleSubmitBatch(eng, git))
			batches.GET("/:jobId", handlers.HandleBatchProgress(eng))
			batches.DELETE("/:jobId", handlers.HandleCancelBatch(eng))
			batches.GET("/:jobId/patterns", handlers.HandleBatchPatterns(eng))
			batches.GET("/:jobId/ws", handlers.HandleBatchWebSocket(eng))
		}

		analyses := v1.Group("/analyses")
		{
			analyses.GET("/:hash", handlers.HandleGetAnalysis(eng))
			analyses.GET("/:hash/fixes", handlers.HandleGetFixes(eng))
			analyses.POST("/:hash/revert", handlers.HandleRevertAdvice(eng))
			analyses.GET("/:hash/review", handlers.HandleCodeReview(eng, git, rev))
		}

		v1.GET("/history", handlers.HandleHistory(st))
		v1.GET("/stats", handlers.HandleStats(eng, st))
	}
}
