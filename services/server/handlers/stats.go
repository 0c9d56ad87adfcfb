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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRegress/services/engine"
	"github.com/AleutianAI/AleutianRegress/services/store"
)

// HandleHistory returns recently computed analyses, newest first.
// ?limit= caps the page size (default 50).
func HandleHistory(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}

		results, err := st.History(c.Request.Context(), limit)
		if err != nil {
			slog.Error("history scan failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// HandleStats reports aggregate counters: persisted analysis statistics
// plus the in-memory fingerprint cache counters.
func HandleStats(eng *engine.Engine, st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := st.Stats(c.Request.Context())
		if err != nil {
			slog.Error("store stats scan failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"store": stats,
			"cache": eng.CacheStats(),
		})
	}
}
