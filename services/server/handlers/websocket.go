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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Progress snapshots carry no secrets and the endpoint is
		// read-only.
		return true
	},
}

// HandleBatchWebSocket streams batch progress snapshots over a WebSocket.
//
// # Description
//
// Upgrades the connection, subscribes to the job's progress feed, and
// forwards every snapshot as a JSON frame. The subscription closes when
// the job reaches a terminal state, after which the socket is closed
// normally. A client that disconnects early just drops its watcher.
//
// # Inputs
//
//   - eng: Engine owning the batch orchestrator.
//
// # Outputs
//
//   - gin.HandlerFunc: Handler for GET /v1/batches/:jobId/ws.
func HandleBatchWebSocket(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		progress, cancel, err := eng.WatchBatch(jobID)
		if err != nil {
			if errors.Is(err, engine.ErrJobNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown batch job"})
				return
			}
			slog.Error("batch watch failed", "job_id", jobID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to watch batch"})
			return
		}
		defer cancel()

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("WebSocket upgrade failed", "job_id", jobID, "error", err)
			return
		}
		defer ws.Close()

		// Drain client frames so close messages are processed; the
		// endpoint never reads payloads.
		go func() {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		for snapshot := range progress {
			if err := ws.WriteJSON(snapshot); err != nil {
				slog.Debug("WebSocket write failed, client gone",
					"job_id", jobID, "error", err)
				return
			}
		}

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch finished")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}
