// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/projectassist/services/assistant/docs"
	"github.com/AleutianAI/projectassist/services/assistant/session"
	"github.com/AleutianAI/projectassist/services/llm"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ChatRequest is the body of POST /v1/assistant/chat.
type ChatRequest struct {
	SessionID string `json:"session_id" binding:"omitempty,max=128"`
	Message   string `json:"message" binding:"required,max=4000"`
}

// SessionResponse is the body of GET /v1/assistant/sessions/:id.
type SessionResponse struct {
	Session session.Session        `json:"session"`
	Context session.DerivedContext `json:"context"`
}

// HealthResponse is the body of GET /v1/assistant/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Project     string `json:"project"`
	Sessions    int    `json:"sessions"`
	DocsIndexed int    `json:"docs_indexed"`
}

// DocsStatusResponse is the body of GET /v1/assistant/docs/status.
type DocsStatusResponse struct {
	Enabled bool              `json:"enabled"`
	Pages   int               `json:"pages"`
	Roots   []string          `json:"roots"`
	Titles  []string          `json:"titles"`
	Cached  []docs.CacheEntry `json:"cached,omitempty"`
}

// CacheLister lists cached documentation roots. *docs.BadgerPageCache
// satisfies it.
type CacheLister interface {
	Entries(ctx context.Context) ([]docs.CacheEntry, error)
}

// Handlers serves the assistant HTTP API.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	assistant *Assistant
	cache     CacheLister

	// pongWait is how long the chat socket waits for a frame or pong.
	pongWait time.Duration
}

// NewHandlers creates Handlers. cache may be nil.
func NewHandlers(a *Assistant, cache CacheLister) *Handlers {
	return &Handlers{assistant: a, cache: cache, pongWait: socketPongWait}
}

// RequestIDMiddleware reuses an incoming X-Request-ID or generates one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// HandleChat handles POST /v1/assistant/chat.
//
// Response:
//
//	200 OK: Response (failures are answered with a user-facing message)
//	400 Bad Request: Malformed body or missing message
func (h *Handlers) HandleChat(c *gin.Context) {
	logger := slog.With("request_id", requestID(c), "handler", "HandleChat")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Info("invalid chat request", slog.String("error", llm.SafeLogString(err.Error())))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "message is required and must be at most 4000 characters",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp := h.assistant.Ask(c.Request.Context(), req.SessionID, req.Message)
	logger.Info("chat answered",
		slog.String("session_id", resp.SessionID),
		slog.String("domain", string(resp.Domain)),
		slog.String("intent", resp.Intent),
		slog.Int("results", resp.Results),
		slog.Int64("latency_ms", resp.LatencyMS),
	)
	c.JSON(http.StatusOK, resp)
}

// HandleGetSession handles GET /v1/assistant/sessions/:id.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	id := c.Param("id")
	store := h.assistant.Store()
	c.JSON(http.StatusOK, SessionResponse{
		Session: store.GetOrCreate(id),
		Context: store.DerivedContext(id),
	})
}

// HandleResetSession handles DELETE /v1/assistant/sessions/:id.
func (h *Handlers) HandleResetSession(c *gin.Context) {
	h.assistant.Store().Reset(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/assistant/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:   "ok",
		Project:  h.assistant.ProjectKey(),
		Sessions: h.assistant.Store().Len(),
	}
	if idx := h.assistant.DocsIndex(); idx != nil {
		resp.DocsIndexed = idx.Len()
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDocsStatus handles GET /v1/assistant/docs/status.
func (h *Handlers) HandleDocsStatus(c *gin.Context) {
	idx := h.assistant.DocsIndex()
	if idx == nil {
		c.JSON(http.StatusOK, DocsStatusResponse{Roots: []string{}, Titles: []string{}})
		return
	}
	resp := DocsStatusResponse{
		Enabled: true,
		Pages:   idx.Len(),
		Roots:   nonNil(idx.Roots()),
		Titles:  nonNil(idx.Titles()),
	}
	if h.cache != nil {
		entries, err := h.cache.Entries(c.Request.Context())
		if err != nil {
			slog.Warn("listing docs cache failed",
				slog.String("request_id", requestID(c)),
				slog.String("error", err.Error()))
		} else {
			resp.Cached = entries
		}
	}
	c.JSON(http.StatusOK, resp)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
