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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName identifies the server in traces.
const ServiceName = "projectassist"

// RegisterRoutes registers the /v1/assistant endpoints.
//
// Endpoints:
//
//	POST   /v1/assistant/chat - Answer one utterance
//	GET    /v1/assistant/chat/ws - Chat over a WebSocket
//	GET    /v1/assistant/sessions/:id - Session state and derived context
//	DELETE /v1/assistant/sessions/:id - Reset a session
//	GET    /v1/assistant/health - Health check
//	GET    /v1/assistant/docs/status - Documentation index status
//
// Example:
//
//	v1 := router.Group("/v1")
//	assistant.RegisterRoutes(v1, assistant.NewHandlers(a, nil))
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	g := rg.Group("/assistant")
	{
		g.POST("/chat", handlers.HandleChat)
		g.GET("/chat/ws", handlers.HandleChatSocket)

		g.GET("/sessions/:id", handlers.HandleGetSession)
		g.DELETE("/sessions/:id", handlers.HandleResetSession)

		g.GET("/health", handlers.HandleHealth)
		g.GET("/docs/status", handlers.HandleDocsStatus)
	}
}

// NewEngine builds the gin engine with recovery, tracing, request ids,
// /metrics and the assistant routes.
func NewEngine(handlers *Handlers, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(RequestIDMiddleware())
	if debug {
		router.Use(gin.Logger())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}
