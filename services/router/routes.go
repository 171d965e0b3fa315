// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all router endpoints with the given group.
//
// Description:
//
//	Registers the question and admin endpoints under the group, which is
//	typically /api/v1. Middleware (recovery, tracing) is expected on the
//	group already.
//
// Inputs:
//
//	rg - Gin router group (typically /api/v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /api/v1/question - Route an uploaded audio query
//	POST /api/v1/question_text - Route a typed text query
//
//	POST   /api/v1/api-index - Store a new API descriptor
//	GET    /api/v1/api-index - List all descriptors
//	GET    /api/v1/api-index/:id - Get a descriptor
//	PUT    /api/v1/api-index/:id - Replace a descriptor
//	DELETE /api/v1/api-index/:id - Delete a descriptor
//
//	GET /api/v1/health - Health check
//
// Example:
//
//	handlers, _ := router.NewHandlers(pipeline, whisper, store, uploadDir)
//
//	v1 := engine.Group("/api/v1")
//	router.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	// Query endpoints
	rg.POST("/question", handlers.HandleQuestionAudio)
	rg.POST("/question_text", handlers.HandleQuestionText)

	// Catalog administration
	index := rg.Group("/api-index")
	{
		index.POST("", handlers.HandleCreateDescriptor)
		index.GET("", handlers.HandleListDescriptors)
		index.GET("/:id", handlers.HandleGetDescriptor)
		index.PUT("/:id", handlers.HandleUpdateDescriptor)
		index.DELETE("/:id", handlers.HandleDeleteDescriptor)
	}

	// Health check
	rg.GET("/health", handlers.HandleHealth)
}
