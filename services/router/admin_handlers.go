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
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/voice-router/services/router/catalog"
	"github.com/gin-gonic/gin"
)

// DescriptorStore is the catalog CRUD boundary used by the admin endpoints.
type DescriptorStore interface {
	Create(ctx context.Context, desc *catalog.ApiDescriptor) (string, error)
	Get(ctx context.Context, id string) (*catalog.StoredDescriptor, error)
	List(ctx context.Context) ([]catalog.StoredDescriptor, error)
	Update(ctx context.Context, id string, desc *catalog.ApiDescriptor) error
	Delete(ctx context.Context, id string) error
}

// The admin endpoints are a straight passthrough to the store. Validation
// lives in catalog.ApiDescriptor.Validate; these handlers only translate
// outcomes to status codes.

// HandleCreateDescriptor handles POST /api/v1/api-index.
//
// Response:
//
//	201 Created: CreatedResponse
//	400 Bad Request: Invalid descriptor
//	502 Bad Gateway: Store unreachable
func (h *Handlers) HandleCreateDescriptor(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateDescriptor")

	var desc catalog.ApiDescriptor
	if err := c.ShouldBindJSON(&desc); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid descriptor body",
			Code:  "INVALID_BODY",
		})
		return
	}
	if err := desc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_DESCRIPTOR",
		})
		return
	}

	id, err := h.store.Create(c.Request.Context(), &desc)
	if err != nil {
		logger.Error("Descriptor create failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "catalog store unavailable",
			Code:  "DEPENDENCY_ERROR",
		})
		return
	}

	logger.Info("Descriptor created",
		slog.String("id", id),
		slog.String("api_uri", desc.ApiURI),
	)
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// HandleListDescriptors handles GET /api/v1/api-index.
func (h *Handlers) HandleListDescriptors(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListDescriptors")

	descs, err := h.store.List(c.Request.Context())
	if err != nil {
		logger.Error("Descriptor list failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "catalog store unavailable",
			Code:  "DEPENDENCY_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, descs)
}

// HandleGetDescriptor handles GET /api/v1/api-index/:id.
func (h *Handlers) HandleGetDescriptor(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetDescriptor")

	desc, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "descriptor not found",
				Code:  "NOT_FOUND",
			})
			return
		}
		logger.Error("Descriptor get failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "catalog store unavailable",
			Code:  "DEPENDENCY_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, desc)
}

// HandleUpdateDescriptor handles PUT /api/v1/api-index/:id.
func (h *Handlers) HandleUpdateDescriptor(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateDescriptor")

	var desc catalog.ApiDescriptor
	if err := c.ShouldBindJSON(&desc); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid descriptor body",
			Code:  "INVALID_BODY",
		})
		return
	}
	if err := desc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_DESCRIPTOR",
		})
		return
	}

	id := c.Param("id")
	if err := h.store.Update(c.Request.Context(), id, &desc); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "descriptor not found",
				Code:  "NOT_FOUND",
			})
			return
		}
		logger.Error("Descriptor update failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "catalog store unavailable",
			Code:  "DEPENDENCY_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, CreatedResponse{ID: id})
}

// HandleDeleteDescriptor handles DELETE /api/v1/api-index/:id.
func (h *Handlers) HandleDeleteDescriptor(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteDescriptor")

	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "descriptor not found",
				Code:  "NOT_FOUND",
			})
			return
		}
		logger.Error("Descriptor delete failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "catalog store unavailable",
			Code:  "DEPENDENCY_ERROR",
		})
		return
	}
	c.Status(http.StatusNoContent)
}
