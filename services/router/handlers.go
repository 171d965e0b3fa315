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
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/voice-router/services/router/intent"
	"github.com/AleutianAI/voice-router/services/router/transcribe"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MaxAudioUploadBytes bounds a single audio upload (25 MB, the transcription
// endpoint's own limit).
const MaxAudioUploadBytes = 25 << 20

// QueryPipeline runs one query through resolve, extract, and invoke.
type QueryPipeline interface {
	Run(ctx context.Context, text string) (*intent.Result, error)
}

// Handlers holds the HTTP handler dependencies.
//
// Thread Safety: All methods are safe for concurrent use.
type Handlers struct {
	pipeline    QueryPipeline
	transcriber transcribe.Transcriber
	store       DescriptorStore
	uploadDir   string
}

// NewHandlers creates the handler set.
//
// Inputs:
//   - pipeline: Query pipeline. Must not be nil.
//   - transcriber: Audio transcription boundary. Must not be nil.
//   - store: Descriptor CRUD boundary for the admin endpoints. Must not be
//     nil.
//   - uploadDir: Directory for received audio files. Created if missing.
func NewHandlers(pipeline QueryPipeline, transcriber transcribe.Transcriber, store DescriptorStore, uploadDir string) (*Handlers, error) {
	if pipeline == nil || transcriber == nil || store == nil {
		return nil, fmt.Errorf("router: pipeline, transcriber, and store must not be nil")
	}
	if uploadDir == "" {
		return nil, fmt.Errorf("router: upload directory must not be empty")
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("router: creating upload directory: %w", err)
	}
	return &Handlers{
		pipeline:    pipeline,
		transcriber: transcriber,
		store:       store,
		uploadDir:   uploadDir,
	}, nil
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleQuestionAudio handles POST /api/v1/question.
//
// Description:
//
//	Accepts a multipart audio upload, persists it under the upload
//	directory, transcribes it, and runs the routing pipeline. A matched
//	query answers on the voice channel (voice_form); an unmatched query
//	returns the fallback message with the transcription echoed back.
//
// Response:
//
//	200 OK: MatchResponse or NoMatchResponse
//	400 Bad Request: Missing or unreadable file part
//	502 Bad Gateway: Transcription or search backend unreachable
//
// Thread Safety: Safe for concurrent use.
func (h *Handlers) HandleQuestionAudio(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuestionAudio")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "file part is required",
			Code:  "MISSING_FILE",
		})
		return
	}
	if fileHeader.Size > MaxAudioUploadBytes {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("file exceeds %d bytes", MaxAudioUploadBytes),
			Code:  "FILE_TOO_LARGE",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "cannot read uploaded file",
			Code:  "UNREADABLE_FILE",
		})
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, MaxAudioUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "cannot read uploaded file",
			Code:  "UNREADABLE_FILE",
		})
		return
	}

	// Keep a copy of what was received. Filenames are flattened to their
	// base so a crafted name cannot escape the upload directory.
	savedName := uuid.NewString() + "_" + filepath.Base(fileHeader.Filename)
	savedPath := filepath.Join(h.uploadDir, savedName)
	if err := os.WriteFile(savedPath, audio, 0o644); err != nil {
		logger.Warn("Failed to persist uploaded audio",
			slog.String("path", savedPath),
			slog.String("error", err.Error()),
		)
		// Transcription proceeds from memory either way.
	}

	text, err := h.transcriber.Transcribe(c.Request.Context(), audio, fileHeader.Filename)
	if err != nil {
		logger.Error("Transcription failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "transcription service unavailable",
			Code:  "DEPENDENCY_ERROR",
		})
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "no speech recognized in audio",
			Code:  "EMPTY_TRANSCRIPTION",
		})
		return
	}

	logger.Info("Audio transcribed",
		slog.Int("audio_bytes", len(audio)),
		slog.Int("text_len", len(text)),
	)
	h.respondWithPipeline(c, logger, text, true)
}

// HandleQuestionText handles POST /api/v1/question_text.
//
// Description:
//
//	Accepts a JSON body with the user's text and runs the routing
//	pipeline. A matched query answers on the text channel (text_form).
//
// Response:
//
//	200 OK: MatchResponse or NoMatchResponse
//	400 Bad Request: Missing or empty text
//	502 Bad Gateway: Search backend unreachable
//
// Thread Safety: Safe for concurrent use.
func (h *Handlers) HandleQuestionText(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuestionText")

	var req QuestionTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "text is required",
			Code:  "MISSING_TEXT",
		})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "text must not be blank",
			Code:  "MISSING_TEXT",
		})
		return
	}

	h.respondWithPipeline(c, logger, text, false)
}

// respondWithPipeline runs the pipeline and writes the channel-appropriate
// response.
func (h *Handlers) respondWithPipeline(c *gin.Context, logger *slog.Logger, text string, voiceChannel bool) {
	result, err := h.pipeline.Run(c.Request.Context(), text)
	if err != nil {
		logger.Error("Pipeline failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "routing backend unavailable",
			Code:  "DEPENDENCY_ERROR",
		})
		return
	}

	if !result.Matched {
		c.JSON(http.StatusOK, NoMatchResponse{
			Voice: result.Fallback,
			Text:  result.OriginalText,
		})
		return
	}

	resp := MatchResponse{
		Result:      result.Downstream,
		ResultError: result.DownstreamErr,
	}
	if voiceChannel {
		resp.VoiceForm = result.Match.VoiceForm
	} else {
		resp.TextForm = result.Match.TextForm
	}
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
