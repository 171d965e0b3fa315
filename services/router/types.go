// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router exposes the HTTP surface of the voice routing service.
package router

import (
	"encoding/json"

	"github.com/AleutianAI/voice-router/services/router/intent"
)

// =============================================================================
// Request Types
// =============================================================================

// QuestionTextRequest is the body of POST /api/v1/question_text.
type QuestionTextRequest struct {
	// Text is the raw user query. Must not be empty.
	Text string `json:"text" binding:"required"`
}

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NoMatchResponse is returned when no catalog entry matches the query. The
// original text is echoed so the caller can show what was understood.
type NoMatchResponse struct {
	Voice string `json:"voice"`
	Text  string `json:"text"`
}

// MatchResponse carries the downstream result for a matched query. Exactly
// one of VoiceForm and TextForm is set depending on the entry channel, and
// exactly one of Result and ResultError is set depending on the downstream
// outcome.
type MatchResponse struct {
	VoiceForm   string                  `json:"voice_form,omitempty"`
	TextForm    string                  `json:"text_form,omitempty"`
	Result      json.RawMessage         `json:"result,omitempty"`
	ResultError *intent.StructuredError `json:"result_error,omitempty"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// CreatedResponse acknowledges a stored descriptor.
type CreatedResponse struct {
	ID string `json:"id"`
}
