// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/AleutianAI/voice-router/services/router/datatypes"
	"github.com/AleutianAI/voice-router/services/router/retry"
)

// =============================================================================
// Groq Wire Types
// =============================================================================

const defaultGroqBaseURL = "https://api.groq.com/openai/v1/chat/completions"

// defaultGroqModel is used when GROQ_MODEL is not set.
const defaultGroqModel = "llama-3.3-70b-versatile"

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	ID      string       `json:"id"`
	Choices []groqChoice `json:"choices"`
	Error   *groqError   `json:"error,omitempty"`
}

type groqChoice struct {
	Index        int         `json:"index"`
	Message      groqMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type groqError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// GroqClient implements ChatClient for Groq-hosted models using raw net/http.
//
// Description:
//
//	Groq exposes an OpenAI-compatible chat completions API; this client
//	speaks the wire format directly without a third-party SDK. Connectivity
//	failures and retryable statuses (429, 5xx) are marked transient so the
//	retrying decorator can apply the shared backoff policy.
//
// Thread Safety: GroqClient is safe for concurrent use.
type GroqClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewGroqClient creates a GroqClient from environment variables.
//
// Description:
//
//	Reads GROQ_API_KEY and GROQ_MODEL from the environment. Defaults the
//	model when GROQ_MODEL is not set.
//
// Outputs:
//   - *GroqClient: The configured client.
//   - error: Non-nil if GROQ_API_KEY is missing.
func NewGroqClient() (*GroqClient, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	model := os.Getenv("GROQ_MODEL")
	if apiKey == "" {
		return nil, fmt.Errorf("groq: API key is missing (GROQ_API_KEY)")
	}
	if model == "" {
		model = defaultGroqModel
		slog.Warn("GROQ_MODEL not set, using default", slog.String("model", model))
	}
	slog.Info("Initializing Groq client", slog.String("model", model))
	return NewGroqClientWithConfig(apiKey, model, defaultGroqBaseURL), nil
}

// NewGroqClientWithConfig creates a GroqClient with explicit configuration.
// Useful for tests with mock servers.
func NewGroqClientWithConfig(apiKey, model, baseURL string) *GroqClient {
	return &GroqClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Chat implements ChatClient.Chat against the Groq chat completions API.
//
// Thread Safety: This method is safe for concurrent use.
func (g *GroqClient) Chat(ctx context.Context, messages []datatypes.Message, opts ChatOptions) (string, error) {
	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}

	slog.Debug("Chat via Groq", slog.String("model", model), slog.Int("messages", len(messages)))

	wireMessages := make([]groqMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case "system", "user", "assistant":
		default:
			slog.Warn("Groq: unknown message role, mapping to user",
				slog.String("unknown_role", role))
			role = "user"
		}
		wireMessages = append(wireMessages, groqMessage{Role: role, Content: msg.Content})
	}

	reqPayload := groqRequest{
		Model:       model,
		Messages:    wireMessages,
		Temperature: &opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		reqPayload.MaxTokens = &opts.MaxTokens
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("groq: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("groq: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("groq: HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("groq: reading response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("groq: API returned status %d: %s", resp.StatusCode, truncateForLog(string(bodyBytes)))
		if retry.IsRetryableHTTPStatus(resp.StatusCode) {
			return "", retry.Transient(apiErr)
		}
		return "", apiErr
	}

	var apiResp groqResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("groq: parsing response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("groq: API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("groq: returned no choices")
	}

	slog.Debug("Received Groq chat response",
		slog.String("finish_reason", apiResp.Choices[0].FinishReason),
		slog.Int("response_len", len(apiResp.Choices[0].Message.Content)),
	)

	return apiResp.Choices[0].Message.Content, nil
}

// truncateForLog bounds provider payloads quoted in error messages.
func truncateForLog(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
