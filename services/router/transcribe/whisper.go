// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transcribe converts uploaded audio into text for the routing
// pipeline.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/voice-router/services/router/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	transcriptionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicerouter",
		Subsystem: "transcribe",
		Name:      "request_total",
		Help:      "Transcription outcomes: success, error",
	}, []string{"outcome"})

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "voicerouter",
		Subsystem: "transcribe",
		Name:      "request_latency_seconds",
		Help:      "Latency of transcription requests",
		Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	})
)

var transcribeTracer = otel.Tracer("voicerouter.transcribe")

// Transcriber converts an audio payload into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

const (
	defaultWhisperBaseURL = "https://api.openai.com/v1"
	defaultWhisperModel   = "whisper-1"
)

// =============================================================================
// WhisperClient
// =============================================================================

// WhisperClient speaks the OpenAI-compatible audio transcription wire format.
//
// # Thread Safety
//
// WhisperClient is safe for concurrent use.
type WhisperClient struct {
	apiKey     string
	model      string
	language   string
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger
}

// NewWhisperClient creates a client from the OPENAI_API_KEY environment
// variable.
//
// Inputs:
//   - language: ISO-639-1 hint passed to the model, e.g. "ru". Empty lets
//     the model detect the language.
func NewWhisperClient(language string) (*WhisperClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("transcribe: OPENAI_API_KEY environment variable not set")
	}
	return NewWhisperClientWithConfig(apiKey, language, "")
}

// NewWhisperClientWithConfig creates a client with explicit settings. Empty
// baseURL selects the public OpenAI endpoint.
func NewWhisperClientWithConfig(apiKey, language, baseURL string) (*WhisperClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("transcribe: API key must not be empty")
	}
	if baseURL == "" {
		baseURL = defaultWhisperBaseURL
	}
	return &WhisperClient{
		apiKey:     apiKey,
		model:      defaultWhisperModel,
		language:   language,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry:      retry.DefaultConfig(),
		logger:     slog.Default(),
	}, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe sends audio to the transcription endpoint and returns the
// recognized text, trimmed.
//
// Outputs:
//   - string: The transcription. May be empty for silent audio.
//   - error: Non-nil when the service stays unreachable after retries or
//     rejects the request.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	ctx, span := transcribeTracer.Start(ctx, "WhisperClient.Transcribe")
	defer span.End()
	span.SetAttributes(
		attribute.Int("audio_bytes", len(audio)),
		attribute.String("model", c.model),
	)

	if len(audio) == 0 {
		return "", fmt.Errorf("transcribe: audio payload is empty")
	}
	if filename == "" {
		filename = "audio.wav"
	}

	startTime := time.Now()
	var result transcriptionResponse
	err := retry.Do(ctx, c.retry, func() error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return fmt.Errorf("transcribe: creating form file: %w", err)
		}
		if _, err = part.Write(audio); err != nil {
			return fmt.Errorf("transcribe: writing audio: %w", err)
		}
		if err = writer.WriteField("model", c.model); err != nil {
			return fmt.Errorf("transcribe: writing model field: %w", err)
		}
		if c.language != "" {
			if err = writer.WriteField("language", c.language); err != nil {
				return fmt.Errorf("transcribe: writing language field: %w", err)
			}
		}
		if err = writer.Close(); err != nil {
			return fmt.Errorf("transcribe: closing multipart writer: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/audio/transcriptions", body)
		if err != nil {
			return fmt.Errorf("transcribe: creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Transient(fmt.Errorf("transcribe: sending request: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			apiErr := fmt.Errorf("transcribe: API error %d: %s",
				resp.StatusCode, string(respBody))
			if retry.IsRetryableHTTPStatus(resp.StatusCode) {
				return retry.Transient(apiErr)
			}
			return apiErr
		}
		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("transcribe: decoding response: %w", err)
		}
		return nil
	})
	transcriptionLatency.Observe(time.Since(startTime).Seconds())

	if err != nil {
		transcriptionTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		return "", err
	}

	text := strings.TrimSpace(result.Text)
	transcriptionTotal.WithLabelValues("success").Inc()
	c.logger.Debug("Transcribed audio",
		slog.Int("audio_bytes", len(audio)),
		slog.Int("text_len", len(text)),
		slog.Duration("duration", time.Since(startTime)),
	)
	return text, nil
}
