// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/voice-router/services/router/catalog"
	"github.com/AleutianAI/voice-router/services/router/datatypes"
	"github.com/AleutianAI/voice-router/services/router/providers"
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
	extractionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicerouter",
		Subsystem: "intent",
		Name:      "extraction_total",
		Help:      "Parameter extraction outcomes: success, provider_error, parse_error",
	}, []string{"outcome"})

	extractionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "voicerouter",
		Subsystem: "intent",
		Name:      "extraction_latency_seconds",
		Help:      "Latency of generative-model extraction calls",
		Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})
)

var extractorTracer = otel.Tracer("voicerouter.intent.extractor")

// =============================================================================
// Extractor
// =============================================================================

// ExtractorConfig configures the parameter extractor.
type ExtractorConfig struct {
	// Model overrides the chat client's default model. Empty keeps it.
	Model string `json:"model"`

	// Temperature controls randomness. Extraction pins this to 0.
	Temperature float64 `json:"temperature"`

	// MaxTokens limits the response length.
	// Default: 512.
	MaxTokens int `json:"max_tokens"`

	// Timeout is the maximum time for one extraction call, including the
	// provider wrapper's retries.
	// Default: 30s.
	Timeout time.Duration `json:"timeout"`
}

// DefaultExtractorConfig returns sensible defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		Temperature: 0,
		MaxTokens:   512,
		Timeout:     30 * time.Second,
	}
}

// Extractor derives parameter values for a resolved descriptor from free
// text via a single generative-model round trip.
//
// # Description
//
// Builds a deterministic prompt from the match's declared parameter list,
// invokes the chat provider once, and defensively parses the response: the
// provider enforces no schema, so the extractor locates the first '{' and
// the last '}' and parses the substring as JSON. Any failure (provider
// error, timeout, unparseable output) degrades to "nothing found": every
// declared parameter maps to the empty string and the merge step falls back
// to defaults. Extraction never fails a request.
//
// # Thread Safety
//
// Extractor is safe for concurrent use.
type Extractor struct {
	chat   providers.ChatClient
	config ExtractorConfig
	logger *slog.Logger
}

// NewExtractor creates an Extractor backed by chat.
func NewExtractor(chat providers.ChatClient, config ExtractorConfig) (*Extractor, error) {
	if chat == nil {
		return nil, fmt.Errorf("intent: chat client must not be nil")
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultExtractorConfig().MaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultExtractorConfig().Timeout
	}
	return &Extractor{
		chat:   chat,
		config: config,
		logger: slog.Default(),
	}, nil
}

// Extract returns a value for every parameter declared by match, keyed
// exactly by the declared names. Values may be empty strings ("not found in
// text"). Unknown keys from the model are dropped; values outside a
// non-empty allowed set are cleared.
func (e *Extractor) Extract(ctx context.Context, match *catalog.ApiMatch, text string) map[string]string {
	ctx, span := extractorTracer.Start(ctx, "Extractor.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("api_uri", match.ApiURI),
		attribute.Int("declared_params", len(match.Parameters)),
	)

	if len(match.Parameters) == 0 {
		return map[string]string{}
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	messages := []datatypes.Message{
		{Role: "system", Content: buildExtractionPrompt(match)},
		{Role: "user", Content: fmt.Sprintf("User text: %s", text)},
	}
	opts := providers.ChatOptions{
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
		Model:       e.config.Model,
	}

	startTime := time.Now()
	response, err := e.chat.Chat(ctx, messages, opts)
	extractionLatency.Observe(time.Since(startTime).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		extractionTotal.WithLabelValues("provider_error").Inc()
		e.logger.Warn("Parameter extraction degraded to defaults: provider failure",
			slog.String("api_uri", match.ApiURI),
			slog.String("error", err.Error()),
		)
		return e.reconcile(match, nil)
	}

	raw, parseErr := parseExtraction(response)
	if parseErr != nil {
		span.SetStatus(codes.Error, "unparseable model output")
		extractionTotal.WithLabelValues("parse_error").Inc()
		e.logger.Warn("Parameter extraction degraded to defaults: unparseable model output",
			slog.String("api_uri", match.ApiURI),
			slog.String("error", parseErr.Error()),
		)
		return e.reconcile(match, nil)
	}

	extractionTotal.WithLabelValues("success").Inc()
	result := e.reconcile(match, raw)

	e.logger.Debug("Extracted parameters",
		slog.String("api_uri", match.ApiURI),
		slog.Int("resolved", countNonEmpty(result)),
		slog.Duration("duration", time.Since(startTime)),
	)
	return result
}

// parseExtraction locates the JSON object in the model's raw output.
//
// No schema is enforced at the provider, so this takes the substring
// between the first '{' and the last '}'. Kept as a
// single function so it can be swapped for schema-validated generation
// without touching the rest of the pipeline.
func parseExtraction(response string) (map[string]string, error) {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return nil, fmt.Errorf("no JSON object found in model output")
	}

	jsonStr := response[startIdx : endIdx+1]
	dec := json.NewDecoder(bytes.NewReader([]byte(jsonStr)))
	dec.UseNumber()
	var decoded map[string]any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("parsing model output: %w", err)
	}

	out := make(map[string]string, len(decoded))
	for k, v := range decoded {
		out[k] = stringify(v)
	}
	return out, nil
}

// stringify flattens a decoded JSON value to the string the coercer expects.
// Nested structures have no declared-parameter meaning and become empty.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// reconcile filters raw down to exactly the declared parameter names:
// unknown keys are dropped, missing keys become empty, and values outside a
// non-empty allowed set are cleared so the merge falls back to the default.
func (e *Extractor) reconcile(match *catalog.ApiMatch, raw map[string]string) map[string]string {
	out := make(map[string]string, len(match.Parameters))
	for _, p := range match.Parameters {
		v := raw[p.Name]
		if v != "" && len(p.AllowedValues) > 0 && !allowedContains(p.AllowedValues, v) {
			e.logger.Warn("Extracted value outside allowed set, dropping",
				slog.String("parameter", p.Name),
				slog.String("value", v),
			)
			v = ""
		}
		out[p.Name] = v
	}
	return out
}

func allowedContains(allowed []catalog.Value, v string) bool {
	for _, a := range allowed {
		if a.String() == v {
			return true
		}
	}
	return false
}

func countNonEmpty(m map[string]string) int {
	n := 0
	for _, v := range m {
		if v != "" {
			n++
		}
	}
	return n
}
