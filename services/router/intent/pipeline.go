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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/voice-router/services/router/catalog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var pipelineTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "voicerouter",
	Subsystem: "pipeline",
	Name:      "run_total",
	Help:      "Pipeline run outcomes: matched, no_match, downstream_error, error",
}, []string{"outcome"})

var pipelineTracer = otel.Tracer("voicerouter.intent.pipeline")

// DefaultFallbackMessage is returned verbatim when no catalog entry matches
// the user's text.
const DefaultFallbackMessage = "Извините, не удалось определить запрос"

// =============================================================================
// Pipeline
// =============================================================================

// ParamExtractor extracts parameter values for a matched API from free text.
type ParamExtractor interface {
	Extract(ctx context.Context, match *catalog.ApiMatch, text string) map[string]string
}

// ApiInvoker calls the resolved downstream API.
type ApiInvoker interface {
	Invoke(ctx context.Context, match *catalog.ApiMatch, extracted map[string]string) (json.RawMessage, *StructuredError)
}

// Result is the outcome of one end-to-end pipeline run.
//
// When Matched is false every other field except Fallback and OriginalText is
// zero. When Matched is true exactly one of Downstream and DownstreamErr is
// set.
type Result struct {
	Matched       bool
	Match         *catalog.ApiMatch
	Extracted     map[string]string
	Downstream    json.RawMessage
	DownstreamErr *StructuredError
	Fallback      string
	OriginalText  string
}

// Pipeline coordinates the resolve, extract, and invoke stages.
//
// # Description
//
// Runs the three stages strictly in order. A no-match result from resolution
// short-circuits the run: the extractor and invoker are never consulted and
// the configured fallback message is returned instead. Extraction failures
// degrade to defaults inside the Extractor, so the invoker always runs for a
// matched query.
//
// # Thread Safety
//
// Pipeline is safe for concurrent use when its stages are.
type Pipeline struct {
	resolver  *Resolver
	extractor ParamExtractor
	invoker   ApiInvoker
	fallback  string
	logger    *slog.Logger
}

// NewPipeline wires the three stages together.
//
// Inputs:
//   - resolver: Catalog resolution stage. Must not be nil.
//   - extractor: Parameter extraction stage. Must not be nil.
//   - invoker: Downstream invocation stage. Must not be nil.
//   - fallback: Message for unmatched queries. Empty selects
//     DefaultFallbackMessage.
func NewPipeline(resolver *Resolver, extractor ParamExtractor, invoker ApiInvoker, fallback string) (*Pipeline, error) {
	if resolver == nil || extractor == nil || invoker == nil {
		return nil, fmt.Errorf("intent: pipeline requires resolver, extractor, and invoker")
	}
	if fallback == "" {
		fallback = DefaultFallbackMessage
	}
	return &Pipeline{
		resolver:  resolver,
		extractor: extractor,
		invoker:   invoker,
		fallback:  fallback,
		logger:    slog.Default(),
	}, nil
}

// Run executes the pipeline for one query.
//
// Outputs:
//   - *Result: Always non-nil when error is nil.
//   - error: Non-nil only for dependency failures in resolution (search
//     backend unreachable after retries). No-match, extraction failure, and
//     downstream failure are all expressed in the Result.
func (p *Pipeline) Run(ctx context.Context, text string) (*Result, error) {
	ctx, span := pipelineTracer.Start(ctx, "Pipeline.Run")
	defer span.End()

	startTime := time.Now()

	match, found, err := p.resolver.Resolve(ctx, text)
	if err != nil {
		pipelineTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		return nil, err
	}
	if !found {
		pipelineTotal.WithLabelValues("no_match").Inc()
		span.SetAttributes(attribute.Bool("matched", false))
		p.logger.Info("No catalog match for query",
			slog.Int("text_len", len(text)),
		)
		return &Result{
			Matched:      false,
			Fallback:     p.fallback,
			OriginalText: text,
		}, nil
	}

	span.SetAttributes(
		attribute.Bool("matched", true),
		attribute.String("api_uri", match.ApiURI),
	)

	extracted := p.extractor.Extract(ctx, match, text)
	body, structErr := p.invoker.Invoke(ctx, match, extracted)

	result := &Result{
		Matched:       true,
		Match:         match,
		Extracted:     extracted,
		Downstream:    body,
		DownstreamErr: structErr,
		OriginalText:  text,
	}
	if structErr != nil {
		pipelineTotal.WithLabelValues("downstream_error").Inc()
	} else {
		pipelineTotal.WithLabelValues("matched").Inc()
	}

	p.logger.Info("Pipeline run complete",
		slog.String("api_uri", match.ApiURI),
		slog.Bool("downstream_ok", structErr == nil),
		slog.Duration("duration", time.Since(startTime)),
	)
	return result, nil
}
