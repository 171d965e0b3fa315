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
	"fmt"
	"log/slog"

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

var resolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "voicerouter",
	Subsystem: "intent",
	Name:      "resolution_total",
	Help:      "Intent resolution outcomes: match, no_match, error",
}, []string{"outcome"})

// =============================================================================
// OTel Tracer
// =============================================================================

var resolverTracer = otel.Tracer("voicerouter.intent.resolver")

// =============================================================================
// Resolver
// =============================================================================

// CatalogSearcher is the scored-search boundary the resolver consumes.
// catalog.SearchClient is the production implementation; tests substitute
// fakes.
type CatalogSearcher interface {
	TopMatch(ctx context.Context, text string) (*catalog.ApiMatch, bool, error)
}

// Resolver matches free text to the best catalog descriptor.
//
// # Description
//
// Issues one fuzzy full-text query and takes the engine's top-ranked hit.
// Zero hits is a designed outcome (found=false), surfaced to the user as a
// fallback message by the coordinator, never as a server fault.
//
// # Thread Safety
//
// Resolver is safe for concurrent use.
type Resolver struct {
	search CatalogSearcher
	logger *slog.Logger
}

// NewResolver creates a Resolver over the given search boundary.
func NewResolver(search CatalogSearcher) (*Resolver, error) {
	if search == nil {
		return nil, fmt.Errorf("intent: search client must not be nil")
	}
	return &Resolver{search: search, logger: slog.Default()}, nil
}

// Resolve finds the best-matching descriptor for text.
//
// Inputs:
//   - ctx: Context for cancellation/timeout.
//   - text: Non-empty trimmed user text. Empty text is a caller precondition
//     violation and returns an error.
//
// Outputs:
//   - *catalog.ApiMatch: The top-scoring descriptor. Nil when found is false.
//   - bool: False for the zero-hit case.
//   - error: Non-nil only for dependency failures (retries exhausted).
func (r *Resolver) Resolve(ctx context.Context, text string) (*catalog.ApiMatch, bool, error) {
	if text == "" {
		return nil, false, fmt.Errorf("intent: text must not be empty")
	}

	ctx, span := resolverTracer.Start(ctx, "Resolver.Resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("text_len", len(text)))

	match, found, err := r.search.TopMatch(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog search failed")
		resolutionTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("intent: resolving %q: %w", text, err)
	}
	if !found {
		resolutionTotal.WithLabelValues("no_match").Inc()
		r.logger.Info("No descriptor matched user text",
			slog.Int("text_len", len(text)),
		)
		return nil, false, nil
	}

	span.SetAttributes(
		attribute.String("api_uri", match.ApiURI),
		attribute.Float64("score", match.Score),
	)
	resolutionTotal.WithLabelValues("match").Inc()
	r.logger.Info("Resolved intent",
		slog.String("api_uri", match.ApiURI),
		slog.Float64("score", match.Score),
		slog.Int("parameters", len(match.Parameters)),
	)
	return match, true, nil
}
