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
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/voice-router/services/router/catalog"
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
	downstreamTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicerouter",
		Subsystem: "downstream",
		Name:      "request_total",
		Help:      "Downstream API call outcomes: success, api_error, transport_error",
	}, []string{"outcome"})

	downstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "voicerouter",
		Subsystem: "downstream",
		Name:      "request_latency_seconds",
		Help:      "Latency of downstream API calls",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})
)

var invokerTracer = otel.Tracer("voicerouter.intent.invoker")

// =============================================================================
// Invoker
// =============================================================================

// StructuredError is the recoverable downstream-failure payload. It is
// returned to the caller as a normal value inside an HTTP-200 response body,
// never propagated as a pipeline fault.
type StructuredError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Invoker performs the final HTTP call against the resolved downstream API.
//
// # Description
//
// Merges extracted values with declared defaults (coercing each raw value
// against its parameter's default type), drops empty values, and issues a
// single GET to baseURL + api_uri with the merged set as the query string.
// Connection-level failures are retried under the shared policy; a non-2xx
// response is a terminal downstream answer and is converted to a
// StructuredError immediately.
//
// # Thread Safety
//
// Invoker is safe for concurrent use.
type Invoker struct {
	httpClient *http.Client
	baseURL    string
	retry      retry.Config
	logger     *slog.Logger
}

// NewInvoker creates an Invoker targeting baseURL.
//
// Inputs:
//   - baseURL: Downstream service base, e.g. "http://films:8000". Must not
//     be empty; trailing slashes are trimmed.
//   - httpClient: Shared HTTP client. Nil selects a default with a 30s
//     timeout.
//   - retryCfg: Backoff policy for connection failures. Zero selects the
//     shared default.
func NewInvoker(baseURL string, httpClient *http.Client, retryCfg retry.Config) (*Invoker, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("intent: downstream base URL must not be empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &Invoker{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		retry:      retryCfg,
		logger:     slog.Default(),
	}, nil
}

// mergeParameters combines extracted values with declared defaults and drops
// entries whose resolved value is empty (absent, empty string, empty list).
//
// The merge law: a parameter never reaches the downstream request unless its
// final value is non-empty.
func mergeParameters(match *catalog.ApiMatch, extracted map[string]string) map[string]catalog.Value {
	merged := make(map[string]catalog.Value, len(match.Parameters))
	for _, p := range match.Parameters {
		var v catalog.Value
		if raw := extracted[p.Name]; raw != "" {
			v = Coerce(raw, p.DefaultValue)
		} else {
			v = p.DefaultValue
		}
		if v.IsEmpty() {
			continue
		}
		merged[p.Name] = v
	}
	return merged
}

// encodeQuery renders merged values as URL query parameters. List values
// become repeated keys.
func encodeQuery(merged map[string]catalog.Value) url.Values {
	q := url.Values{}
	for name, v := range merged {
		if v.Kind() == catalog.KindList {
			for _, e := range v.List() {
				if !e.IsEmpty() {
					q.Add(name, e.String())
				}
			}
			continue
		}
		q.Set(name, v.String())
	}
	return q
}

// Invoke calls the resolved downstream API with the merged parameter set.
//
// Outputs:
//   - json.RawMessage: The downstream JSON body, passed through unmodified.
//     Nil when a StructuredError is returned instead.
//   - *StructuredError: Non-nil for any transport or non-2xx failure.
//
// The two outputs are mutually exclusive; neither case is a Go error because
// downstream failure is a designed, user-visible outcome.
func (iv *Invoker) Invoke(ctx context.Context, match *catalog.ApiMatch, extracted map[string]string) (json.RawMessage, *StructuredError) {
	ctx, span := invokerTracer.Start(ctx, "Invoker.Invoke")
	defer span.End()

	merged := mergeParameters(match, extracted)
	target := iv.baseURL + match.ApiURI
	query := encodeQuery(merged).Encode()
	if query != "" {
		target = target + "?" + query
	}

	span.SetAttributes(
		attribute.String("api_uri", match.ApiURI),
		attribute.Int("query_params", len(merged)),
	)

	startTime := time.Now()
	var body []byte
	err := retry.Do(ctx, iv.retry, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if reqErr != nil {
			return fmt.Errorf("intent: creating downstream request: %w", reqErr)
		}
		req.Header.Set("Accept", "application/json")

		resp, doErr := iv.httpClient.Do(req)
		if doErr != nil {
			return retry.Transient(fmt.Errorf("intent: downstream request failed: %w", doErr))
		}
		defer resp.Body.Close()

		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return retry.Transient(fmt.Errorf("intent: reading downstream response: %w", readErr))
		}

		// Any non-2xx is the downstream's answer, not a connectivity
		// problem. It terminates the call and becomes a StructuredError.
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("intent: downstream returned status %d: %s",
				resp.StatusCode, truncateBody(raw))
		}
		if !json.Valid(raw) {
			return fmt.Errorf("intent: downstream returned invalid JSON")
		}
		body = raw
		return nil
	})
	downstreamLatency.Observe(time.Since(startTime).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "downstream call failed")
		outcome := "api_error"
		if retry.IsTransient(err) {
			outcome = "transport_error"
		}
		downstreamTotal.WithLabelValues(outcome).Inc()
		iv.logger.Warn("Downstream API call failed",
			slog.String("api_uri", match.ApiURI),
			slog.String("error", err.Error()),
		)
		return nil, &StructuredError{
			Error:   "API request failed",
			Details: err.Error(),
		}
	}

	downstreamTotal.WithLabelValues("success").Inc()
	iv.logger.Debug("Downstream API call succeeded",
		slog.String("api_uri", match.ApiURI),
		slog.Int("response_len", len(body)),
		slog.Duration("duration", time.Since(startTime)),
	)
	return body, nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
