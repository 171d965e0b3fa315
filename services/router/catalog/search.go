// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/voice-router/services/router/retry"
	"github.com/elastic/go-elasticsearch/v8"
)

// DefaultIndex is the Elasticsearch index holding API descriptors.
const DefaultIndex = "api_index"

// SearchClient wraps the catalog store's scored-search boundary.
//
// # Description
//
// Issues one fuzzy full-text query against the descriptor index's
// description field, requesting score and highlight metadata, and maps the
// top-ranked hit into an ApiMatch. The engine's own ranking order defines
// "top"; ties fall wherever the engine puts them.
//
// Transient transport failures and retryable statuses are retried under the
// shared backoff policy. Zero hits is a normal outcome, never an error.
//
// # Thread Safety
//
// SearchClient is safe for concurrent use (the underlying Elasticsearch
// client is).
type SearchClient struct {
	es     *elasticsearch.Client
	index  string
	retry  retry.Config
	logger *slog.Logger
}

// NewSearchClient creates a SearchClient over es.
//
// Inputs:
//   - es: Connected Elasticsearch client. Must not be nil.
//   - index: Descriptor index name. Empty selects DefaultIndex.
//   - retryCfg: Backoff policy for transient failures. Zero value selects
//     the shared default (5 attempts).
//
// Outputs:
//   - *SearchClient: Configured client.
//   - error: Non-nil if es is nil.
func NewSearchClient(es *elasticsearch.Client, index string, retryCfg retry.Config) (*SearchClient, error) {
	if es == nil {
		return nil, fmt.Errorf("catalog: elasticsearch client must not be nil")
	}
	if index == "" {
		index = DefaultIndex
	}
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &SearchClient{
		es:     es,
		index:  index,
		retry:  retryCfg,
		logger: slog.Default(),
	}, nil
}

// searchResponse mirrors the slice of the Elasticsearch search response the
// resolver depends on: score, source fields, highlight spans.
type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	Score     float64             `json:"_score"`
	Source    ApiDescriptor       `json:"_source"`
	Highlight map[string][]string `json:"highlight"`
}

// TopMatch runs the fuzzy description query for text and returns the
// top-scoring descriptor as an ApiMatch.
//
// Outputs:
//   - *ApiMatch: The best hit. Nil when found is false.
//   - bool: False when the index returned zero hits (or does not exist yet).
//   - error: Non-nil only for dependency failures that survived the retry
//     policy; never for the zero-hit case.
func (c *SearchClient) TopMatch(ctx context.Context, text string) (*ApiMatch, bool, error) {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"match": map[string]any{
				"description": map[string]any{
					"query":     text,
					"fuzziness": "AUTO",
				},
			},
		},
		"highlight": map[string]any{
			"fields": map[string]any{
				"description": map[string]any{},
			},
		},
		"_source": []string{"api_uri", "description", "voice_form", "text_form", "parameters"},
		"size":    1,
	})
	if err != nil {
		return nil, false, fmt.Errorf("catalog: marshaling search query: %w", err)
	}

	var parsed searchResponse
	noIndex := false
	err = retry.Do(ctx, c.retry, func() error {
		res, doErr := c.es.Search(
			c.es.Search.WithContext(ctx),
			c.es.Search.WithIndex(c.index),
			c.es.Search.WithBody(bytes.NewReader(body)),
		)
		if doErr != nil {
			return retry.Transient(fmt.Errorf("catalog: search request failed: %w", doErr))
		}
		defer res.Body.Close()

		if res.IsError() {
			// A missing index is a valid empty catalog, not a fault.
			if res.StatusCode == http.StatusNotFound {
				noIndex = true
				return nil
			}
			msg := fmt.Errorf("catalog: search returned status %d", res.StatusCode)
			if retry.IsRetryableHTTPStatus(res.StatusCode) {
				return retry.Transient(msg)
			}
			return msg
		}

		raw, readErr := io.ReadAll(res.Body)
		if readErr != nil {
			return retry.Transient(fmt.Errorf("catalog: reading search response: %w", readErr))
		}
		parsed = searchResponse{}
		if umErr := json.Unmarshal(raw, &parsed); umErr != nil {
			return fmt.Errorf("catalog: parsing search response: %w", umErr)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if noIndex || len(parsed.Hits.Hits) == 0 {
		c.logger.Debug("Catalog search returned no hits",
			slog.String("index", c.index),
			slog.Int("text_len", len(text)),
		)
		return nil, false, nil
	}

	hit := parsed.Hits.Hits[0]
	match := &ApiMatch{
		ApiURI:     hit.Source.ApiURI,
		Score:      hit.Score,
		VoiceForm:  hit.Source.VoiceForm,
		TextForm:   hit.Source.TextForm,
		Parameters: hit.Source.Parameters,
		Highlights: hit.Highlight["description"],
	}

	c.logger.Debug("Catalog search selected descriptor",
		slog.String("api_uri", match.ApiURI),
		slog.Float64("score", match.Score),
		slog.Int("parameters", len(match.Parameters)),
	)

	return match, true, nil
}
