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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AleutianAI/voice-router/services/router/retry"
	"github.com/elastic/go-elasticsearch/v8"
)

func testRetryConfig(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// newFakeES starts an httptest server posing as Elasticsearch and returns a
// client pointed at it. The product header is required by the v8 client.
func newFakeES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	return client
}

func TestTopMatch_ReturnsTopHit(t *testing.T) {
	var gotBody map[string]any
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding query body: %v", err)
		}
		resp := map[string]any{
			"hits": map[string]any{
				"hits": []map[string]any{
					{
						"_score": 4.2,
						"_source": map[string]any{
							"api_uri":     "/v1/films/search",
							"description": []string{"найди фильмы по жанру"},
							"voice_form":  "Вот что я нашёл",
							"text_form":   "Результаты поиска",
							"parameters": []map[string]any{
								{"name": "genre", "default_value": "", "allowed_values": []any{}},
								{"name": "page_size", "default_value": 3, "allowed_values": []any{}},
							},
						},
						"highlight": map[string]any{
							"description": []string{"найди <em>фильмы</em>"},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})

	client, err := NewSearchClient(es, "", testRetryConfig(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	match, found, err := client.TopMatch(context.Background(), "найди фильмы жанра комедия")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected a match")
	}
	if match.ApiURI != "/v1/films/search" {
		t.Errorf("api_uri = %q", match.ApiURI)
	}
	if match.Score != 4.2 {
		t.Errorf("score = %v, want 4.2", match.Score)
	}
	if match.VoiceForm != "Вот что я нашёл" {
		t.Errorf("voice_form = %q", match.VoiceForm)
	}
	if len(match.Parameters) != 2 {
		t.Fatalf("parameters = %d, want 2", len(match.Parameters))
	}
	if match.Parameters[1].DefaultValue.Kind() != KindInteger {
		t.Errorf("page_size default kind = %s, want integer", match.Parameters[1].DefaultValue.Kind())
	}
	if len(match.Highlights) != 1 {
		t.Errorf("highlights = %v", match.Highlights)
	}

	// The query shape is the contract with the store: fuzzy match on the
	// description field with highlighting and explicit source fields.
	query := gotBody["query"].(map[string]any)["match"].(map[string]any)["description"].(map[string]any)
	if query["fuzziness"] != "AUTO" {
		t.Errorf("fuzziness = %v, want AUTO", query["fuzziness"])
	}
	if query["query"] != "найди фильмы жанра комедия" {
		t.Errorf("query text = %v", query["query"])
	}
	if _, ok := gotBody["highlight"]; !ok {
		t.Error("query should request highlights")
	}
}

func TestTopMatch_ZeroHitsIsNotAnError(t *testing.T) {
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"hits": map[string]any{"hits": []any{}},
		})
	})
	client, _ := NewSearchClient(es, "", testRetryConfig(1))

	match, found, err := client.TopMatch(context.Background(), "что-то непонятное")
	if err != nil {
		t.Fatalf("zero hits must not be an error, got: %v", err)
	}
	if found || match != nil {
		t.Errorf("found = %v, match = %v, want no match", found, match)
	}
}

func TestTopMatch_MissingIndexMeansEmptyCatalog(t *testing.T) {
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"index_not_found_exception"}}`))
	})
	client, _ := NewSearchClient(es, "", testRetryConfig(1))

	_, found, err := client.TopMatch(context.Background(), "anything")
	if err != nil {
		t.Fatalf("missing index must not be an error, got: %v", err)
	}
	if found {
		t.Error("missing index should yield no match")
	}
}

func TestTopMatch_RetriesServerErrors(t *testing.T) {
	attempts := 0
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"hits": map[string]any{
				"hits": []map[string]any{
					{"_score": 1.0, "_source": map[string]any{"api_uri": "/v1/x"}},
				},
			},
		})
	})
	client, _ := NewSearchClient(es, "", testRetryConfig(5))

	match, found, err := client.TopMatch(context.Background(), "query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || match.ApiURI != "/v1/x" {
		t.Errorf("found = %v, match = %+v", found, match)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestTopMatch_ExhaustedRetriesSurfaceError(t *testing.T) {
	attempts := 0
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client, _ := NewSearchClient(es, "", testRetryConfig(3))

	_, _, err := client.TopMatch(context.Background(), "query")
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestNewSearchClient_NilClient(t *testing.T) {
	if _, err := NewSearchClient(nil, "", retry.Config{}); err == nil {
		t.Fatal("expected error for nil client")
	}
}
