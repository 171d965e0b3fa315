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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/voice-router/services/router/datatypes"
	"github.com/AleutianAI/voice-router/services/router/retry"
)

func TestNewGroqClient_MissingAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	_, err := NewGroqClient()
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "groq:") {
		t.Errorf("error should include 'groq:' prefix, got: %v", err)
	}
}

func TestNewGroqClient_DefaultModel(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-key")
	t.Setenv("GROQ_MODEL", "")

	client, err := NewGroqClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.model != defaultGroqModel {
		t.Errorf("model = %q, want %q", client.model, defaultGroqModel)
	}
}

func TestGroqClient_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", auth)
		}
		var req groqRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "llama-3.3-70b-versatile" {
			t.Errorf("model = %q", req.Model)
		}
		if req.Temperature == nil || *req.Temperature != 0 {
			t.Error("temperature should be pinned to 0 for extraction calls")
		}
		resp := groqResponse{
			Choices: []groqChoice{
				{Message: groqMessage{Role: "assistant", Content: `{"genre": "комедия"}`}, FinishReason: "stop"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewGroqClientWithConfig("test-key", "llama-3.3-70b-versatile", server.URL)

	result, err := client.Chat(context.Background(), []datatypes.Message{
		{Role: "system", Content: "extract parameters"},
		{Role: "user", Content: "найди фильмы жанра комедия"},
	}, ChatOptions{Temperature: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"genre": "комедия"}` {
		t.Errorf("result = %q", result)
	}
}

func TestGroqClient_Chat_RateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewGroqClientWithConfig("k", "m", server.URL)
	_, err := client.Chat(context.Background(), []datatypes.Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !retry.IsTransient(err) {
		t.Errorf("429 should be marked transient, got: %v", err)
	}
}

func TestGroqClient_Chat_BadRequestIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer server.Close()

	client := NewGroqClientWithConfig("k", "m", server.URL)
	_, err := client.Chat(context.Background(), []datatypes.Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if retry.IsTransient(err) {
		t.Errorf("400 should not be transient, got: %v", err)
	}
}

func TestGroqClient_Chat_UnknownRoleMappedToUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req groqRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v, want single user message", req.Messages)
		}
		json.NewEncoder(w).Encode(groqResponse{
			Choices: []groqChoice{{Message: groqMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := NewGroqClientWithConfig("k", "m", server.URL)
	if _, err := client.Chat(context.Background(), []datatypes.Message{{Role: "tool", Content: "x"}}, ChatOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGroqClient_Chat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(groqResponse{})
	}))
	defer server.Close()

	client := NewGroqClientWithConfig("k", "m", server.URL)
	_, err := client.Chat(context.Background(), []datatypes.Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("err = %v, want no choices error", err)
	}
}
