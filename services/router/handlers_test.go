// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/voice-router/services/router/catalog"
	"github.com/AleutianAI/voice-router/services/router/intent"
	"github.com/gin-gonic/gin"
)

// =============================================================================
// Fakes
// =============================================================================

type fakePipeline struct {
	result *intent.Result
	err    error
	calls  int
	text   string
}

func (f *fakePipeline) Run(ctx context.Context, text string) (*intent.Result, error) {
	f.calls++
	f.text = text
	return f.result, f.err
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
	audio []byte
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	f.calls++
	f.audio = audio
	return f.text, f.err
}

type fakeStore struct {
	created *catalog.ApiDescriptor
	stored  *catalog.StoredDescriptor
	list    []catalog.StoredDescriptor
	err     error
}

func (f *fakeStore) Create(ctx context.Context, desc *catalog.ApiDescriptor) (string, error) {
	f.created = desc
	return "id-1", f.err
}

func (f *fakeStore) Get(ctx context.Context, id string) (*catalog.StoredDescriptor, error) {
	return f.stored, f.err
}

func (f *fakeStore) List(ctx context.Context) ([]catalog.StoredDescriptor, error) {
	return f.list, f.err
}

func (f *fakeStore) Update(ctx context.Context, id string, desc *catalog.ApiDescriptor) error {
	return f.err
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	return f.err
}

// =============================================================================
// Helpers
// =============================================================================

func newTestRouter(t *testing.T, p *fakePipeline, tr *fakeTranscriber, st *fakeStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h, err := NewHandlers(p, tr, st, t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := gin.New()
	RegisterRoutes(engine.Group("/api/v1"), h)
	return engine
}

func matchedResult() *intent.Result {
	return &intent.Result{
		Matched: true,
		Match: &catalog.ApiMatch{
			ApiURI:    "/v1/films/search",
			VoiceForm: "Вот что я нашёл",
			TextForm:  "Результаты поиска",
		},
		Extracted:    map[string]string{"genre": "комедия"},
		Downstream:   json.RawMessage(`{"films": []}`),
		OriginalText: "найди комедию",
	}
}

func audioRequest(t *testing.T, field, filename string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("RIFF...."))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/question", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// =============================================================================
// Question Endpoints
// =============================================================================

func TestHandleQuestionAudio_MatchedVoiceChannel(t *testing.T) {
	p := &fakePipeline{result: matchedResult()}
	tr := &fakeTranscriber{text: "найди комедию"}
	engine := newTestRouter(t, p, tr, &fakeStore{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, audioRequest(t, "file", "query.wav"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp MatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.VoiceForm != "Вот что я нашёл" {
		t.Errorf("voice_form = %q", resp.VoiceForm)
	}
	if resp.TextForm != "" {
		t.Errorf("text_form = %q, want empty on the voice channel", resp.TextForm)
	}
	if string(resp.Result) != `{"films": []}` {
		t.Errorf("result = %s", resp.Result)
	}
	if tr.calls != 1 || string(tr.audio) != "RIFF...." {
		t.Errorf("transcriber calls = %d, audio = %q", tr.calls, tr.audio)
	}
	if p.text != "найди комедию" {
		t.Errorf("pipeline text = %q", p.text)
	}
}

func TestHandleQuestionAudio_MissingFile(t *testing.T) {
	p := &fakePipeline{}
	engine := newTestRouter(t, p, &fakeTranscriber{}, &fakeStore{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, audioRequest(t, "wrong_field", "query.wav"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if p.calls != 0 {
		t.Error("pipeline must not run without a file")
	}
}

func TestHandleQuestionAudio_TranscriptionFailureIs502(t *testing.T) {
	p := &fakePipeline{}
	tr := &fakeTranscriber{err: fmt.Errorf("whisper unavailable")}
	engine := newTestRouter(t, p, tr, &fakeStore{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, audioRequest(t, "file", "query.wav"))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "DEPENDENCY_ERROR" {
		t.Errorf("code = %q", resp.Code)
	}
	if p.calls != 0 {
		t.Error("pipeline must not run after a transcription failure")
	}
}

func TestHandleQuestionAudio_EmptyTranscription(t *testing.T) {
	engine := newTestRouter(t, &fakePipeline{}, &fakeTranscriber{text: "   "}, &fakeStore{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, audioRequest(t, "file", "query.wav"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleQuestionText_MatchedTextChannel(t *testing.T) {
	p := &fakePipeline{result: matchedResult()}
	engine := newTestRouter(t, p, &fakeTranscriber{}, &fakeStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/question_text",
		strings.NewReader(`{"text": "найди комедию"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp MatchResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TextForm != "Результаты поиска" {
		t.Errorf("text_form = %q", resp.TextForm)
	}
	if resp.VoiceForm != "" {
		t.Errorf("voice_form = %q, want empty on the text channel", resp.VoiceForm)
	}
}

func TestHandleQuestionText_NoMatchReturnsFallback(t *testing.T) {
	p := &fakePipeline{result: &intent.Result{
		Matched:      false,
		Fallback:     intent.DefaultFallbackMessage,
		OriginalText: "что-то непонятное",
	}}
	engine := newTestRouter(t, p, &fakeTranscriber{}, &fakeStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/question_text",
		strings.NewReader(`{"text": "что-то непонятное"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp NoMatchResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Voice != intent.DefaultFallbackMessage {
		t.Errorf("voice = %q", resp.Voice)
	}
	if resp.Text != "что-то непонятное" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestHandleQuestionText_BlankTextRejected(t *testing.T) {
	p := &fakePipeline{}
	engine := newTestRouter(t, p, &fakeTranscriber{}, &fakeStore{})

	for _, body := range []string{`{}`, `{"text": "  "}`, `not json`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/question_text",
			strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
	if p.calls != 0 {
		t.Error("pipeline must not run for rejected bodies")
	}
}

func TestHandleQuestionText_PipelineFailureIs502(t *testing.T) {
	p := &fakePipeline{err: fmt.Errorf("search backend unreachable")}
	engine := newTestRouter(t, p, &fakeTranscriber{}, &fakeStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/question_text",
		strings.NewReader(`{"text": "найди комедию"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestHandleQuestionText_DownstreamErrorStaysHTTP200(t *testing.T) {
	result := matchedResult()
	result.Downstream = nil
	result.DownstreamErr = &intent.StructuredError{
		Error:   "API request failed",
		Details: "status 500",
	}
	engine := newTestRouter(t, &fakePipeline{result: result}, &fakeTranscriber{}, &fakeStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/question_text",
		strings.NewReader(`{"text": "найди комедию"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with structured error in body", w.Code)
	}
	var resp MatchResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ResultError == nil || resp.ResultError.Error != "API request failed" {
		t.Errorf("result_error = %+v", resp.ResultError)
	}
}

func TestHandleHealth(t *testing.T) {
	engine := newTestRouter(t, &fakePipeline{}, &fakeTranscriber{}, &fakeStore{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
