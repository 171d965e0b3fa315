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
	"strings"
	"testing"

	"github.com/AleutianAI/voice-router/services/router/catalog"
)

func TestResolve_EmptyTextIsRejected(t *testing.T) {
	searcher := &fakeSearcher{}
	r, _ := NewResolver(searcher)

	if _, _, err := r.Resolve(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty text")
	}
	if searcher.calls != 0 {
		t.Errorf("search calls = %d, want 0", searcher.calls)
	}
}

func TestResolve_PassesMatchThrough(t *testing.T) {
	match := &catalog.ApiMatch{ApiURI: "/v1/films/search", Score: 2.1}
	r, _ := NewResolver(&fakeSearcher{match: match, found: true})

	got, found, err := r.Resolve(context.Background(), "найди фильмы")
	if err != nil {
		t.Fatal(err)
	}
	if !found || got != match {
		t.Errorf("got = %+v, found = %v", got, found)
	}
}

func TestBuildExtractionPrompt(t *testing.T) {
	match := &catalog.ApiMatch{
		ApiURI: "/v1/films/search",
		Parameters: []catalog.ApiParameter{
			{Name: "genre", DefaultValue: catalog.StringValue("")},
			{
				Name:         "sort",
				DefaultValue: catalog.StringValue("rating"),
				AllowedValues: []catalog.Value{
					catalog.StringValue("rating"),
					catalog.StringValue("year"),
				},
			},
		},
	}

	prompt := buildExtractionPrompt(match)
	for _, want := range []string{"genre", "sort", "rating", "year"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	// Parameter order in the prompt follows declaration order so the model
	// sees a stable contract.
	if strings.Index(prompt, "genre") > strings.Index(prompt, "sort") {
		t.Error("prompt should list parameters in declared order")
	}
}
