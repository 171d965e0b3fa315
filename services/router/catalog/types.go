// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog defines the API descriptor model and the Elasticsearch
// clients that read and administer it. Descriptors map natural-language
// intent descriptions to downstream API URIs, their response templates, and
// their declared parameters.
package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store operations when no document exists for
// the given ID.
var ErrNotFound = errors.New("catalog: descriptor not found")

// ApiParameter declares one downstream request parameter.
//
// The runtime variant of DefaultValue (absent/integer/float/string) determines
// how extracted raw values are coerced. Name must be unique within a
// descriptor's parameter list.
type ApiParameter struct {
	Name          string  `json:"name"`
	DefaultValue  Value   `json:"default_value"`
	AllowedValues []Value `json:"allowed_values"`
}

// ApiDescriptor is an immutable catalog record mapping an intent description
// to a downstream API endpoint.
type ApiDescriptor struct {
	ApiURI      string         `json:"api_uri"`
	VoiceForm   string         `json:"voice_form,omitempty"`
	TextForm    string         `json:"text_form,omitempty"`
	Description []string       `json:"description"`
	Parameters  []ApiParameter `json:"parameters"`
}

// Validate checks the invariants the admin surface must enforce before
// writing a descriptor: a non-empty URI and unique parameter names.
func (d *ApiDescriptor) Validate() error {
	if d.ApiURI == "" {
		return fmt.Errorf("catalog: api_uri must not be empty")
	}
	seen := make(map[string]struct{}, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			return fmt.Errorf("catalog: parameter name must not be empty")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("catalog: duplicate parameter name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// StoredDescriptor is a descriptor plus its document ID, as returned by the
// admin CRUD surface.
type StoredDescriptor struct {
	ID string `json:"id"`
	ApiDescriptor
}

// ApiMatch is the transient result of intent resolution: the top-scoring
// descriptor with its relevance score and highlighted match spans.
//
// Score comes straight from the search engine; higher is more relevant, with
// no normalization guarantee across index changes. Produced per request,
// never persisted.
type ApiMatch struct {
	ApiURI     string         `json:"api_uri"`
	Score      float64        `json:"score"`
	VoiceForm  string         `json:"voice_form,omitempty"`
	TextForm   string         `json:"text_form,omitempty"`
	Parameters []ApiParameter `json:"parameters"`
	Highlights []string       `json:"highlights,omitempty"`
}
