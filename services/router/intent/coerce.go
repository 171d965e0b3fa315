// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent implements the intent-resolution pipeline: catalog search,
// LLM parameter extraction, type coercion, downstream invocation, and the
// per-request coordinator sequencing them.
package intent

import (
	"strconv"
	"strings"

	"github.com/AleutianAI/voice-router/services/router/catalog"
)

// Coerce converts an extracted raw value to the semantic type implied by a
// parameter's default value.
//
// # Description
//
// Pure and total; never fails:
//   - raw empty -> the default, unchanged (its variant propagates).
//   - default absent -> raw as a string, unmodified.
//   - default integer -> integer parse of raw; the default on parse failure.
//   - default float -> float parse of raw; the default on parse failure.
//   - anything else -> raw as a string.
//
// Parse failure is a silent fallback, not an error: a model that answered
// "abc" for an integer-typed page size degrades to the declared default.
func Coerce(raw string, def catalog.Value) catalog.Value {
	if raw == "" {
		return def
	}
	switch def.Kind() {
	case catalog.KindAbsent:
		return catalog.StringValue(raw)
	case catalog.KindInteger:
		if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			return catalog.IntegerValue(n)
		}
		return def
	case catalog.KindFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return catalog.FloatValue(f)
		}
		return def
	default:
		return catalog.StringValue(raw)
	}
}
