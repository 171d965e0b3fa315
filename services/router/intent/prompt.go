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
	"fmt"
	"strings"

	"github.com/AleutianAI/voice-router/services/router/catalog"
)

// extractionSystemPrompt is the fixed preamble of the extraction contract.
const extractionSystemPrompt = `You are an assistant that extracts API call parameters from user text.

Given the declared parameters of an API and the user's text, determine the
value of each parameter from the text.

Rules:
- Respond with ONLY a JSON object. No explanation, no markdown formatting.
- The object must contain exactly one key per declared parameter.
- Every value must be a JSON string.
- If a parameter cannot be determined from the text, use the empty string "".
- When a parameter lists allowed values, choose one of them or "".
- Never invent values that are not supported by the text.
`

// buildExtractionPrompt renders the deterministic system prompt for a match:
// the full declared parameter list (name, default, allowed values) followed
// by the output contract. Parameters are listed in declared order so the
// same match always produces the same prompt.
func buildExtractionPrompt(match *catalog.ApiMatch) string {
	var sb strings.Builder
	sb.WriteString(extractionSystemPrompt)

	sb.WriteString("\nDeclared parameters:\n")
	for _, p := range match.Parameters {
		sb.WriteString(fmt.Sprintf("  - %s (default: %s", p.Name, renderValue(p.DefaultValue)))
		if len(p.AllowedValues) > 0 {
			rendered := make([]string, 0, len(p.AllowedValues))
			for _, v := range p.AllowedValues {
				rendered = append(rendered, renderValue(v))
			}
			sb.WriteString(fmt.Sprintf(", allowed: [%s]", strings.Join(rendered, ", ")))
		}
		sb.WriteString(")\n")
	}

	sb.WriteString("\nExample output:\n")
	sb.WriteString("{\n")
	for i, p := range match.Parameters {
		sb.WriteString(fmt.Sprintf("  %q: \"\"", p.Name))
		if i < len(match.Parameters)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")

	return sb.String()
}

// renderValue quotes strings and leaves numbers bare, so the model sees the
// parameter's semantic type.
func renderValue(v catalog.Value) string {
	switch v.Kind() {
	case catalog.KindAbsent:
		return "none"
	case catalog.KindString:
		return fmt.Sprintf("%q", v.Str())
	default:
		return v.String()
	}
}
