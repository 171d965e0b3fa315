// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers defines the provider-agnostic chat interface and the
// wire clients for the generative-model boundary (Groq, OpenAI). The
// parameter extractor only needs single-turn chat: one prompt in, one text
// blob out, no streaming, no tool calls.
//
// Thread Safety:
//
//	All implementations in this package must be safe for concurrent use.
package providers

import (
	"context"

	"github.com/AleutianAI/voice-router/services/router/datatypes"
)

// ChatClient is the minimal interface the parameter extractor depends on.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	// Chat sends messages and returns the assistant's response text.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - messages: Conversation messages (system, user, assistant).
	//   - opts: Provider-agnostic chat options.
	//
	// Outputs:
	//   - string: The assistant's response text.
	//   - error: Non-nil on failure. Connectivity-class failures are marked
	//     transient (see the retry package) so the retrying decorator can
	//     distinguish them from permanent API errors.
	Chat(ctx context.Context, messages []datatypes.Message, opts ChatOptions) (string, error)
}

// ChatOptions holds provider-agnostic options for a single chat request.
type ChatOptions struct {
	// Temperature controls randomness. The extraction pipeline pins it to
	// 0.0 for deterministic output.
	Temperature float64

	// MaxTokens limits the response length. Zero omits the field and uses
	// the provider's default.
	MaxTokens int

	// Model overrides the client's default model for this request.
	Model string
}
