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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/voice-router/services/router/datatypes"
	"github.com/AleutianAI/voice-router/services/router/retry"
)

// RetryingChatClient decorates a ChatClient with the shared backoff policy.
//
// Description:
//
//	Retry belongs to the provider-call wrapper, not to the extractor: the
//	extractor sees a single Chat call that either succeeded or exhausted its
//	attempts. Only errors the inner client marked transient are retried.
//
// Thread Safety: Safe for concurrent use when the inner client is.
type RetryingChatClient struct {
	inner  ChatClient
	cfg    retry.Config
	logger *slog.Logger
}

// NewRetryingChatClient wraps inner with cfg. A zero cfg selects the shared
// default (5 attempts, exponential backoff with jitter).
func NewRetryingChatClient(inner ChatClient, cfg retry.Config) (*RetryingChatClient, error) {
	if inner == nil {
		return nil, fmt.Errorf("providers: inner chat client must not be nil")
	}
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig()
	}
	return &RetryingChatClient{
		inner:  inner,
		cfg:    cfg,
		logger: slog.Default(),
	}, nil
}

// Chat implements ChatClient.
func (r *RetryingChatClient) Chat(ctx context.Context, messages []datatypes.Message, opts ChatOptions) (string, error) {
	var response string
	attempt := 0
	err := retry.Do(ctx, r.cfg, func() error {
		attempt++
		out, callErr := r.inner.Chat(ctx, messages, opts)
		if callErr != nil {
			if retry.IsTransient(callErr) {
				r.logger.Warn("Transient chat provider failure",
					slog.Int("attempt", attempt),
					slog.String("error", callErr.Error()),
				)
			}
			return callErr
		}
		response = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return response, nil
}
