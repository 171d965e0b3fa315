// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retry implements the bounded exponential-backoff-with-jitter policy
// applied uniformly to every external dependency call (catalog search, chat
// provider, transcription, downstream API).
//
// Only errors explicitly marked transient via Transient() are retried.
// Context cancellation always aborts immediately.
//
// Thread Safety:
//
//	All functions in this package are safe for concurrent use.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"
)

// Config controls the backoff schedule for Do.
type Config struct {
	// MaxAttempts is the total attempt cap, including the first call.
	// Default: 5.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	// Default: 100ms.
	InitialDelay time.Duration

	// MaxDelay caps the per-attempt wait.
	// Default: 5s.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	// Default: 2.0.
	Multiplier float64

	// Jitter is the fraction of the delay randomized in both directions,
	// e.g. 0.2 means +/-20%. Zero disables jitter.
	Jitter float64
}

// DefaultConfig returns the dependency-call retry policy used across the
// service: 5 attempts, 100ms initial delay doubling to a 5s cap, 20% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// transientError marks an error as retriable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that Do treats it as retriable.
//
// Callers classify at the dependency boundary: transport failures and
// retryable HTTP statuses are wrapped, everything else is returned bare
// and fails fast.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked with
// Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// IsRetryableHTTPStatus reports whether an HTTP status code is in the
// connectivity/overload class worth retrying.
func IsRetryableHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// Do executes fn with bounded exponential backoff.
//
// Description:
//
//	Calls fn up to cfg.MaxAttempts times. A nil result or a non-transient
//	error returns immediately; transient errors wait out the backoff delay
//	and retry. The final error is returned unwrapped of scheduling concerns
//	(still carrying its transient marker so callers can distinguish an
//	exhausted retry from a permanent failure).
//
// Inputs:
//   - ctx: Aborts the wait between attempts; fn is expected to honor it too.
//   - cfg: Backoff schedule. Zero-value fields fall back to DefaultConfig.
//   - fn: The operation. Must be safe to call repeatedly.
//
// Outputs:
//   - error: Nil on success; ctx.Err() on cancellation; otherwise the last
//     error fn returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig().InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultConfig().Multiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay, cfg.Jitter)):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}

// jittered spreads d by +/- fraction to avoid synchronized retry storms.
func jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	spread := 1 + fraction*(2*rand.Float64()-1)
	return time.Duration(float64(d) * spread)
}
