// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package fetcher

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/catalog"
)

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first (0 disables retries).
	MaxRetries int

	// InitialBackoff is the initial backoff duration (default: 500ms)
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration (default: 10s)
	MaxBackoff time.Duration
}

// retryWrapper runs operation with exponential backoff and jitter, returning
// the first success or the last error encountered.
func retryWrapper[T any](ctx context.Context, config RetryConfig, onRetry func(attempt int, wait time.Duration, err error), operation func() (T, error)) (T, error) {
	var zero T

	initialBackoff := config.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == config.MaxRetries || !isRetryable(err) {
			break
		}

		backoff := calculateBackoff(attempt, initialBackoff, maxBackoff)
		if onRetry != nil {
			onRetry(attempt+1, backoff, err)
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// isRetryable checks if an error should trigger a retry. Malformed payloads
// and client errors are final.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, catalog.ErrInvalidPayload) || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrRequest)
}

// calculateBackoff computes the backoff for attempt using exponential
// growth capped at max, with full jitter.
func calculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	return time.Duration(rand.Float64() * backoff) // #nosec G404 -- jitter does not need crypto randomness
}
