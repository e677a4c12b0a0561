// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RetryBaseDelay controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var RetryBaseDelay = 500 * time.Millisecond

const defaultMaxAttempts = 3

// BackoffDelay returns the wait before retrying after the given zero-based
// attempt: RetryBaseDelay doubled each attempt (0.5 s, 1 s, 2 s, ...).
func BackoffDelay(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
}

// DoWithRetry executes an HTTP request and retries on HTTP 429 (Too Many
// Requests) and on transport errors, with exponential backoff per
// BackoffDelay. Any other status code is returned to the caller on the
// first attempt; rate-limit semantics never apply to it.
//
// When maxAttempts is 0 the default (3) is used. On each 429 the response
// body is drained and closed before sleeping. If the context is cancelled
// during a backoff wait the function returns ctx.Err(). After exhausting
// attempts the last 429 response (or transport error) is returned so the
// caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int) (*http.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	log := zap.L().Named("httputil")

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		last := attempt >= maxAttempts-1

		if err != nil {
			if last {
				return nil, err
			}
			log.Debug("transport error, retrying",
				zap.String("host", req.URL.Host),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		} else {
			if resp.StatusCode != http.StatusTooManyRequests {
				return resp, nil
			}
			// Exhausted attempts: return the 429 response as-is.
			if last {
				return resp, nil
			}

			// Drain and close the body before retrying.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			log.Warn("rate limited, retrying",
				zap.String("host", req.URL.Host),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", maxAttempts))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(BackoffDelay(attempt)):
		}
	}
}
