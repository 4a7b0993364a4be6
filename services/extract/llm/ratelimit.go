// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a Client with a token-bucket limiter so
// parallel field workers cannot exceed the provider's request budget.
//
// Thread Safety: Safe for concurrent use.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimitedClient allows rps requests per second with the given
// burst. A non-positive rps disables limiting.
func NewRateLimitedClient(inner Client, rps float64, burst int) *RateLimitedClient {
	var limiter *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &RateLimitedClient{inner: inner, limiter: limiter}
}

// Name implements Client.
func (c *RateLimitedClient) Name() string { return c.inner.Name() }

// Model implements Client.
func (c *RateLimitedClient) Model() string { return c.inner.Model() }

// Chat waits for limiter headroom, then delegates. A context expiring
// during the wait surfaces as a call failure, same as a transport
// timeout.
func (c *RateLimitedClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return c.inner.Chat(ctx, messages, params)
}
