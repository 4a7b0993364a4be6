// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the model-client abstraction for the second
// extraction attempt: a provider-neutral Client interface, Anthropic
// and OpenAI implementations, a rate-limited wrapper, and the strict
// JSON candidate parser with its one-retry contract.
package llm

import (
	"context"
	"fmt"
)

// GenerationParams are the optional knobs for a completion call.
// Pointer fields distinguish "unset" from zero.
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the provider-neutral completion interface.
type Client interface {
	// Chat sends a conversation and returns the model's text response.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// Name identifies the provider ("anthropic", "openai").
	Name() string

	// Model returns the configured model identifier.
	Model() string
}

// NewClient builds a Client for the named provider. Provider "none"
// returns (nil, nil): the pipeline runs heuristics-only.
func NewClient(provider, model string) (Client, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicClient(model)
	case "openai":
		return NewOpenAIClient(model)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
