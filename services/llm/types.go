// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm contains raw net/http chat clients for hosted model APIs.
//
// Each client performs one request per Chat call: no streaming, no tool
// calling, no retries. Callers own timeouts through the context.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries optional sampling settings. Nil pointers mean
// "provider default".
type GenerationParams struct {
	Temperature   *float32
	MaxTokens     *int
	TopP          *float32
	Stop          []string
	ModelOverride string
}

// ChatClient is implemented by every provider client in this package.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
	Model() string
}

// StatusError is returned when a provider answers with a non-2xx status.
// Body is already redacted.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

const (
	defaultHTTPTimeout = 60 * time.Second
	maxResponseBytes   = 4 << 20
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// readBody reads at most maxResponseBytes and returns a StatusError for
// non-2xx responses.
func readBody(provider string, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response body (status %d): %w", provider, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: SafeLogString(string(body))}
	}
	return body, nil
}
