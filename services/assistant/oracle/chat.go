// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ChatOracle adapts an llm.ChatClient to Oracle.
//
// Description:
//
//	Each Complete call becomes a two-message chat (system + user). Every
//	call is traced and recorded in the oracle Prometheus metrics. A
//	whitespace-only answer is reported as ErrEmptyAnswer.
//
// Thread Safety: ChatOracle is safe for concurrent use if the wrapped
// client is.
type ChatOracle struct {
	client    llm.ChatClient
	provider  string
	maxTokens int
	logger    *slog.Logger
}

// ChatOption configures a ChatOracle.
type ChatOption func(*ChatOracle)

// WithMaxTokens caps the completion length. Zero means provider default.
func WithMaxTokens(n int) ChatOption {
	return func(c *ChatOracle) { c.maxTokens = n }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) ChatOption {
	return func(c *ChatOracle) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChatOracle wraps client. provider is used only for metric and span labels.
func NewChatOracle(client llm.ChatClient, provider string, opts ...ChatOption) *ChatOracle {
	c := &ChatOracle{client: client, provider: provider, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider label.
func (c *ChatOracle) Provider() string { return c.provider }

// Complete implements Oracle.
func (c *ChatOracle) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("%w: %s client is nil", ErrUnavailable, c.provider)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "oracle.ChatOracle.Complete",
		trace.WithAttributes(
			attribute.String("provider", c.provider),
			attribute.String("model", c.client.Model()),
			attribute.Float64("temperature", temperature),
			attribute.Int("prompt_len", len(systemPrompt)+len(userPrompt)),
		),
	)
	defer span.End()

	params := llm.GenerationParams{}
	if temperature >= 0 {
		temp := float32(temperature)
		params.Temperature = &temp
	}
	if c.maxTokens > 0 {
		maxTokens := c.maxTokens
		params.MaxTokens = &maxTokens
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	start := time.Now()
	answer, err := c.client.Chat(ctx, messages, params)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = ErrEmptyAnswer
	}
	duration := time.Since(start)
	recordMetrics(c.provider, duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("oracle call failed",
			slog.String("provider", c.provider),
			slog.String("error_type", classifyError(err)),
			slog.String("error", llm.SafeLogString(err.Error())),
			slog.Duration("duration", duration),
		)
		return "", err
	}

	span.SetAttributes(attribute.Int("answer_len", len(answer)))
	return answer, nil
}
