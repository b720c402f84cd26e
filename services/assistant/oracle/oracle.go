// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle defines the single-shot completion interface used by every
// AI-assisted decision point, plus adapters over the services/llm clients.
package oracle

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned when no completion provider is configured.
var ErrUnavailable = errors.New("oracle: unavailable")

// ErrEmptyAnswer is returned when a provider answers with only whitespace.
var ErrEmptyAnswer = errors.New("oracle: empty answer")

// Oracle is a text-in/text-out completion service.
//
// Description:
//
//	Complete sends one system prompt and one user prompt and returns the
//	model's text. There is no streaming and no multi-turn state. Callers
//	treat every error as a soft failure and degrade to a deterministic
//	substitute.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Oracle interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	return f(ctx, systemPrompt, userPrompt, temperature)
}

// Disabled is the Oracle used when no provider is configured. Every call
// fails with ErrUnavailable.
type Disabled struct{}

// Complete always returns ErrUnavailable.
func (Disabled) Complete(context.Context, string, string, float64) (string, error) {
	return "", ErrUnavailable
}

// IsDisabled reports whether o is nil or a Disabled oracle.
func IsDisabled(o Oracle) bool {
	if o == nil {
		return true
	}
	switch o.(type) {
	case Disabled, *Disabled:
		return true
	}
	return false
}

// StripCodeFences removes a surrounding markdown code fence (with an optional
// language tag) and trims whitespace.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
