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
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/AleutianAI/projectassist/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type mockChatClient struct {
	chatFunc func(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error)
}

func (m *mockChatClient) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	return m.chatFunc(ctx, messages, params)
}

func (m *mockChatClient) Model() string { return "mock-model" }

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

// =============================================================================
// ChatOracle
// =============================================================================

func TestChatOracle_Complete(t *testing.T) {
	exporter := setupTestTracer(t)

	var gotMessages []llm.Message
	var gotParams llm.GenerationParams
	client := &mockChatClient{chatFunc: func(_ context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
		gotMessages = messages
		gotParams = params
		return "BLOCKERS", nil
	}}

	o := NewChatOracle(client, "openai", WithMaxTokens(32))
	answer, err := o.Complete(context.Background(), "pick one", "what is stuck", 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "BLOCKERS" {
		t.Errorf("expected BLOCKERS, got %q", answer)
	}
	if len(gotMessages) != 2 || gotMessages[0].Role != "system" || gotMessages[1].Content != "what is stuck" {
		t.Errorf("unexpected messages: %+v", gotMessages)
	}
	if gotParams.Temperature == nil || *gotParams.Temperature != float32(0.2) {
		t.Errorf("expected temperature 0.2, got %v", gotParams.Temperature)
	}
	if gotParams.MaxTokens == nil || *gotParams.MaxTokens != 32 {
		t.Errorf("expected max tokens 32, got %v", gotParams.MaxTokens)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "oracle.ChatOracle.Complete" {
		t.Errorf("unexpected span name %q", spans[0].Name)
	}
}

func TestChatOracle_ErrorRecordedOnSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	client := &mockChatClient{chatFunc: func(context.Context, []llm.Message, llm.GenerationParams) (string, error) {
		return "", &llm.StatusError{Provider: "openai", StatusCode: http.StatusServiceUnavailable}
	}}

	_, err := NewChatOracle(client, "openai").Complete(context.Background(), "s", "u", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("expected one errored span, got %+v", spans)
	}
}

func TestChatOracle_EmptyAnswer(t *testing.T) {
	client := &mockChatClient{chatFunc: func(context.Context, []llm.Message, llm.GenerationParams) (string, error) {
		return "  \n", nil
	}}
	_, err := NewChatOracle(client, "gemini").Complete(context.Background(), "s", "u", 0)
	if !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("expected ErrEmptyAnswer, got %v", err)
	}
}

func TestChatOracle_NilClient(t *testing.T) {
	_, err := NewChatOracle(nil, "anthropic").Complete(context.Background(), "s", "u", 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

// =============================================================================
// Disabled / Func
// =============================================================================

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Complete(context.Background(), "s", "u", 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if !IsDisabled(Disabled{}) || !IsDisabled(nil) || !IsDisabled(&Disabled{}) {
		t.Error("expected Disabled and nil to report disabled")
	}
	if IsDisabled(Func(nil)) {
		t.Error("expected Func not to report disabled")
	}
}

func TestFunc(t *testing.T) {
	var o Oracle = Func(func(_ context.Context, system, user string, _ float64) (string, error) {
		return system + "|" + user, nil
	})
	got, err := o.Complete(context.Background(), "a", "b", 0)
	if err != nil || got != "a|b" {
		t.Errorf("expected a|b, got %q (%v)", got, err)
	}
}

// =============================================================================
// classifyError
// =============================================================================

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"unavailable", ErrUnavailable, "unavailable"},
		{"empty", fmt.Errorf("wrap: %w", ErrEmptyAnswer), "empty"},
		{"deadline", fmt.Errorf("openai: HTTP request failed: %w", context.DeadlineExceeded), "timeout"},
		{"auth", &llm.StatusError{Provider: "openai", StatusCode: 401}, "auth"},
		{"forbidden", &llm.StatusError{Provider: "gemini", StatusCode: 403}, "auth"},
		{"rate limit", &llm.StatusError{Provider: "anthropic", StatusCode: 429}, "rate_limit"},
		{"server", &llm.StatusError{Provider: "anthropic", StatusCode: 502}, "server"},
		{"bad request", &llm.StatusError{Provider: "openai", StatusCode: 400}, "unknown"},
		{"missing key text", errors.New("openai: API key is missing"), "auth"},
		{"other", errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// =============================================================================
// Config / factory
// =============================================================================

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("infers provider from model", func(t *testing.T) {
		t.Setenv("ASSIST_ORACLE_PROVIDER", "")
		t.Setenv("ASSIST_ORACLE_MODEL", "claude-3-5-haiku-latest")
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")
		cfg, err := LoadConfigFromEnv(ProviderConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Provider != ProviderAnthropic || cfg.APIKey != "ant-key" {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("defaults to none", func(t *testing.T) {
		t.Setenv("ASSIST_ORACLE_PROVIDER", "")
		t.Setenv("ASSIST_ORACLE_MODEL", "")
		cfg, err := LoadConfigFromEnv(ProviderConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Provider != ProviderNone {
			t.Errorf("expected none, got %q", cfg.Provider)
		}
	})

	t.Run("env overrides base", func(t *testing.T) {
		t.Setenv("ASSIST_ORACLE_PROVIDER", "OpenAI")
		t.Setenv("ASSIST_ORACLE_MODEL", "")
		t.Setenv("OPENAI_API_KEY", "k")
		cfg, err := LoadConfigFromEnv(ProviderConfig{Provider: ProviderGemini, Model: "gpt-4o"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Provider != ProviderOpenAI || cfg.Model != "gpt-4o" {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("invalid provider", func(t *testing.T) {
		t.Setenv("ASSIST_ORACLE_PROVIDER", "ollama")
		if _, err := LoadConfigFromEnv(ProviderConfig{}); err == nil {
			t.Error("expected error for unknown provider")
		}
	})
}

func TestNew(t *testing.T) {
	o, err := New(ProviderConfig{Provider: ProviderNone}, nil)
	if err != nil || !IsDisabled(o) {
		t.Errorf("expected disabled oracle, got %T (%v)", o, err)
	}

	o, err = New(ProviderConfig{Provider: ProviderOpenAI}, nil)
	if err != nil || !IsDisabled(o) {
		t.Errorf("expected disabled oracle without key, got %T (%v)", o, err)
	}

	for _, p := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini} {
		o, err = New(ProviderConfig{Provider: p, APIKey: "k"}, nil)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", p, err)
		}
		chat, ok := o.(*ChatOracle)
		if !ok || chat.Provider() != p {
			t.Errorf("expected %s ChatOracle, got %T", p, o)
		}
	}

	if _, err := New(ProviderConfig{Provider: "bogus"}, nil); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := map[string]string{
		"```jql\nproject = \"P\"\n```": `project = "P"`,
		"```\nTIMELINE\n```":           "TIMELINE",
		"  BLOCKERS  ":                 "BLOCKERS",
		"```":                          "",
	}
	for in, want := range tests {
		if got := StripCodeFences(in); got != want {
			t.Errorf("StripCodeFences(%q): expected %q, got %q", in, want, got)
		}
	}
}
