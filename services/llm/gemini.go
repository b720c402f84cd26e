// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-1.5-flash"
)

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// GeminiClient talks to the Gemini generateContent REST API.
//
// Thread Safety: GeminiClient is safe for concurrent use.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewGeminiClientWithConfig creates a client without reading the environment.
// baseURL is the API root, e.g. DefaultGeminiBaseURL.
func NewGeminiClientWithConfig(apiKey, model, baseURL string) *GeminiClient {
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	return &GeminiClient{httpClient: newHTTPClient(), apiKey: apiKey, model: model, baseURL: strings.TrimRight(baseURL, "/")}
}

// Model returns the configured model name.
func (g *GeminiClient) Model() string { return g.model }

// Chat sends one generateContent request. The API key travels in the
// x-goog-api-key header, never in the URL.
func (g *GeminiClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	model := g.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	reqBody, err := json.Marshal(buildGeminiRequest(messages, params))
	if err != nil {
		return "", fmt.Errorf("gemini: marshaling request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("gemini: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody("gemini", resp)
	if err != nil {
		return "", err
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("gemini: parsing response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("gemini: API error [%d] %s: %s",
			apiResp.Error.Code, apiResp.Error.Status, SafeLogString(apiResp.Error.Message))
	}
	if len(apiResp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: returned no candidates")
	}

	var parts []string
	for _, part := range apiResp.Candidates[0].Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	result := strings.Join(parts, "")
	if result == "" {
		return "", fmt.Errorf("gemini: returned empty text content")
	}

	slog.Debug("gemini chat response",
		slog.String("model", model),
		slog.String("finish_reason", apiResp.Candidates[0].FinishReason),
		slog.Int("response_len", len(result)),
	)
	return result, nil
}

func buildGeminiRequest(messages []Message, params GenerationParams) geminiRequest {
	var req geminiRequest
	if params.Temperature != nil || params.TopP != nil || params.MaxTokens != nil || len(params.Stop) > 0 {
		req.GenerationConfig = &geminiGenerationConfig{
			Temperature:     params.Temperature,
			TopP:            params.TopP,
			MaxOutputTokens: params.MaxTokens,
			StopSequences:   params.Stop,
		}
	}
	for _, msg := range messages {
		part := []geminiPart{{Text: msg.Content}}
		switch strings.ToLower(msg.Role) {
		case "system":
			req.SystemInstruction = &geminiContent{Parts: part}
		case "assistant":
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: part})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: part})
		}
	}
	return req
}
