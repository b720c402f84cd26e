// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/oracle"
	"github.com/AleutianAI/projectassist/services/assistant/session"
	"github.com/AleutianAI/projectassist/services/llm"
)

const proseTemperature = 0.3

var verbosityGuidance = map[session.Verbosity]string{
	session.Concise:  "Answer in at most three short sentences or bullets.",
	session.Medium:   "Keep the answer brief: a one-line summary followed by the key items.",
	session.Detailed: "Give a thorough answer, keeping every item and detail from the data.",
}

// proseSystemPrompt asks for a faithful rewrite of deterministic markdown.
const proseSystemPrompt = `You are a project assistant answering a teammate's question.
You are given the question and a markdown answer built from live project data.
Rewrite the answer as natural, friendly chat markdown.
Rules:
- Use only facts present in the data. Never invent issues, people, numbers or dates.
- Keep issue keys, links and counts exactly as given.
- Do not mention that you were given data or a draft.
%s`

// ProseWriter rewrites markdown answers with the oracle.
//
// Thread Safety: Safe for concurrent use.
type ProseWriter struct {
	oracle  oracle.Oracle
	timeout time.Duration
	logger  *slog.Logger
}

// NewProseWriter creates a ProseWriter. A nil or disabled oracle makes
// Rewrite return the markdown unchanged.
func NewProseWriter(o oracle.Oracle, timeout time.Duration, logger *slog.Logger) *ProseWriter {
	if o == nil {
		o = oracle.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProseWriter{oracle: o, timeout: timeout, logger: logger}
}

// Rewrite returns the oracle's rewrite of markdown, or markdown itself when
// the oracle fails or answers empty. The bool reports whether the oracle
// answer was used.
func (p *ProseWriter) Rewrite(ctx context.Context, question, markdown string, v session.Verbosity) (string, bool) {
	if p == nil || oracle.IsDisabled(p.oracle) || strings.TrimSpace(markdown) == "" {
		return markdown, false
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	guidance, ok := verbosityGuidance[v]
	if !ok {
		guidance = verbosityGuidance[session.DefaultVerbosity]
	}
	user := "Question: " + question + "\n\nData:\n" + markdown
	answer, err := p.oracle.Complete(ctx, fmt.Sprintf(proseSystemPrompt, guidance), user, proseTemperature)
	if err != nil {
		p.logger.Warn("prose rewrite failed; using markdown",
			slog.String("error", llm.SafeLogString(err.Error())))
		return markdown, false
	}
	answer = strings.TrimSpace(oracle.StripCodeFences(answer))
	if answer == "" {
		return markdown, false
	}
	return answer, true
}
