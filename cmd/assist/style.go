// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/projectassist/services/assistant"
)

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type styles struct {
	prompt lipgloss.Style
	answer lipgloss.Style
	meta   lipgloss.Style
	err    lipgloss.Style
	title  lipgloss.Style
}

// newStyles returns colored styles for a terminal and plain ones otherwise.
func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{prompt: plain, answer: plain, meta: plain, err: plain, title: plain}
	}
	return styles{
		prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		answer: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		meta:   lipgloss.NewStyle().Faint(true),
		err:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		title:  lipgloss.NewStyle().Bold(true),
	}
}

// stylesFor picks styles for w.
func stylesFor(w io.Writer) styles {
	f, ok := w.(*os.File)
	return newStyles(ok && isTerminal(f))
}

// printResponse writes an answer and, when meta is set, how it was produced.
func printResponse(w io.Writer, st styles, resp *assistant.Response, meta bool) {
	body := st.answer.Render(resp.Answer)
	if resp.Error != assistant.KindNone {
		body = st.err.Render(resp.Answer)
	}
	fmt.Fprintln(w, body)
	if !meta {
		return
	}
	parts := []string{"domain=" + string(resp.Domain), "intent=" + resp.Intent}
	if resp.Tier != "" {
		parts = append(parts, "tier="+string(resp.Tier))
	}
	if resp.Query != "" {
		parts = append(parts, fmt.Sprintf("query=%q", resp.Query))
	}
	if resp.QueryTier != "" {
		parts = append(parts, "query_tier="+string(resp.QueryTier))
	}
	if resp.Error != assistant.KindNone {
		parts = append(parts, "error="+string(resp.Error))
	}
	parts = append(parts, fmt.Sprintf("results=%d", resp.Results), fmt.Sprintf("latency=%dms", resp.LatencyMS))
	if resp.UsedOracle {
		parts = append(parts, "oracle")
	}
	fmt.Fprintln(w, st.meta.Render(strings.Join(parts, " ")))
}
