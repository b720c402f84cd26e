// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/projectassist/services/assistant/session"
)

func (c *Classifier) tieBreakPrompt(candidates []Intent) string {
	var b strings.Builder
	b.WriteString("You classify questions about a software project's issue tracker.\n")
	b.WriteString("Choose exactly one category from this list:\n")
	for _, cand := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", cand, c.describe(cand))
	}
	b.WriteString("Answer with the category name only.")
	return b.String()
}

func (c *Classifier) describe(in Intent) string {
	for _, cat := range c.rules.Load().Categories {
		if cat.Intent == in {
			return cat.Description
		}
	}
	return in.Description()
}

func fullPrompt() string {
	var b strings.Builder
	b.WriteString("You classify questions about a software project's issue tracker.\n")
	b.WriteString("Categories:\n")
	for _, in := range Vocabulary {
		fmt.Fprintf(&b, "- %s: %s\n", in, in.Description())
	}
	b.WriteString("Answer with the category name only.")
	return b.String()
}

func userPrompt(norm string, dc *session.DerivedContext) string {
	if dc == nil || len(dc.RecentQueries) == 0 {
		return "Question: " + norm
	}
	var b strings.Builder
	b.WriteString("Conversation so far: ")
	b.WriteString(dc.ConversationSummary)
	if n := len(dc.RecentIntents); n > 0 {
		fmt.Fprintf(&b, "\nPrevious category: %s", dc.RecentIntents[n-1])
	}
	if dc.LastIssueKey != "" {
		fmt.Fprintf(&b, "\nLast issue discussed: %s", dc.LastIssueKey)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(norm)
	return b.String()
}
