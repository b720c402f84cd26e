// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package querygen

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/projectassist/services/assistant/intent"
)

const fullPromptTemplate = `You translate questions about a Jira project into a single JQL query.
Rules:
1. Always scope to the project: start with project = "%[1]s".
2. Never put a bare comma between conditions; join conditions with AND or OR.
3. Commas are only allowed inside IN (...) lists, and every list element is quoted.
4. Never use LIMIT or any other result-limiting keyword.
5. Quote every value that contains a space, e.g. status = "In Progress".
6. Quote status, priority, assignee, reporter and issuetype values.
7. Use "is EMPTY" and "is not EMPTY" for missing values, never "= null".
8. Use currentUser() for the person asking.
9. Use relative dates such as -7d, startOfWeek() and endOfMonth().
10. Put ORDER BY last.
Answer with the JQL only, on one line, without explanation or code fences.

Example:
Question: high priority bugs assigned to Dana
JQL: project = "%[1]s" AND issuetype = "Bug" AND priority in ("Highest", "High") AND assignee = "Dana" ORDER BY updated DESC`

const simplifiedPromptTemplate = `Write one short JQL query for the Jira project %[1]s.
Use only project, status, assignee and priority conditions joined with AND.
Start with project = "%[1]s". Quote every value. No LIMIT. JQL only.`

func fullPrompt(projectKey string) string {
	return fmt.Sprintf(fullPromptTemplate, projectKey)
}

func simplifiedPrompt(projectKey string) string {
	return fmt.Sprintf(simplifiedPromptTemplate, projectKey)
}

func userPrompt(utterance string, in intent.Intent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(utterance))
	if in.Known() {
		fmt.Fprintf(&b, "Category: %s (%s)\n", in, in.Description())
	}
	b.WriteString("JQL:")
	return b.String()
}
