// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analytics

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/projectassist/services/assistant/clients/jira"
)

var askedTypePattern = regexp.MustCompile(`(?i)\b(?:how\s+many|number\s+of|count\s+(?:of\s+)?)\s*(?:open\s+)?(bugs?|defects?|stor(?:y|ies)|user\s+stories|tasks?|epics?|sub-?tasks?|subtasks?)\b`)

// askedTypeNames maps the captured word to the issue type name.
var askedTypeNames = []struct {
	prefix string
	name   string
}{
	{"sub", "Sub-task"},
	{"bug", "Bug"},
	{"defect", "Bug"},
	{"stor", "Story"},
	{"user", "Story"},
	{"task", "Task"},
	{"epic", "Epic"},
}

// AskedIssueType returns the type a "how many X" question names, or "".
func AskedIssueType(utterance string) string {
	m := askedTypePattern.FindStringSubmatch(utterance)
	if m == nil {
		return ""
	}
	word := strings.ToLower(m[1])
	for _, t := range askedTypeNames {
		if strings.HasPrefix(word, t.prefix) {
			return t.name
		}
	}
	return ""
}

// TypeCount is the tally for one issue type.
type TypeCount struct {
	Name    string
	Total   int
	Open    int
	Percent int
}

// IssueTypeReport is the breakdown of issues by type.
type IssueTypeReport struct {
	// Types are sorted by Total descending, then name.
	Types []TypeCount
	Total int

	// Asked is the type named in a "how many X" question, or "".
	Asked string

	// AskedCount is the tally for Asked; zero when the type is absent.
	AskedCount TypeCount

	// AskedFound is false when Asked names a type the project lacks.
	AskedFound bool
}

// CountIssueTypes tallies issues per type and answers a "how many X"
// question when the utterance asks one.
//
// Description:
//
//	Percent is the type's share of all issues, rounded. When the asked type
//	has no issues, AskedFound is false and Types still lists the types that
//	do exist, so the answer can name them.
func CountIssueTypes(issues []jira.Issue, utterance string) *IssueTypeReport {
	r := &IssueTypeReport{Total: len(issues)}
	byName := make(map[string]*TypeCount)
	for i := range issues {
		name := issues[i].TypeName()
		if name == "" {
			name = "Unknown"
		}
		tc, ok := byName[name]
		if !ok {
			tc = &TypeCount{Name: name}
			byName[name] = tc
		}
		tc.Total++
		if !issues[i].IsDone() {
			tc.Open++
		}
	}
	for _, tc := range byName {
		tc.Percent = percent(tc.Total, r.Total)
		r.Types = append(r.Types, *tc)
	}
	sort.Slice(r.Types, func(i, j int) bool {
		if r.Types[i].Total != r.Types[j].Total {
			return r.Types[i].Total > r.Types[j].Total
		}
		return r.Types[i].Name < r.Types[j].Name
	})

	r.Asked = AskedIssueType(utterance)
	if r.Asked == "" {
		return r
	}
	r.AskedCount = TypeCount{Name: r.Asked}
	for _, tc := range r.Types {
		if sameType(tc.Name, r.Asked) {
			r.AskedCount = tc
			r.AskedFound = true
			break
		}
	}
	return r
}

// sameType compares type names ignoring case and hyphens, so "Subtask"
// matches "Sub-task".
func sameType(a, b string) bool {
	norm := func(s string) string { return strings.ReplaceAll(strings.ToLower(s), "-", "") }
	return norm(a) == norm(b)
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}
