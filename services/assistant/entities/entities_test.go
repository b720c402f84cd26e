// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssignee(t *testing.T) {
	tests := []struct {
		utterance string
		want      string
	}{
		{"show tasks assigned to john smith", "John Smith"},
		{"what is alice working on", "Alice"},
		{"show bob's tasks", "Bob"},
		{"issues for carol in the current sprint", "Carol"},
		{"show my tasks", CurrentUser},
		{"what is assigned to me", CurrentUser},
		{"tasks for this week", ""},
		{"what is the team working on", ""},
		{"show open tasks", ""},
	}
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			assert.Equal(t, tt.want, Assignee(tt.utterance))
		})
	}
}

func TestPriority(t *testing.T) {
	assert.Equal(t, "High", Priority("show high priority tasks"))
	assert.Equal(t, "Highest", Priority("anything critical?"))
	assert.Equal(t, "Lowest", Priority("lowest priority items"))
	assert.Equal(t, "Low", Priority("list low-priority bugs"))
	assert.Equal(t, "Medium", Priority("tasks where priority is medium"))
	assert.Equal(t, "", Priority("show open tasks"))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "In Progress", Status("show tasks in progress"))
	assert.Equal(t, "To Do", Status("what is still todo"))
	assert.Equal(t, "Done", Status("completed work this week"))
	assert.Equal(t, "Open", Status("show open bugs"))
	assert.Equal(t, "", Status("who is overloaded"))
}

func TestIssueType(t *testing.T) {
	assert.Equal(t, "Bug", IssueType("how many bugs are there"))
	assert.Equal(t, "Story", IssueType("list user stories"))
	assert.Equal(t, "Epic", IssueType("show epics"))
	assert.Equal(t, "Task", IssueType("issues of type task"))
	assert.Equal(t, "", IssueType("show my tasks"))
}

func TestTimeframeOf(t *testing.T) {
	tests := map[string]Timeframe{
		"what is overdue":                 Overdue,
		"tasks without a due date":        NoDate,
		"what is due next week":           NextWeek,
		"deadlines this week":             ThisWeek,
		"anything due next month":         NextMonth,
		"due by end of month":             ThisMonth,
		"upcoming deadlines":              Upcoming,
		"what changed recently":           Recent,
		"show all tasks assigned to dave": NoTime,
	}
	for utterance, want := range tests {
		assert.Equal(t, want, TimeframeOf(utterance), utterance)
	}
}

func TestIssueKeys(t *testing.T) {
	assert.Equal(t, []string{"PROJ-42", "OPS-3"}, IssueKeys("tell me about PROJ-42 and also OPS-3 and PROJ-42"))
	assert.Nil(t, IssueKeys("no keys here"))
	assert.Equal(t, "PROJ-42", FirstIssueKey("compare PROJ-42 with PROJ-7"))
	assert.Equal(t, "", FirstIssueKey("nothing"))
	assert.True(t, IsIssueKey(" PROJ-7 "))
	assert.False(t, IsIssueKey(" proj-7 "))
	assert.False(t, IsIssueKey("show PROJ-7"))
}

func TestIssueKeys_LowerCaseTokensAreNotKeys(t *testing.T) {
	for _, u := range []string{
		"show the top-5 high priority bugs",
		"list issues with the utf-8 label",
		"what is planned for q3-2025",
		"tell me about proj-42",
	} {
		assert.Empty(t, FirstIssueKey(u), u)
		assert.Nil(t, IssueKeys(u), u)
	}
}

func TestKeyMatcher_ProjectPrefix(t *testing.T) {
	m := NewKeyMatcher("proj")

	assert.Equal(t, "PROJ-42", m.First("tell me about proj-42"))
	assert.Equal(t, []string{"PROJ-42", "OPS-3"}, m.Keys("Proj-42 blocks OPS-3 but not ops-4"))
	assert.Empty(t, m.First("show the top-5 high priority bugs"))
	assert.Empty(t, m.First("what is planned for q3-2025"))
	assert.Empty(t, m.First("xproj-4 is another project"))
}

func TestKeyMatcher_Canonicalize(t *testing.T) {
	m := NewKeyMatcher("PROJ")

	assert.Equal(t, "what about PROJ-7 and the top-5 bugs", m.Canonicalize("what about proj-7 and the top-5 bugs"))
	assert.Equal(t, "no keys", m.Canonicalize("no keys"))
	assert.Equal(t, "ops-1 stays", KeyMatcher{}.Canonicalize("ops-1 stays"))
}

func TestFoldCase(t *testing.T) {
	assert.Equal(t, "show PROJ-12 and top-5 items", FoldCase("Show PROJ-12 and top-5 Items"))
	assert.Equal(t, "plain text", FoldCase("Plain TEXT"))
}

func TestExtract(t *testing.T) {
	e := Extract("show high priority bugs assigned to dana due next week")
	assert.Equal(t, "Dana", e.Assignee)
	assert.Equal(t, "High", e.Priority)
	assert.Equal(t, "Bug", e.IssueType)
	assert.Equal(t, NextWeek, e.Timeframe)
	assert.Empty(t, e.IssueKeys)
}
