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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/intent"
	"github.com/AleutianAI/projectassist/services/assistant/jql"
	"github.com/AleutianAI/projectassist/services/assistant/oracle"
	"github.com/AleutianAI/projectassist/services/assistant/oracle/oracletest"
	"github.com/AleutianAI/projectassist/services/assistant/session"
)

const testProject = "PROJ"

var errOracleDown = errors.New("oracle down")

func newTestGenerator(t *testing.T, o oracle.Oracle) *Generator {
	t.Helper()
	g, err := NewGenerator(testProject, o, WithOracleTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestGenerate_LiteralTemplateSkipsOracle(t *testing.T) {
	fake := oracletest.Failing(errOracleDown)
	g := newTestGenerator(t, fake)

	res := g.Generate(context.Background(), "show open tasks", intent.TaskList, nil)

	if want := jql.MustTemplate(jql.OpenTasks, testProject); res.Query != want {
		t.Errorf("expected %q, got %q", want, res.Query)
	}
	if res.Tier != TierLiteral || res.Template != jql.OpenTasks {
		t.Errorf("expected literal OPEN_TASKS, got %+v", res)
	}
	if fake.CallCount() != 0 {
		t.Errorf("expected 0 oracle calls, got %d", fake.CallCount())
	}
}

func TestGenerate_IssueKeyShortCircuit(t *testing.T) {
	g := newTestGenerator(t, oracletest.Failing(errOracleDown))
	prefs := &session.Preferences{PreferredSort: "priority DESC"}

	for _, in := range []intent.Intent{intent.TaskDetails, intent.Workload, intent.General, intent.Sprint} {
		res := g.Generate(context.Background(), "tell me about PROJ-42 and also PROJ-43", in, prefs)
		if res.Query != `key = "PROJ-42"` {
			t.Errorf("intent %s: expected key query, got %q", in, res.Query)
		}
		if res.Tier != TierIssueKey {
			t.Errorf("intent %s: expected issue_key tier, got %s", in, res.Tier)
		}
	}
}

func TestGenerate_LowerCaseTokensAreNotIssueKeys(t *testing.T) {
	g := newTestGenerator(t, oracletest.Failing(errOracleDown))

	for _, u := range []string{
		"show the top-5 high priority bugs",
		"list issues with the utf-8 label",
		"what is planned for q3-2025",
	} {
		res := g.Generate(context.Background(), u, intent.TaskList, nil)
		if res.Tier == TierIssueKey || strings.Contains(res.Query, "key =") {
			t.Errorf("%q: expected a project query, got %q at tier %s", u, res.Query, res.Tier)
		}
		if !jql.HasScope(res.Query) {
			t.Errorf("%q: expected a scoped query, got %q", u, res.Query)
		}
	}
}

func TestGenerate_LowerCaseProjectKey(t *testing.T) {
	g := newTestGenerator(t, oracletest.Failing(errOracleDown))

	res := g.Generate(context.Background(), "what about proj-42", intent.TaskDetails, nil)
	if res.Query != `key = "PROJ-42"` || res.Tier != TierIssueKey {
		t.Errorf("expected key query for the project's key, got %q at tier %s", res.Query, res.Tier)
	}
}

func TestGenerate_IntentTemplates(t *testing.T) {
	fake := oracletest.Failing(errOracleDown)
	g := newTestGenerator(t, fake)

	tests := []struct {
		in   intent.Intent
		want jql.TemplateName
	}{
		{intent.Conversation, jql.RecentUpdates},
		{intent.Greeting, jql.RecentUpdates},
		{intent.Sprint, jql.CurrentSprint},
		{intent.ProjectStatus, jql.ProjectStatus},
		{intent.IssueTypes, jql.IssueTypes},
	}
	for _, tt := range tests {
		res := g.Generate(context.Background(), "anything at all", tt.in, nil)
		if res.Tier != TierIntentTemplate || res.Template != tt.want {
			t.Errorf("intent %s: expected template %s, got %+v", tt.in, tt.want, res)
		}
	}
	if fake.CallCount() != 0 {
		t.Errorf("expected 0 oracle calls, got %d", fake.CallCount())
	}
}

func TestGenerate_PreferredSortReplacesOrdering(t *testing.T) {
	g := newTestGenerator(t, nil)
	prefs := &session.Preferences{PreferredSort: "duedate ASC"}

	res := g.Generate(context.Background(), "what's in the sprint", intent.Sprint, prefs)
	want := `project = "PROJ" AND sprint in openSprints() ORDER BY duedate ASC`
	if res.Query != want {
		t.Errorf("expected %q, got %q", want, res.Query)
	}

	res = g.Generate(context.Background(), "show open tasks", intent.TaskList, prefs)
	if res.Query != jql.MustTemplate(jql.OpenTasks, testProject) {
		t.Errorf("expected literal template untouched, got %q", res.Query)
	}
}

func TestGenerate_EntityTemplates(t *testing.T) {
	fake := oracletest.Failing(errOracleDown)
	g := newTestGenerator(t, fake)

	tests := []struct {
		utterance string
		in        intent.Intent
		want      string
	}{
		{"tasks assigned to alice", intent.AssignedTasks, jql.AssigneeQuery(testProject, "Alice")},
		{"what are my tasks", intent.AssignedTasks, jql.AssigneeQuery(testProject, jql.CurrentUser)},
		{"list high priority work", intent.TaskList, jql.PriorityQuery(testProject, "High")},
		{"which items are in progress", intent.TaskList, jql.StatusQuery(testProject, "In Progress")},
	}
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			res := g.Generate(context.Background(), tt.utterance, tt.in, nil)
			if res.Query != tt.want {
				t.Errorf("expected %q, got %q", tt.want, res.Query)
			}
			if res.Tier != TierEntityTemplate {
				t.Errorf("expected entity_template tier, got %s", res.Tier)
			}
		})
	}
	if fake.CallCount() != 0 {
		t.Errorf("expected 0 oracle calls, got %d", fake.CallCount())
	}
}

func TestGenerate_OracleOutputIsSanitized(t *testing.T) {
	fake := oracletest.Answering("```jql\nJQL: project = PROJ AND priority = High order by created desc LIMIT 5\n```")
	g := newTestGenerator(t, fake)

	res := g.Generate(context.Background(), "what needs attention first", intent.General, nil)

	want := `project = "PROJ" AND priority = "High" ORDER BY created DESC`
	if res.Query != want {
		t.Errorf("expected %q, got %q", want, res.Query)
	}
	if res.Tier != TierAI || !res.UsedOracle {
		t.Errorf("expected ai tier with oracle, got %+v", res)
	}
	calls := fake.Calls()
	if !strings.Contains(calls[0].SystemPrompt, `project = "PROJ"`) {
		t.Errorf("expected project in prompt, got %q", calls[0].SystemPrompt)
	}
	if !strings.Contains(calls[0].UserPrompt, "GENERAL") {
		t.Errorf("expected intent in user prompt, got %q", calls[0].UserPrompt)
	}
}

func TestGenerate_SimplifiedTierAfterFailure(t *testing.T) {
	fake := &oracletest.Fake{
		Errors:  []error{errOracleDown},
		Answers: []string{"", "status = Blocked"},
	}
	g := newTestGenerator(t, fake)

	res := g.Generate(context.Background(), "anything risky", intent.Blockers, nil)

	if res.Tier != TierSimplifiedAI || !res.UsedOracle {
		t.Fatalf("expected simplified tier, got %+v", res)
	}
	if want := `project = "PROJ" AND (status = "Blocked")`; res.Query != want {
		t.Errorf("expected %q, got %q", want, res.Query)
	}
	calls := fake.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 oracle calls, got %d", len(calls))
	}
	if calls[0].SystemPrompt == calls[1].SystemPrompt {
		t.Error("expected a different prompt for the reduced tier")
	}
}

func TestGenerate_StaticFallback(t *testing.T) {
	tests := []struct {
		name string
		o    oracle.Oracle
	}{
		{"failing", oracletest.Failing(errOracleDown)},
		{"empty answers", oracletest.Answering("   ", "```\n```")},
		{"disabled", oracle.Disabled{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, tt.o)
			res := g.Generate(context.Background(), "anything risky", intent.Blockers, nil)
			if res.Tier != TierStatic || res.UsedOracle {
				t.Fatalf("expected static tier, got %+v", res)
			}
			if res.Query != jql.MustTemplate(jql.Blockers, testProject) {
				t.Errorf("expected blockers template, got %q", res.Query)
			}
		})
	}
}

func TestStaticTemplate(t *testing.T) {
	tests := map[intent.Intent]jql.TemplateName{
		intent.Blockers:      jql.Blockers,
		intent.Timeline:      jql.Upcoming,
		intent.AssignedTasks: jql.MyTasks,
		intent.TaskList:      jql.OpenTasks,
		intent.Workload:      jql.OpenByOwner,
		intent.Sprint:        jql.CurrentSprint,
		intent.General:       jql.RecentUpdates,
		intent.Comments:      jql.RecentUpdates,
		"ROADMAP":            jql.RecentUpdates,
	}
	for in, want := range tests {
		if got := StaticTemplate(in); got != want {
			t.Errorf("StaticTemplate(%s): expected %s, got %s", in, want, got)
		}
	}
}

func TestGenerate_SafetyInvariant(t *testing.T) {
	answers := []string{
		"status = Open, priority = High LIMIT 10",
		"LIMIT 50",
		"assignee = john smith order by updated",
		"I think you want: status in (Open, Done)",
		"",
		`summary ~ "project = X"`,
	}
	utterances := []string{
		"show open tasks",
		"tell me about PROJ-42 and also PROJ-43",
		"tasks assigned to alice",
		"list high priority work",
		"what is going on",
		"how many limit items",
	}
	ctx := context.Background()
	for _, answer := range answers {
		g := newTestGenerator(t, &oracletest.Fake{Answers: []string{answer, answer}})
		for _, u := range utterances {
			for _, in := range intent.Vocabulary {
				res := g.Generate(ctx, u, in, nil)
				if !jql.HasScope(res.Query) {
					t.Errorf("answer %q, %q/%s: unscoped query %q", answer, u, in, res.Query)
				}
				if jql.ContainsBareLimit(res.Query) {
					t.Errorf("answer %q, %q/%s: LIMIT in %q", answer, u, in, res.Query)
				}
			}
		}
	}
}

func TestNewGenerator_RequiresProject(t *testing.T) {
	if _, err := NewGenerator("  ", nil); err == nil {
		t.Error("expected error for empty project key")
	}
}

func TestSearchOptionsFor(t *testing.T) {
	tests := []struct {
		in        intent.Intent
		verbosity session.Verbosity
		want      int
	}{
		{intent.TaskList, session.Medium, 20},
		{intent.TaskList, session.Detailed, 30},
		{intent.AssignedTasks, session.Concise, 20},
		{intent.Timeline, session.Medium, 50},
		{intent.Timeline, session.Detailed, 75},
		{intent.Workload, session.Medium, 100},
		{intent.Workload, session.Detailed, 100},
		{intent.ProjectStatus, session.Medium, 50},
		{intent.ProjectStatus, session.Detailed, 75},
	}
	for _, tt := range tests {
		if got := SearchOptionsFor(tt.in, tt.verbosity).MaxResults; got != tt.want {
			t.Errorf("%s/%s: expected %d, got %d", tt.in, tt.verbosity, tt.want, got)
		}
	}

	opts := SearchOptionsFor(intent.Timeline, session.Medium)
	if got := opts.FieldList(); got != "summary,status,assignee,priority,duedate,issuetype" {
		t.Errorf("unexpected timeline fields %q", got)
	}
	if got := SearchOptionsFor(intent.General, session.Medium).FieldList(); got != "summary,status,assignee,priority" {
		t.Errorf("unexpected default fields %q", got)
	}
}
