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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/oracle"
	"github.com/AleutianAI/projectassist/services/assistant/oracle/oracletest"
	"github.com/AleutianAI/projectassist/services/assistant/session"
)

var errOracleDown = errors.New("oracle down")

func newTestClassifier(t *testing.T, o oracle.Oracle, opts ...Option) *Classifier {
	t.Helper()
	rules, err := DefaultRules(context.Background())
	if err != nil {
		t.Fatalf("loading default rules: %v", err)
	}
	c, err := NewClassifier(rules, o, opts...)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

// =============================================================================
// Deterministic tiers
// =============================================================================

func TestClassify_DeterministicTiers(t *testing.T) {
	fake := oracletest.Failing(errOracleDown)
	c := newTestClassifier(t, fake)

	tests := []struct {
		utterance string
		intent    Intent
		tier      Tier
	}{
		{"What's in the current sprint?", Sprint, TierGate},
		{"Hello!", Greeting, TierGate},
		{"good morning team", Greeting, TierGate},
		{"How many bugs are there?", IssueTypes, TierGate},
		{"show me the issue types", IssueTypes, TierGate},
		{"tell me about PROJ-42", TaskDetails, TierGate},
		{"show project status", ProjectStatus, TierHigh},
		{"how is the project doing", ProjectStatus, TierHigh},
		{"which tasks are due this week", Timeline, TierHigh},
		{"what is blocking the release schedule", Blockers, TierHigh},
		{"who is overloaded", Workload, TierHigh},
		{"show my tasks", AssignedTasks, TierHigh},
		{"what is alice working on", AssignedTasks, TierHigh},
		{"show open tasks", TaskList, TierHigh},
		{"tell me about PROJ-42 and also PROJ-43", TaskDetails, TierHigh},
		{"show comments on PROJ-7", Comments, TierHigh},
		{"anything stuck?", Blockers, TierMedium},
		{"is the backlog growing", TaskList, TierMedium},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			res := c.Classify(context.Background(), tt.utterance, nil)
			if res.Intent != tt.intent {
				t.Errorf("expected %s, got %s (tier %s)", tt.intent, res.Intent, res.Tier)
			}
			if res.Tier != tt.tier {
				t.Errorf("expected tier %s, got %s", tt.tier, res.Tier)
			}
			if res.UsedOracle {
				t.Error("expected no oracle use")
			}
		})
	}

	if fake.CallCount() != 0 {
		t.Errorf("expected no oracle calls for deterministic tiers, got %d", fake.CallCount())
	}
}

func TestClassify_GreetingWithQuestionIsNotGated(t *testing.T) {
	c := newTestClassifier(t, oracletest.Failing(errOracleDown))

	tests := []struct {
		utterance string
		intent    Intent
	}{
		{"hi, any blockers?", Blockers},
		{"hello team, show project status", ProjectStatus},
	}
	for _, tt := range tests {
		res := c.Classify(context.Background(), tt.utterance, nil)
		if res.Intent != tt.intent {
			t.Errorf("%q: expected %s, got %s (tier %s)", tt.utterance, tt.intent, res.Intent, res.Tier)
		}
		if res.Intent == Greeting || res.Tier == TierGate {
			t.Errorf("%q: expected the question to be classified, got %s at tier %s", tt.utterance, res.Intent, res.Tier)
		}
	}
}

func TestClassify_LowerCaseTokensAreNotIssueKeys(t *testing.T) {
	c := newTestClassifier(t, oracletest.Failing(errOracleDown), WithProjectKey("PROJ"))

	for _, u := range []string{
		"show the top-5 high priority bugs",
		"list issues with the utf-8 label",
		"what is planned for q3-2025",
	} {
		if res := c.Classify(context.Background(), u, nil); res.Intent == TaskDetails {
			t.Errorf("%q: expected no TASK_DETAILS, got it at tier %s", u, res.Tier)
		}
	}
}

func TestClassify_ProjectKeyInLowerCase(t *testing.T) {
	c := newTestClassifier(t, oracletest.Failing(errOracleDown), WithProjectKey("PROJ"))

	res := c.Classify(context.Background(), "tell me about proj-42", nil)
	if res.Intent != TaskDetails || res.Tier != TierGate {
		t.Errorf("expected TASK_DETAILS at gate tier, got %s at %s", res.Intent, res.Tier)
	}

	other := newTestClassifier(t, oracletest.Failing(errOracleDown))
	if res := other.Classify(context.Background(), "tell me about proj-42", nil); res.Intent == TaskDetails {
		t.Errorf("expected a lower-case key to need the project key, got %s at %s", res.Intent, res.Tier)
	}
}

func TestNormalize_KeepsIssueKeys(t *testing.T) {
	if got := Normalize("  Show   PROJ-4 and TOP-5  "); got != "show PROJ-4 and TOP-5" {
		t.Errorf("unexpected normalization %q", got)
	}
	if got := Normalize("Show top-5"); got != "show top-5" {
		t.Errorf("unexpected normalization %q", got)
	}
}

func TestClassify_HighBeatsMedium(t *testing.T) {
	c := newTestClassifier(t, oracletest.Answering("TIMELINE"))

	// "schedule" is a medium TIMELINE keyword; the high BLOCKERS phrasing wins.
	res := c.Classify(context.Background(), "what is blocking the release schedule", nil)
	if res.Intent != Blockers || res.Tier != TierHigh {
		t.Errorf("expected BLOCKERS at high tier, got %s at %s", res.Intent, res.Tier)
	}
}

// =============================================================================
// Medium tier tie-break
// =============================================================================

func TestClassify_TieBreakFallsBackToFirstCandidate(t *testing.T) {
	fake := oracletest.Failing(errOracleDown)
	c := newTestClassifier(t, fake)

	for i := 0; i < 20; i++ {
		res := c.Classify(context.Background(), "deadline risks and blockers", nil)
		if res.Intent != Timeline {
			t.Fatalf("run %d: expected TIMELINE, got %s", i, res.Intent)
		}
		if res.Tier != TierMedium || res.UsedOracle {
			t.Fatalf("run %d: expected medium tier without oracle, got %+v", i, res)
		}
		if len(res.Candidates) != 2 || res.Candidates[0] != Timeline || res.Candidates[1] != Blockers {
			t.Fatalf("run %d: unexpected candidates %v", i, res.Candidates)
		}
	}
}

func TestClassify_TieBreakUsesOracleAnswerInCandidates(t *testing.T) {
	fake := oracletest.Answering("Blockers.")
	c := newTestClassifier(t, fake)

	res := c.Classify(context.Background(), "deadline risks and blockers", nil)
	if res.Intent != Blockers || !res.UsedOracle {
		t.Errorf("expected oracle-chosen BLOCKERS, got %+v", res)
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 oracle call, got %d", len(calls))
	}
	if !strings.Contains(calls[0].SystemPrompt, "TIMELINE") || !strings.Contains(calls[0].SystemPrompt, "BLOCKERS") {
		t.Errorf("expected candidates in prompt, got %q", calls[0].SystemPrompt)
	}
	if strings.Contains(calls[0].SystemPrompt, "WORKLOAD") {
		t.Errorf("expected only candidates in prompt, got %q", calls[0].SystemPrompt)
	}
}

func TestClassify_TieBreakRejectsAnswerOutsideCandidates(t *testing.T) {
	c := newTestClassifier(t, oracletest.Answering("SPRINT"))

	res := c.Classify(context.Background(), "deadline risks and blockers", nil)
	if res.Intent != Timeline || res.UsedOracle {
		t.Errorf("expected first candidate TIMELINE, got %+v", res)
	}
}

func TestClassify_TieBreakTimeout(t *testing.T) {
	fake := &oracletest.Fake{CompleteFunc: func(ctx context.Context, _, _ string, _ float64) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := newTestClassifier(t, fake, WithOracleTimeout(10*time.Millisecond))

	res := c.Classify(context.Background(), "deadline risks and blockers", nil)
	if res.Intent != Timeline {
		t.Errorf("expected TIMELINE after timeout, got %s", res.Intent)
	}
}

// =============================================================================
// Full oracle tier and fallbacks
// =============================================================================

func TestClassify_FullOracleTier(t *testing.T) {
	tests := []struct {
		answer string
		want   Intent
	}{
		{"CONVERSATION", Conversation},
		{"```\ngeneral\n```", General},
		{"The category is WORKLOAD", Workload},
		{"roadmap", Intent("ROADMAP")},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			fake := oracletest.Answering(tt.answer)
			c := newTestClassifier(t, fake)
			res := c.Classify(context.Background(), "hmm interesting", nil)
			if res.Intent != tt.want {
				t.Errorf("expected %s, got %s", tt.want, res.Intent)
			}
			if res.Tier != TierAI || !res.UsedOracle {
				t.Errorf("expected ai tier with oracle, got %+v", res)
			}
			if !strings.Contains(fake.Calls()[0].SystemPrompt, "GREETING") {
				t.Error("expected full vocabulary in prompt")
			}
		})
	}
}

func TestClassify_KeywordCascade(t *testing.T) {
	c := newTestClassifier(t, oracletest.Failing(errOracleDown))

	res := c.Classify(context.Background(), "when will we ship", nil)
	if res.Intent != Timeline || res.Tier != TierKeyword {
		t.Errorf("expected TIMELINE from keyword cascade, got %+v", res)
	}
}

func TestClassify_GeneralFloor(t *testing.T) {
	c := newTestClassifier(t, oracle.Disabled{})

	for _, u := range []string{"hmm interesting", "", "   "} {
		res := c.Classify(context.Background(), u, nil)
		if res.Intent != General {
			t.Errorf("expected GENERAL for %q, got %s", u, res.Intent)
		}
	}
}

func TestClassify_EmptyOracleAnswerDegrades(t *testing.T) {
	c := newTestClassifier(t, oracletest.Answering("   "))

	res := c.Classify(context.Background(), "hmm interesting", nil)
	if res.Intent != General || res.UsedOracle {
		t.Errorf("expected GENERAL without oracle, got %+v", res)
	}
}

func TestClassify_FollowUpInheritsIntent(t *testing.T) {
	c := newTestClassifier(t, oracle.Disabled{})
	dc := &session.DerivedContext{
		RecentQueries: []string{"who is overloaded"},
		RecentIntents: []string{"WORKLOAD"},
	}

	for _, u := range []string{"and for the mobile team?", "what of the mobile team", "then the mobile team"} {
		res := c.Classify(context.Background(), u, dc)
		if res.Intent != Workload || res.Tier != TierFollowUp {
			t.Errorf("%q: expected inherited WORKLOAD, got %+v", u, res)
		}
	}

	res := c.Classify(context.Background(), "hmm interesting", dc)
	if res.Intent != General {
		t.Errorf("expected GENERAL for non-continuation, got %s", res.Intent)
	}
}

func TestClassify_PromptCarriesSessionContext(t *testing.T) {
	fake := oracletest.Answering("TIMELINE")
	c := newTestClassifier(t, fake)
	dc := &session.DerivedContext{
		ConversationSummary: "2 queries so far.",
		RecentQueries:       []string{"show PROJ-9"},
		RecentIntents:       []string{"TASK_DETAILS"},
		LastIssueKey:        "PROJ-9",
	}

	c.Classify(context.Background(), "deadline risks and blockers", dc)
	user := fake.Calls()[0].UserPrompt
	if !strings.Contains(user, "PROJ-9") || !strings.Contains(user, "TASK_DETAILS") {
		t.Errorf("expected session context in prompt, got %q", user)
	}
}

func TestNewClassifier_NilRules(t *testing.T) {
	if _, err := NewClassifier(nil, nil); err == nil {
		t.Error("expected error for nil rules")
	}
}

func TestParseAnswer(t *testing.T) {
	tests := map[string]Intent{
		"TIMELINE":              Timeline,
		" task list ":           TaskList,
		"`BLOCKERS`":            Blockers,
		"Answer: ASSIGNED_TASKS": AssignedTasks,
		"":                      "",
	}
	for in, want := range tests {
		if got := parseAnswer(in); got != want {
			t.Errorf("parseAnswer(%q): expected %q, got %q", in, want, got)
		}
	}
}
