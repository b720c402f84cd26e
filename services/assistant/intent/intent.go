// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies issue-tracker utterances into a closed intent
// vocabulary.
//
// Classification escalates through tiers and stops at the first tier that
// yields exactly one intent: direct gates, high-confidence patterns,
// medium-confidence patterns with an oracle tie-break, full oracle
// classification, and a keyword cascade. GENERAL is the floor.
package intent

import "strings"

// Intent is one label from the issue-tracker vocabulary. Domain-prefixed
// intents (BITBUCKET_*, CONFLUENCE_*) are produced by the domain router and
// stored in session memory as plain strings.
type Intent string

const (
	ProjectStatus Intent = "PROJECT_STATUS"
	TaskList      Intent = "TASK_LIST"
	AssignedTasks Intent = "ASSIGNED_TASKS"
	TaskDetails   Intent = "TASK_DETAILS"
	Blockers      Intent = "BLOCKERS"
	Timeline      Intent = "TIMELINE"
	Comments      Intent = "COMMENTS"
	Workload      Intent = "WORKLOAD"
	Sprint        Intent = "SPRINT"
	IssueTypes    Intent = "ISSUE_TYPES"
	General       Intent = "GENERAL"
	Conversation  Intent = "CONVERSATION"
	Greeting      Intent = "GREETING"

	// Error is used only for session bookkeeping when a request fails.
	Error Intent = "ERROR"
)

// Vocabulary is the full taxonomy offered to the oracle, in prompt order.
var Vocabulary = []Intent{
	ProjectStatus, TaskList, AssignedTasks, TaskDetails, Blockers, Timeline,
	Comments, Workload, Sprint, IssueTypes, General, Conversation, Greeting,
}

var descriptions = map[Intent]string{
	ProjectStatus: "overall project health, progress and summary counts",
	TaskList:      "lists of issues filtered by status, priority or type",
	AssignedTasks: "work assigned to a specific person, including the user",
	TaskDetails:   "details about one specific issue",
	Blockers:      "blocked work, impediments and risks",
	Timeline:      "due dates, deadlines, overdue and upcoming work",
	Comments:      "comments and discussion on issues",
	Workload:      "how work is distributed across people",
	Sprint:        "the current sprint or iteration",
	IssueTypes:    "counts and breakdowns by issue type",
	General:       "a project question that fits no other category",
	Conversation:  "small talk, thanks or questions about the assistant",
	Greeting:      "a greeting",
}

// Description returns a short human description of i.
func (i Intent) Description() string {
	if d, ok := descriptions[i]; ok {
		return d
	}
	return strings.ToLower(strings.ReplaceAll(string(i), "_", " "))
}

// Known reports whether i is in Vocabulary.
func (i Intent) Known() bool {
	_, ok := descriptions[i]
	return ok
}

// Tier names the classification stage that produced a result.
type Tier string

const (
	TierGate     Tier = "gate"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierAI       Tier = "ai"
	TierKeyword  Tier = "keyword"
	TierDefault  Tier = "default"
	TierFollowUp Tier = "follow_up"
)

// Result is the outcome of one classification.
type Result struct {
	Intent Intent
	Tier   Tier

	// Candidates holds the medium-tier candidate set, in rule order, when
	// the medium tier ran and matched more than one category.
	Candidates []Intent

	// UsedOracle is true when an oracle answer decided the intent.
	UsedOracle bool
}
