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
	"slices"
	"strings"

	"github.com/AleutianAI/projectassist/services/assistant/intent"
	"github.com/AleutianAI/projectassist/services/assistant/session"
)

// Result caps per intent family. Detailed verbosity always gets the larger cap.
const (
	ListCap             = 20
	ListCapDetailed     = 30
	TimelineCap         = 50
	TimelineCapDetailed = 75
	WorkloadCap         = 100
	StatusCap           = 50
	StatusCapDetailed   = 75
)

// DefaultFields are requested for every search.
var DefaultFields = []string{"summary", "status", "assignee", "priority"}

// extraFields layers intent-specific fields on DefaultFields.
var extraFields = map[intent.Intent][]string{
	intent.TaskDetails:   {"description", "issuetype", "reporter", "created", "updated", "duedate", "labels", "components", "comment"},
	intent.Comments:      {"comment", "updated"},
	intent.Timeline:      {"duedate", "issuetype"},
	intent.Workload:      {"duedate", "issuetype"},
	intent.Blockers:      {"issuelinks", "labels", "duedate"},
	intent.IssueTypes:    {"issuetype"},
	intent.ProjectStatus: {"issuetype", "duedate", "updated"},
	intent.Sprint:        {"issuetype", "duedate"},
	intent.AssignedTasks: {"duedate", "updated"},
	intent.TaskList:      {"issuetype", "updated"},
}

// SearchOptions are the search parameters chosen for an intent.
type SearchOptions struct {
	MaxResults int
	Fields     []string
}

// FieldList is Fields joined with commas, as the search API expects.
func (o SearchOptions) FieldList() string {
	return strings.Join(o.Fields, ",")
}

// SearchOptionsFor returns the result cap and field list for an intent.
//
// Description:
//
//	List-type intents get 20 results (30 detailed), TIMELINE 50 (75),
//	PROJECT_STATUS 50 (75), WORKLOAD and ISSUE_TYPES a flat 100 since
//	their answers are aggregates.
func SearchOptionsFor(in intent.Intent, v session.Verbosity) SearchOptions {
	detailed := v == session.Detailed

	var limit int
	switch in {
	case intent.Timeline:
		limit = pick(detailed, TimelineCap, TimelineCapDetailed)
	case intent.Workload, intent.IssueTypes:
		limit = WorkloadCap
	case intent.ProjectStatus:
		limit = pick(detailed, StatusCap, StatusCapDetailed)
	default:
		limit = pick(detailed, ListCap, ListCapDetailed)
	}

	fields := append([]string(nil), DefaultFields...)
	for _, f := range extraFields[in] {
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	return SearchOptions{MaxResults: limit, Fields: fields}
}

func pick(detailed bool, normal, large int) int {
	if detailed {
		return large
	}
	return normal
}
