// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package jql holds the safe query template library and the best-effort
// repair pass applied to machine-generated issue-tracker queries.
package jql

import (
	"fmt"
	"strings"
)

// TemplateName identifies one entry of the safe template table.
type TemplateName string

const (
	ProjectStatus TemplateName = "PROJECT_STATUS"
	OpenTasks     TemplateName = "OPEN_TASKS"
	InProgress    TemplateName = "IN_PROGRESS"
	Completed     TemplateName = "COMPLETED"
	HighPriority  TemplateName = "HIGH_PRIORITY"
	Blockers      TemplateName = "BLOCKERS"
	Overdue       TemplateName = "OVERDUE"
	DueThisWeek   TemplateName = "DUE_THIS_WEEK"
	Upcoming      TemplateName = "UPCOMING"
	Unassigned    TemplateName = "UNASSIGNED"
	RecentUpdates TemplateName = "RECENT_UPDATES"
	CurrentSprint TemplateName = "CURRENT_SPRINT"
	Bugs          TemplateName = "BUGS"
	Stories       TemplateName = "STORIES"
	Epics         TemplateName = "EPICS"
	IssueTypes    TemplateName = "ISSUE_TYPES"
	MyTasks       TemplateName = "MY_TASKS"
	OpenByOwner   TemplateName = "OPEN_BY_ASSIGNEE"
)

// CurrentUser is the assignee value that maps to the JQL currentUser() function.
const CurrentUser = "currentUser()"

const projectPlaceholder = "{project}"

// safeTemplates is the fixed template table. Every entry is already in the
// canonical form Sanitize produces, so sanitizing a template is a no-op.
var safeTemplates = map[TemplateName]string{
	ProjectStatus: `project = "{project}" ORDER BY updated DESC`,
	OpenTasks:     `project = "{project}" AND statusCategory != "Done" ORDER BY priority DESC, updated DESC`,
	InProgress:    `project = "{project}" AND status = "In Progress" ORDER BY updated DESC`,
	Completed:     `project = "{project}" AND statusCategory = "Done" ORDER BY resolved DESC`,
	HighPriority:  `project = "{project}" AND priority in ("Highest", "High") AND statusCategory != "Done" ORDER BY priority DESC, updated DESC`,
	Blockers:      `project = "{project}" AND (status = "Blocked" OR priority = "Blocker" OR labels = "blocked" OR issueLinkType = "is blocked by") AND statusCategory != "Done" ORDER BY priority DESC`,
	Overdue:       `project = "{project}" AND duedate < now() AND statusCategory != "Done" ORDER BY duedate ASC`,
	DueThisWeek:   `project = "{project}" AND duedate >= startOfWeek() AND duedate <= endOfWeek() ORDER BY duedate ASC`,
	Upcoming:      `project = "{project}" AND duedate >= startOfDay() AND duedate <= 30d AND statusCategory != "Done" ORDER BY duedate ASC`,
	Unassigned:    `project = "{project}" AND assignee is EMPTY AND statusCategory != "Done" ORDER BY created DESC`,
	RecentUpdates: `project = "{project}" AND updated >= -7d ORDER BY updated DESC`,
	CurrentSprint: `project = "{project}" AND sprint in openSprints() ORDER BY rank ASC`,
	Bugs:          `project = "{project}" AND issuetype = "Bug" ORDER BY priority DESC, created DESC`,
	Stories:       `project = "{project}" AND issuetype = "Story" ORDER BY created DESC`,
	Epics:         `project = "{project}" AND issuetype = "Epic" ORDER BY created DESC`,
	IssueTypes:    `project = "{project}" ORDER BY issuetype ASC`,
	MyTasks:       `project = "{project}" AND assignee = currentUser() AND statusCategory != "Done" ORDER BY priority DESC`,
	OpenByOwner:   `project = "{project}" AND statusCategory != "Done" ORDER BY assignee ASC`,
}

// literalPhrasings maps canonical utterances to their pre-baked template.
// Keys are lowercase with trailing punctuation removed.
var literalPhrasings = map[string]TemplateName{
	"show project status":      ProjectStatus,
	"project status":           ProjectStatus,
	"show open tasks":          OpenTasks,
	"show open issues":         OpenTasks,
	"show in progress tasks":   InProgress,
	"show tasks in progress":   InProgress,
	"show completed tasks":     Completed,
	"show done tasks":          Completed,
	"show high priority tasks": HighPriority,
	"show blockers":            Blockers,
	"show overdue tasks":       Overdue,
	"show tasks due this week": DueThisWeek,
	"show upcoming deadlines":  Upcoming,
	"show unassigned tasks":    Unassigned,
	"show recent updates":      RecentUpdates,
	"show current sprint":      CurrentSprint,
	"show bugs":                Bugs,
	"show my tasks":            MyTasks,
}

// Template renders a named template for a project.
//
// Description:
//
//	Looks up the template and substitutes the project key. Unknown names
//	render the PROJECT_STATUS template so callers always get a scoped query.
//
// Inputs:
//   - name: Template identifier.
//   - projectKey: Issue-tracker project key (e.g., "PROJ").
//
// Outputs:
//   - string: The rendered query.
//   - bool: False when the name was not in the table.
func Template(name TemplateName, projectKey string) (string, bool) {
	tmpl, ok := safeTemplates[name]
	if !ok {
		tmpl = safeTemplates[ProjectStatus]
	}
	return strings.ReplaceAll(tmpl, projectPlaceholder, escape(projectKey)), ok
}

// MustTemplate renders a template known to exist.
func MustTemplate(name TemplateName, projectKey string) string {
	q, _ := Template(name, projectKey)
	return q
}

// LiteralTemplate returns the template for an utterance that exactly matches
// one of the canonical phrasings.
func LiteralTemplate(utterance, projectKey string) (string, TemplateName, bool) {
	name, ok := literalPhrasings[normalizePhrase(utterance)]
	if !ok {
		return "", "", false
	}
	q, _ := Template(name, projectKey)
	return q, name, true
}

// KeyQuery scopes a query to a single issue.
func KeyQuery(issueKey string) string {
	return fmt.Sprintf(`key = "%s"`, escape(strings.ToUpper(issueKey)))
}

// AssigneeQuery lists open work for one assignee. The CurrentUser sentinel is
// emitted as the bare JQL function.
func AssigneeQuery(projectKey, assignee string) string {
	value := CurrentUser
	if assignee != CurrentUser {
		value = Quote(assignee)
	}
	return fmt.Sprintf(`%s AND assignee = %s AND statusCategory != "Done" ORDER BY priority DESC, updated DESC`,
		ProjectClause(projectKey), value)
}

// PriorityQuery lists open work at one priority level.
func PriorityQuery(projectKey, priority string) string {
	return fmt.Sprintf(`%s AND priority = %s AND statusCategory != "Done" ORDER BY updated DESC`,
		ProjectClause(projectKey), Quote(priority))
}

// StatusQuery lists work in one workflow status.
func StatusQuery(projectKey, status string) string {
	return fmt.Sprintf(`%s AND status = %s ORDER BY updated DESC`, ProjectClause(projectKey), Quote(status))
}

// ProjectClause is the canonical project-scope clause.
func ProjectClause(projectKey string) string {
	return fmt.Sprintf(`project = "%s"`, escape(projectKey))
}

// WithOrderBy appends an ORDER BY clause when the query has none.
func WithOrderBy(query, orderBy string) string {
	orderBy = strings.TrimSpace(orderBy)
	if orderBy == "" {
		return query
	}
	if orderByPattern.MatchString(maskQuoted(query)) {
		return query
	}
	return query + " ORDER BY " + orderBy
}

// SetOrderBy replaces the query's ORDER BY clause with orderBy.
func SetOrderBy(query, orderBy string) string {
	orderBy = strings.TrimSpace(orderBy)
	if orderBy == "" {
		return query
	}
	where, _ := splitOrderBy(query)
	return strings.TrimSpace(where) + " ORDER BY " + orderBy
}

// Quote wraps v in double quotes, escaping embedded quotes.
func Quote(v string) string {
	return `"` + escape(v) + `"`
}

func escape(v string) string {
	return strings.ReplaceAll(v, `"`, `\"`)
}

func normalizePhrase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, "?!. ")
	return strings.Join(strings.Fields(s), " ")
}
