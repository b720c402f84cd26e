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
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/clients/jira"
	"github.com/AleutianAI/projectassist/services/assistant/entities"
	"github.com/AleutianAI/projectassist/services/assistant/jql"
)

// Timeline bucket labels.
const (
	BucketOverdue        = "Overdue"
	BucketThisWeek       = "This Week"
	BucketNextWeek       = "Next Week"
	BucketLaterThisMonth = "Later This Month"
	BucketNoDueDate      = "No Due Date"
)

// monthLabelLayout formats the bucket for due dates past the current month.
const monthLabelLayout = "January 2006"

// TimelineParams are the filters a timeline question carries.
type TimelineParams struct {
	Kind      entities.Timeframe
	Assignee  string
	IssueType string
	Priority  string
}

// ParseTimeline extracts timeline filters from an utterance. Timeframes
// without a due-date meaning fall back to Upcoming.
func ParseTimeline(utterance string) TimelineParams {
	kind := entities.TimeframeOf(utterance)
	switch kind {
	case entities.Recent, entities.NoTime, "":
		kind = entities.Upcoming
	}
	return TimelineParams{
		Kind:      kind,
		Assignee:  entities.Assignee(utterance),
		IssueType: entities.IssueType(utterance),
		Priority:  entities.Priority(utterance),
	}
}

// TimelineQuery builds the search for a timeline question.
func TimelineQuery(projectKey string, p TimelineParams) string {
	clauses := []string{jql.ProjectClause(projectKey)}
	switch p.Kind {
	case entities.ThisWeek:
		clauses = append(clauses, "duedate >= startOfWeek()", "duedate <= endOfWeek()")
	case entities.NextWeek:
		clauses = append(clauses, "duedate >= startOfWeek(1w)", "duedate <= endOfWeek(1w)")
	case entities.ThisMonth:
		clauses = append(clauses, "duedate >= startOfMonth()", "duedate <= endOfMonth()")
	case entities.NextMonth:
		clauses = append(clauses, "duedate >= startOfMonth(1M)", "duedate <= endOfMonth(1M)")
	case entities.Overdue:
		clauses = append(clauses, "duedate < startOfDay()", `statusCategory != "Done"`)
	case entities.NoDate:
		clauses = append(clauses, "duedate is EMPTY", `statusCategory != "Done"`)
	default:
		clauses = append(clauses, "duedate >= startOfDay()", `statusCategory != "Done"`)
	}
	if p.Assignee == entities.CurrentUser {
		clauses = append(clauses, "assignee = currentUser()")
	} else if p.Assignee != "" {
		clauses = append(clauses, "assignee = "+jql.Quote(p.Assignee))
	}
	if p.IssueType != "" {
		clauses = append(clauses, "issuetype = "+jql.Quote(p.IssueType))
	}
	if p.Priority != "" {
		clauses = append(clauses, "priority = "+jql.Quote(p.Priority))
	}
	order := "duedate ASC"
	if p.Kind == entities.NoDate {
		order = "priority DESC"
	}
	return strings.Join(clauses, " AND ") + " ORDER BY " + order
}

// Bucket is one labelled group of issues, sorted by due date.
type Bucket struct {
	Label  string
	Issues []jira.Issue
}

// Timeline is a bucketed set of issues.
type Timeline struct {
	Kind    entities.Timeframe
	Buckets []Bucket
	Total   int
	Overdue int
}

// Bucket returns the bucket with label, or nil.
func (t *Timeline) Bucket(label string) *Bucket {
	for i := range t.Buckets {
		if t.Buckets[i].Label == label {
			return &t.Buckets[i]
		}
	}
	return nil
}

// BucketTimeline groups issues into human time buckets.
//
// Description:
//
//	Weeks run Monday to Sunday in now's location. For this-week and
//	next-week questions each issue is bucketed by weekday name. Otherwise
//	the first matching rule wins: due by the end of this week is This Week,
//	by the end of next week Next Week, by the end of the month Later This
//	Month, and anything later a month label such as "November 2026".
//	Open issues already past due go to Overdue, except on an overdue
//	question, where every issue is overdue and is bucketed by due month.
//	Issues without a due date go to No Due Date, last.
//
//	Within a bucket issues are ascending by due date; equal or missing
//	dates keep retrieval order.
func BucketTimeline(issues []jira.Issue, kind entities.Timeframe, now time.Time) *Timeline {
	loc := now.Location()
	today := startOfDay(now)
	weekStart := startOfWeek(today)
	endThisWeek := weekStart.AddDate(0, 0, 7)
	endNextWeek := weekStart.AddDate(0, 0, 14)
	endOfMonth := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, loc)

	sorted := append([]jira.Issue(nil), issues...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, okI := sorted[i].Due(loc)
		dj, okJ := sorted[j].Due(loc)
		if okI != okJ {
			return okI
		}
		return okI && di.Before(dj)
	})

	label := func(issue *jira.Issue) string {
		due, ok := issue.Due(loc)
		if !ok {
			return BucketNoDueDate
		}
		if kind == entities.Overdue {
			return due.Format(monthLabelLayout)
		}
		if due.Before(today) && !issue.IsDone() {
			return BucketOverdue
		}
		if kind == entities.ThisWeek || kind == entities.NextWeek {
			return due.Weekday().String()
		}
		switch {
		case due.Before(endThisWeek):
			return BucketThisWeek
		case due.Before(endNextWeek):
			return BucketNextWeek
		case due.Before(endOfMonth):
			return BucketLaterThisMonth
		default:
			return due.Format(monthLabelLayout)
		}
	}

	t := &Timeline{Kind: kind, Total: len(issues)}
	index := make(map[string]int)
	var overdue, undated []jira.Issue
	for _, issue := range sorted {
		l := label(&issue)
		switch l {
		case BucketOverdue:
			overdue = append(overdue, issue)
			continue
		case BucketNoDueDate:
			undated = append(undated, issue)
			continue
		}
		i, ok := index[l]
		if !ok {
			i = len(t.Buckets)
			index[l] = i
			t.Buckets = append(t.Buckets, Bucket{Label: l})
		}
		t.Buckets[i].Issues = append(t.Buckets[i].Issues, issue)
	}

	if len(overdue) > 0 {
		t.Buckets = append([]Bucket{{Label: BucketOverdue, Issues: overdue}}, t.Buckets...)
	}
	if len(undated) > 0 {
		t.Buckets = append(t.Buckets, Bucket{Label: BucketNoDueDate, Issues: undated})
	}
	t.Overdue = len(overdue)
	if kind == entities.Overdue {
		t.Overdue = len(issues) - len(undated)
	}
	return t
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday of day's week.
func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
