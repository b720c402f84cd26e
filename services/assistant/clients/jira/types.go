// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package jira

import (
	"strings"
	"time"
)

// TimeLayout is the timestamp format of created/updated fields.
const TimeLayout = "2006-01-02T15:04:05.000-0700"

// DateLayout is the format of the duedate field.
const DateLayout = "2006-01-02"

// Time decodes Jira timestamps. The zero value means absent.
type Time struct {
	time.Time
}

// UnmarshalJSON accepts TimeLayout, RFC 3339 and null.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	// Unparseable timestamps are treated as absent rather than failing the page.
	t.Time = time.Time{}
	return nil
}

// MarshalJSON writes TimeLayout, or null for the zero value.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(TimeLayout) + `"`), nil
}

// Named is any {name} object: priority, issue type, component.
type Named struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// StatusCategory groups workflow statuses; Key is "new", "indeterminate" or "done".
type StatusCategory struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Status is a workflow status.
type Status struct {
	Name           string         `json:"name"`
	StatusCategory StatusCategory `json:"statusCategory"`
}

// User is an assignee, reporter or comment author.
type User struct {
	AccountID    string `json:"accountId,omitempty"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// Comment is one issue comment.
type Comment struct {
	ID      string `json:"id"`
	Author  *User  `json:"author"`
	Body    string `json:"body"`
	Created Time   `json:"created"`
	Updated Time   `json:"updated"`
}

// CommentPage is the embedded comment field of an issue.
type CommentPage struct {
	Comments []Comment `json:"comments"`
	Total    int       `json:"total"`
}

// LinkedIssue is the short form of an issue on the other end of a link.
type LinkedIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string  `json:"summary"`
		Status  *Status `json:"status"`
	} `json:"fields"`
}

// IssueLinkType names both directions of a link.
type IssueLinkType struct {
	Name    string `json:"name"`
	Inward  string `json:"inward"`
	Outward string `json:"outward"`
}

// IssueLink is one link; exactly one of InwardIssue and OutwardIssue is set.
type IssueLink struct {
	Type         IssueLinkType `json:"type"`
	InwardIssue  *LinkedIssue  `json:"inwardIssue,omitempty"`
	OutwardIssue *LinkedIssue  `json:"outwardIssue,omitempty"`
}

// Fields are the issue fields this service requests. Fields not requested
// decode as zero values.
type Fields struct {
	Summary     string       `json:"summary"`
	Description string       `json:"description"`
	Status      *Status      `json:"status"`
	Assignee    *User        `json:"assignee"`
	Reporter    *User        `json:"reporter"`
	Priority    *Named       `json:"priority"`
	IssueType   *Named       `json:"issuetype"`
	DueDate     string       `json:"duedate"`
	Created     Time         `json:"created"`
	Updated     Time         `json:"updated"`
	Labels      []string     `json:"labels"`
	Components  []Named      `json:"components"`
	Comment     *CommentPage `json:"comment"`
	IssueLinks  []IssueLink  `json:"issuelinks"`
}

// Issue is one issue as returned by search and get.
type Issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Self   string `json:"self,omitempty"`
	Fields Fields `json:"fields"`
}

// SearchResult is one page of search results.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// =============================================================================
// Accessors
// =============================================================================

// UnassignedName is the display name used for issues without an assignee.
const UnassignedName = "Unassigned"

// StatusName is the status name, or "".
func (i *Issue) StatusName() string {
	if i.Fields.Status == nil {
		return ""
	}
	return i.Fields.Status.Name
}

// AssigneeName is the assignee display name, or UnassignedName.
func (i *Issue) AssigneeName() string {
	if i.Fields.Assignee == nil || strings.TrimSpace(i.Fields.Assignee.DisplayName) == "" {
		return UnassignedName
	}
	return i.Fields.Assignee.DisplayName
}

// PriorityName is the priority name, or "".
func (i *Issue) PriorityName() string {
	if i.Fields.Priority == nil {
		return ""
	}
	return i.Fields.Priority.Name
}

// TypeName is the issue type name, or "".
func (i *Issue) TypeName() string {
	if i.Fields.IssueType == nil {
		return ""
	}
	return i.Fields.IssueType.Name
}

// Due parses the due date in loc. The bool is false when there is none.
func (i *Issue) Due(loc *time.Location) (time.Time, bool) {
	if i.Fields.DueDate == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, i.Fields.DueDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// IsDone reports whether the issue is in a terminal status.
func (i *Issue) IsDone() bool {
	if i.Fields.Status == nil {
		return false
	}
	if i.Fields.Status.StatusCategory.Key == "done" {
		return true
	}
	switch strings.ToLower(i.Fields.Status.Name) {
	case "done", "closed", "resolved", "complete", "completed":
		return true
	}
	return false
}

// IsHighPriority reports whether the priority is High or Highest.
func (i *Issue) IsHighPriority() bool {
	switch i.PriorityName() {
	case "High", "Highest":
		return true
	}
	return false
}

// CommentCount is the number of comments, preferring the reported total.
func (i *Issue) CommentCount() int {
	if i.Fields.Comment == nil {
		return 0
	}
	if i.Fields.Comment.Total > len(i.Fields.Comment.Comments) {
		return i.Fields.Comment.Total
	}
	return len(i.Fields.Comment.Comments)
}

// ComponentNames lists component names.
func (i *Issue) ComponentNames() []string {
	out := make([]string, 0, len(i.Fields.Components))
	for _, c := range i.Fields.Components {
		out = append(out, c.Name)
	}
	return out
}
