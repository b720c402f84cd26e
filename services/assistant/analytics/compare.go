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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/clients/jira"
	"github.com/AleutianAI/projectassist/services/assistant/entities"
)

var comparisonPattern = regexp.MustCompile(`(?i)\b(compare|comparison|vs\.?|versus|difference\s+between|differences\s+between|diff\s+between)\b`)

// ComparisonKeys returns the first two issue keys of a comparison request.
// ok is false unless the utterance asks for a comparison and names at
// least two distinct keys.
func ComparisonKeys(utterance string) (a, b string, ok bool) {
	if !comparisonPattern.MatchString(utterance) {
		return "", "", false
	}
	keys := entities.IssueKeys(utterance)
	if len(keys) < 2 {
		return "", "", false
	}
	return keys[0], keys[1], true
}

// Difference is a field whose values differ between the two issues.
type Difference struct {
	Field string
	Left  string
	Right string
	Note  string
}

// Similarity is a field both issues share.
type Similarity struct {
	Field string
	Value string
}

// Comparison is the structural diff of two issues.
type Comparison struct {
	LeftKey      string
	RightKey     string
	Differences  []Difference
	Similarities []Similarity
}

const noneValue = "None"

// CompareIssues diffs status, assignee, priority, type, due date, labels,
// components, comment count and the created/updated timestamps.
func CompareIssues(left, right *jira.Issue) *Comparison {
	c := &Comparison{LeftKey: left.Key, RightKey: right.Key}

	c.field("Status", orNone(left.StatusName()), orNone(right.StatusName()), "")
	c.field("Assignee", left.AssigneeName(), right.AssigneeName(), "")
	c.field("Priority", orNone(left.PriorityName()), orNone(right.PriorityName()), "")
	c.field("Type", orNone(left.TypeName()), orNone(right.TypeName()), "")

	ld, lok := left.Due(time.UTC)
	rd, rok := right.Due(time.UTC)
	dueNote := ""
	if lok && rok {
		dueNote = c.order(ld, rd, "is due")
	}
	c.field("Due date", orNone(left.Fields.DueDate), orNone(right.Fields.DueDate), dueNote)

	c.set("Labels", left.Fields.Labels, right.Fields.Labels)
	c.set("Components", left.ComponentNames(), right.ComponentNames())

	lc, rc := left.CommentCount(), right.CommentCount()
	commentNote := ""
	switch {
	case lc > rc:
		commentNote = fmt.Sprintf("%s has %d more comment%s", left.Key, lc-rc, plural(lc-rc))
	case rc > lc:
		commentNote = fmt.Sprintf("%s has %d more comment%s", right.Key, rc-lc, plural(rc-lc))
	}
	c.field("Comments", fmt.Sprint(lc), fmt.Sprint(rc), commentNote)

	c.timestamp("Created", left.Fields.Created, right.Fields.Created, "was created")
	c.timestamp("Updated", left.Fields.Updated, right.Fields.Updated, "was updated")
	return c
}

func (c *Comparison) field(name, l, r, note string) {
	if l == r {
		c.Similarities = append(c.Similarities, Similarity{Field: name, Value: l})
		return
	}
	c.Differences = append(c.Differences, Difference{Field: name, Left: l, Right: r, Note: note})
}

func (c *Comparison) set(name string, l, r []string) {
	onlyL := difference(l, r)
	onlyR := difference(r, l)
	if len(onlyL) == 0 && len(onlyR) == 0 {
		c.Similarities = append(c.Similarities, Similarity{Field: name, Value: orNone(strings.Join(l, ", "))})
		return
	}
	var notes []string
	if len(onlyL) > 0 {
		notes = append(notes, "only "+c.LeftKey+": "+strings.Join(onlyL, ", "))
	}
	if len(onlyR) > 0 {
		notes = append(notes, "only "+c.RightKey+": "+strings.Join(onlyR, ", "))
	}
	c.Differences = append(c.Differences, Difference{
		Field: name,
		Left:  orNone(strings.Join(l, ", ")),
		Right: orNone(strings.Join(r, ", ")),
		Note:  strings.Join(notes, "; "),
	})
}

func (c *Comparison) timestamp(name string, l, r jira.Time, verb string) {
	if l.IsZero() || r.IsZero() {
		c.field(name, formatTime(l), formatTime(r), "")
		return
	}
	c.field(name, formatTime(l), formatTime(r), c.order(l.Time, r.Time, verb))
}

// order says which issue comes first, e.g. "PROJ-1 is due earlier".
func (c *Comparison) order(l, r time.Time, verb string) string {
	switch {
	case l.Before(r):
		return fmt.Sprintf("%s %s earlier", c.LeftKey, verb)
	case r.Before(l):
		return fmt.Sprintf("%s %s earlier", c.RightKey, verb)
	}
	return ""
}

func formatTime(t jira.Time) string {
	if t.IsZero() {
		return noneValue
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, v := range b {
		in[v] = true
	}
	var out []string
	for _, v := range a {
		if !in[v] {
			out = append(out, v)
		}
	}
	return out
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return noneValue
	}
	return s
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
