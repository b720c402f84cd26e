// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/analytics"
	"github.com/AleutianAI/projectassist/services/assistant/clients/bitbucket"
	"github.com/AleutianAI/projectassist/services/assistant/clients/jira"
	"github.com/AleutianAI/projectassist/services/assistant/session"
)

// conciseItems is how many list entries a concise answer shows.
const conciseItems = 5

// Formatter renders answers as markdown.
//
// Thread Safety: Formatter is immutable and safe for concurrent use.
type Formatter struct {
	// browse returns the web URL of an issue key. Nil renders bare keys.
	browse func(key string) string
	loc    *time.Location
}

func (f Formatter) issueRef(key string) string {
	if f.browse == nil {
		return "**" + key + "**"
	}
	return fmt.Sprintf("[%s](%s)", key, f.browse(key))
}

func (f Formatter) location() *time.Location {
	if f.loc == nil {
		return time.UTC
	}
	return f.loc
}

// shown caps n items for concise answers.
func shown(n int, v session.Verbosity) int {
	if v == session.Concise && n > conciseItems {
		return conciseItems
	}
	return n
}

// IssueList renders a search result.
func (f Formatter) IssueList(title string, issues []jira.Issue, total int, v session.Verbosity) string {
	if len(issues) == 0 {
		return "No matching issues found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", title)
	n := shown(len(issues), v)
	for i := range n {
		f.issueLine(&b, &issues[i], v)
	}
	if total < len(issues) {
		total = len(issues)
	}
	if rest := total - n; rest > 0 {
		fmt.Fprintf(&b, "\n...and %d more.\n", rest)
	}
	return b.String()
}

func (f Formatter) issueLine(b *strings.Builder, issue *jira.Issue, v session.Verbosity) {
	fmt.Fprintf(b, "- %s %s", f.issueRef(issue.Key), issue.Fields.Summary)
	if v == session.Concise {
		b.WriteString("\n")
		return
	}
	parts := []string{orDash(issue.StatusName()), issue.AssigneeName()}
	if p := issue.PriorityName(); p != "" {
		parts = append(parts, p)
	}
	if v == session.Detailed {
		if due, ok := issue.Due(f.location()); ok {
			parts = append(parts, "due "+due.Format(jira.DateLayout))
		}
		if t := issue.TypeName(); t != "" {
			parts = append(parts, t)
		}
	}
	fmt.Fprintf(b, " (%s)\n", strings.Join(parts, ", "))
}

// IssueDetails renders one issue.
func (f Formatter) IssueDetails(issue *jira.Issue, v session.Verbosity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s: %s\n\n", f.issueRef(issue.Key), issue.Fields.Summary)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", label, value)
		}
	}
	row("Status", issue.StatusName())
	row("Assignee", issue.AssigneeName())
	row("Priority", issue.PriorityName())
	row("Type", issue.TypeName())
	if due, ok := issue.Due(f.location()); ok {
		row("Due", due.Format(jira.DateLayout))
	}
	if v != session.Concise {
		if issue.Fields.Reporter != nil {
			row("Reporter", issue.Fields.Reporter.DisplayName)
		}
		row("Labels", strings.Join(issue.Fields.Labels, ", "))
		row("Components", strings.Join(issue.ComponentNames(), ", "))
		if n := issue.CommentCount(); n > 0 {
			row("Comments", fmt.Sprint(n))
		}
	}
	if d := strings.TrimSpace(issue.Fields.Description); d != "" && v != session.Concise {
		if v == session.Medium {
			d = truncateText(d, 400)
		}
		fmt.Fprintf(&b, "\n%s\n", d)
	}
	return b.String()
}

// Comments renders an issue's comments, newest last.
func (f Formatter) Comments(issue *jira.Issue, v session.Verbosity) string {
	if issue.Fields.Comment == nil || len(issue.Fields.Comment.Comments) == 0 {
		return fmt.Sprintf("%s has no comments.", f.issueRef(issue.Key))
	}
	comments := issue.Fields.Comment.Comments
	var b strings.Builder
	fmt.Fprintf(&b, "### Comments on %s\n\n", f.issueRef(issue.Key))
	start := len(comments) - shown(len(comments), v)
	for _, c := range comments[start:] {
		author := "Someone"
		if c.Author != nil && c.Author.DisplayName != "" {
			author = c.Author.DisplayName
		}
		when := ""
		if !c.Created.IsZero() {
			when = " on " + c.Created.In(f.location()).Format(jira.DateLayout)
		}
		body := strings.TrimSpace(c.Body)
		if v != session.Detailed {
			body = truncateText(body, 300)
		}
		fmt.Fprintf(&b, "- **%s**%s: %s\n", author, when, body)
	}
	return b.String()
}

// Timeline renders a bucketed timeline.
func (f Formatter) Timeline(r *analytics.TimelineReport, v session.Verbosity) string {
	if r.Total == 0 {
		return "No issues match that timeframe."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### Timeline (%d issues", r.Total)
	if r.Overdue > 0 {
		fmt.Fprintf(&b, ", %d overdue", r.Overdue)
	}
	b.WriteString(")\n")
	for _, bucket := range r.Buckets {
		fmt.Fprintf(&b, "\n**%s** (%d)\n", bucket.Label, len(bucket.Issues))
		n := shown(len(bucket.Issues), v)
		for i := range n {
			f.issueLine(&b, &bucket.Issues[i], v)
		}
		if rest := len(bucket.Issues) - n; rest > 0 {
			fmt.Fprintf(&b, "- ...and %d more\n", rest)
		}
	}
	if r.Matched > r.Total {
		fmt.Fprintf(&b, "\nShowing %d of %d matching issues.\n", r.Total, r.Matched)
	}
	return b.String()
}

// Workload renders a workload analysis.
func (f Formatter) Workload(r *analytics.WorkloadReport, v session.Verbosity) string {
	if r.Total == 0 {
		return "There is no open work to distribute."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### Workload: %s\n\n", r.Distribution)
	fmt.Fprintf(&b, "%d open issues across %d people (average %.1f each, gap %d).\n\n",
		r.Total, len(r.Assignees), r.Mean, r.Gap)
	for _, a := range r.Assignees {
		flag := ""
		switch {
		case a.Overloaded:
			flag = " - overloaded"
		case a.Underloaded:
			flag = " - underloaded"
		}
		fmt.Fprintf(&b, "- **%s**: %d tasks", a.Name, a.Tasks)
		if v != session.Concise {
			fmt.Fprintf(&b, " (%d high priority, %d due soon, %d overdue)", a.HighPriority, a.DueSoon, a.Overdue)
		}
		b.WriteString(flag + "\n")
	}
	if r.Unassigned.Tasks > 0 {
		fmt.Fprintf(&b, "- **%s**: %d tasks\n", jira.UnassignedName, r.Unassigned.Tasks)
	}
	if len(r.Overloaded) > 0 {
		fmt.Fprintf(&b, "\nConsider moving work away from %s.\n", strings.Join(r.Overloaded, ", "))
	}
	return b.String()
}

// Comparison renders an issue comparison.
func (f Formatter) Comparison(c *analytics.Comparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s vs %s\n", f.issueRef(c.LeftKey), f.issueRef(c.RightKey))
	if len(c.Differences) > 0 {
		b.WriteString("\n**Differences**\n")
		for _, d := range c.Differences {
			fmt.Fprintf(&b, "- %s: %s vs %s", d.Field, d.Left, d.Right)
			if d.Note != "" {
				fmt.Fprintf(&b, " (%s)", d.Note)
			}
			b.WriteString("\n")
		}
	}
	if len(c.Similarities) > 0 {
		b.WriteString("\n**Shared**\n")
		for _, s := range c.Similarities {
			fmt.Fprintf(&b, "- %s: %s\n", s.Field, s.Value)
		}
	}
	return b.String()
}

// IssueTypes renders an issue-type breakdown.
func (f Formatter) IssueTypes(r *analytics.IssueTypesReport) string {
	if r.Total == 0 {
		return "The project has no issues yet."
	}
	var b strings.Builder
	if r.Asked != "" {
		if r.AskedFound {
			fmt.Fprintf(&b, "There are **%d** %s issues (%d%% of %d), %d still open.\n\n",
				r.AskedCount.Total, r.Asked, r.AskedCount.Percent, r.Total, r.AskedCount.Open)
		} else {
			fmt.Fprintf(&b, "There are no %s issues in this project. The types that do exist are:\n\n", r.Asked)
		}
	} else {
		fmt.Fprintf(&b, "### Issue types (%d issues)\n\n", r.Total)
	}
	if r.Asked == "" || !r.AskedFound {
		for _, t := range r.Types {
			fmt.Fprintf(&b, "- **%s**: %d (%d%%, %d open)\n", t.Name, t.Total, t.Percent, t.Open)
		}
	}
	if r.Sampled {
		b.WriteString("\nCounts are based on a sample of the project's issues.\n")
	}
	return b.String()
}

// Status renders the project status report.
func (f Formatter) Status(r *analytics.StatusReport, v session.Verbosity) string {
	c := r.Counts
	var b strings.Builder
	fmt.Fprintf(&b, "### %s status\n\n", r.ProjectKey)
	fmt.Fprintf(&b, "- **Total:** %d\n- **Open:** %d\n- **In progress:** %d\n- **Done:** %d (%.0f%% complete)\n",
		c.Total, c.Open, c.InProgress, c.Done, r.CompletionRate)
	if v != session.Concise {
		fmt.Fprintf(&b, "- **High priority open:** %d\n- **Overdue:** %d\n- **Unassigned open:** %d\n",
			c.HighPriority, c.Overdue, c.Unassigned)
	}
	return b.String()
}

// =============================================================================
// Code host
// =============================================================================

// Repos renders a repository listing.
func (f Formatter) Repos(workspace string, repos []bitbucket.Repository, v session.Verbosity) string {
	if len(repos) == 0 {
		return fmt.Sprintf("No repositories found in %s.", workspace)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### Repositories in %s\n\n", workspace)
	for _, r := range repos[:shown(len(repos), v)] {
		fmt.Fprintf(&b, "- **%s**", r.Slug)
		if r.Description != "" && v != session.Concise {
			b.WriteString(": " + truncateText(r.Description, 120))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Repo renders repository details.
func (f Formatter) Repo(r *bitbucket.Repository) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", orDash(r.FullName))
	if r.Description != "" {
		b.WriteString(r.Description + "\n\n")
	}
	if r.Language != "" {
		fmt.Fprintf(&b, "- **Language:** %s\n", r.Language)
	}
	if r.MainBranch != nil {
		fmt.Fprintf(&b, "- **Main branch:** %s\n", r.MainBranch.Name)
	}
	visibility := "public"
	if r.IsPrivate {
		visibility = "private"
	}
	fmt.Fprintf(&b, "- **Visibility:** %s\n", visibility)
	if !r.UpdatedOn.IsZero() {
		fmt.Fprintf(&b, "- **Last updated:** %s\n", r.UpdatedOn.In(f.location()).Format(jira.DateLayout))
	}
	if r.Links.HTML.Href != "" {
		fmt.Fprintf(&b, "- %s\n", r.Links.HTML.Href)
	}
	return b.String()
}

// Commits renders a commit list.
func (f Formatter) Commits(title string, commits []bitbucket.Commit, v session.Verbosity) string {
	if len(commits) == 0 {
		return "No commits found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", title)
	for _, c := range commits[:shown(len(commits), v)] {
		fmt.Fprintf(&b, "- `%s` %s", c.ShortHash(), c.Summary())
		if v != session.Concise {
			fmt.Fprintf(&b, " (%s, %s)", orDash(c.Author.Name()), c.Date.In(f.location()).Format(jira.DateLayout))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// DiffStat renders the files a commit touched with their line counts.
func (f Formatter) DiffStat(repo string, st *bitbucket.DiffStat, v session.Verbosity) string {
	short := st.Hash
	if len(short) > 7 {
		short = short[:7]
	}
	if len(st.Files) == 0 {
		return fmt.Sprintf("Commit `%s` in %s changes no files.", short, repo)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### Changes in `%s` (%s)\n\n", short, repo)
	fmt.Fprintf(&b, "%d file%s changed, +%d -%d\n\n", len(st.Files), plural(len(st.Files)), st.Added, st.Deleted)
	n := shown(len(st.Files), v)
	for _, fc := range st.Files[:n] {
		switch {
		case fc.Binary:
			fmt.Fprintf(&b, "- `%s` (binary, %s)\n", fc.Path, fc.Kind)
		case fc.Kind == bitbucket.FileRenamed:
			fmt.Fprintf(&b, "- `%s` -> `%s` +%d -%d\n", fc.OldPath, fc.Path, fc.Added, fc.Deleted)
		case fc.Kind == bitbucket.FileModified || v == session.Concise:
			fmt.Fprintf(&b, "- `%s` +%d -%d\n", fc.Path, fc.Added, fc.Deleted)
		default:
			fmt.Fprintf(&b, "- `%s` +%d -%d (%s)\n", fc.Path, fc.Added, fc.Deleted, fc.Kind)
		}
	}
	if rest := len(st.Files) - n; rest > 0 {
		fmt.Fprintf(&b, "\n...and %d more.\n", rest)
	}
	return b.String()
}

// Branches renders a branch list.
func (f Formatter) Branches(repo string, branches []bitbucket.Branch, v session.Verbosity) string {
	if len(branches) == 0 {
		return fmt.Sprintf("No branches found in %s.", repo)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### Branches in %s\n\n", repo)
	for _, br := range branches[:shown(len(branches), v)] {
		fmt.Fprintf(&b, "- **%s**", br.Name)
		if v != session.Concise && br.Target.Hash != "" {
			fmt.Fprintf(&b, " at `%s` %s", br.Target.ShortHash(), br.Target.Summary())
		}
		b.WriteString("\n")
	}
	return b.String()
}

// PullRequests renders a pull request list.
func (f Formatter) PullRequests(repo, state string, prs []bitbucket.PullRequest, v session.Verbosity) string {
	state = strings.ToLower(state)
	if len(prs) == 0 {
		return fmt.Sprintf("No %s pull requests in %s.", state, repo)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### %s pull requests in %s\n\n", titleWord(state), repo)
	for _, pr := range prs[:shown(len(prs), v)] {
		fmt.Fprintf(&b, "- #%d %s", pr.ID, pr.Title)
		if v != session.Concise {
			fmt.Fprintf(&b, " (%s, %s -> %s)", orDash(pr.AuthorName()),
				pr.Source.Branch.Name, pr.Destination.Branch.Name)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// truncateText cuts s to n runes at a word boundary.
func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndexAny(cut, " \n\t"); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}
