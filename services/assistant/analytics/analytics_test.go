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
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/projectassist/services/assistant/clients/jira"
	"github.com/AleutianAI/projectassist/services/assistant/entities"
	"github.com/AleutianAI/projectassist/services/assistant/session"
)

// now is Thursday 2026-10-15, so this week runs Mon 12th to Sun 18th.
var now = time.Date(2026, time.October, 15, 10, 30, 0, 0, time.UTC)

type issueOpt func(*jira.Issue)

func assignee(name string) issueOpt {
	return func(i *jira.Issue) { i.Fields.Assignee = &jira.User{DisplayName: name} }
}

func due(daysFromNow int) issueOpt {
	return func(i *jira.Issue) {
		i.Fields.DueDate = now.AddDate(0, 0, daysFromNow).Format(jira.DateLayout)
	}
}

func priority(name string) issueOpt {
	return func(i *jira.Issue) { i.Fields.Priority = &jira.Named{Name: name} }
}

func status(name, category string) issueOpt {
	return func(i *jira.Issue) {
		i.Fields.Status = &jira.Status{Name: name, StatusCategory: jira.StatusCategory{Key: category}}
	}
}

func issueType(name string) issueOpt {
	return func(i *jira.Issue) { i.Fields.IssueType = &jira.Named{Name: name} }
}

func issue(key string, opts ...issueOpt) jira.Issue {
	i := jira.Issue{Key: key}
	for _, opt := range opts {
		opt(&i)
	}
	return i
}

func keys(b *Bucket) []string {
	out := make([]string, 0, len(b.Issues))
	for _, i := range b.Issues {
		out = append(out, i.Key)
	}
	return out
}

// =============================================================================
// Timeline
// =============================================================================

func TestBucketTimeline_Upcoming(t *testing.T) {
	issues := []jira.Issue{
		issue("P-40", due(40)),
		issue("P-2", due(2)),
		issue("P-5", due(5)),
	}
	tl := BucketTimeline(issues, entities.Upcoming, now)

	require.Len(t, tl.Buckets, 3)
	assert.Equal(t, BucketThisWeek, tl.Buckets[0].Label)
	assert.Equal(t, []string{"P-2"}, keys(&tl.Buckets[0]))
	assert.Equal(t, BucketNextWeek, tl.Buckets[1].Label)
	assert.Equal(t, []string{"P-5"}, keys(&tl.Buckets[1]))
	assert.Equal(t, "November 2026", tl.Buckets[2].Label)
	assert.Equal(t, []string{"P-40"}, keys(&tl.Buckets[2]))
	assert.Equal(t, 3, tl.Total)
	assert.Equal(t, 0, tl.Overdue)
}

func TestBucketTimeline_LaterThisMonthOverdueAndUndated(t *testing.T) {
	issues := []jira.Issue{
		issue("P-none"),
		issue("P-12", due(12)),
		issue("P-late", due(-3)),
		issue("P-done", due(-3), status("Done", "done")),
		issue("P-today", due(0)),
	}
	tl := BucketTimeline(issues, entities.Upcoming, now)

	labels := make([]string, 0, len(tl.Buckets))
	for _, b := range tl.Buckets {
		labels = append(labels, b.Label)
	}
	assert.Equal(t, []string{BucketOverdue, BucketThisWeek, BucketLaterThisMonth, BucketNoDueDate}, labels)
	assert.Equal(t, []string{"P-late"}, keys(tl.Bucket(BucketOverdue)))
	assert.Equal(t, []string{"P-done", "P-today"}, keys(tl.Bucket(BucketThisWeek)))
	assert.Equal(t, []string{"P-12"}, keys(tl.Bucket(BucketLaterThisMonth)))
	assert.Equal(t, []string{"P-none"}, keys(tl.Bucket(BucketNoDueDate)))
	assert.Equal(t, 1, tl.Overdue)
}

func TestBucketTimeline_ThisWeekUsesDayNames(t *testing.T) {
	issues := []jira.Issue{issue("P-sat", due(2)), issue("P-fri", due(1)), issue("P-fri2", due(1))}
	tl := BucketTimeline(issues, entities.ThisWeek, now)

	require.Len(t, tl.Buckets, 2)
	assert.Equal(t, "Friday", tl.Buckets[0].Label)
	assert.Equal(t, []string{"P-fri", "P-fri2"}, keys(&tl.Buckets[0]))
	assert.Equal(t, "Saturday", tl.Buckets[1].Label)
}

func TestBucketTimeline_OverdueQueryHasNoOverdueBucket(t *testing.T) {
	issues := []jira.Issue{issue("P-1", due(-40)), issue("P-2", due(-2))}
	tl := BucketTimeline(issues, entities.Overdue, now)

	assert.Nil(t, tl.Bucket(BucketOverdue))
	require.Len(t, tl.Buckets, 2)
	assert.Equal(t, "September 2026", tl.Buckets[0].Label)
	assert.Equal(t, "October 2026", tl.Buckets[1].Label)
	assert.Equal(t, 2, tl.Overdue)
}

func TestTimelineQuery(t *testing.T) {
	q := TimelineQuery("PROJ", ParseTimeline("what's due next week for bugs assigned to alice"))
	assert.Equal(t,
		`project = "PROJ" AND duedate >= startOfWeek(1w) AND duedate <= endOfWeek(1w) AND assignee = "Alice" AND issuetype = "Bug" ORDER BY duedate ASC`,
		q)

	q = TimelineQuery("PROJ", ParseTimeline("show the timeline"))
	assert.True(t, strings.HasPrefix(q, `project = "PROJ" AND duedate >= startOfDay()`), q)

	q = TimelineQuery("PROJ", ParseTimeline("what is overdue"))
	assert.Contains(t, q, "duedate < startOfDay()")
}

// =============================================================================
// Workload
// =============================================================================

func tasksFor(name string, n int) []jira.Issue {
	out := make([]jira.Issue, 0, n)
	for i := range n {
		out = append(out, issue(fmt.Sprintf("%s-%d", strings.ToUpper(name), i), assignee(name)))
	}
	return out
}

func TestAnalyzeWorkload_HighlyUnbalanced(t *testing.T) {
	var issues []jira.Issue
	issues = append(issues, tasksFor("ann", 10)...)
	issues = append(issues, tasksFor("bob", 10)...)
	issues = append(issues, tasksFor("cat", 1)...)
	issues = append(issues, tasksFor("dan", 1)...)
	issues = append(issues, issue("U-1"), issue("U-2"))

	w := AnalyzeWorkload(issues, now)

	assert.InDelta(t, 5.5, w.Mean, 1e-9)
	assert.Equal(t, 9, w.Gap)
	assert.Equal(t, HighlyUnbalanced, w.Distribution)
	assert.ElementsMatch(t, []string{"ann", "bob"}, w.Overloaded)
	assert.ElementsMatch(t, []string{"cat", "dan"}, w.Underloaded)
	assert.Equal(t, 24, w.Total)
	assert.Equal(t, 2, w.Unassigned.Tasks)
	assert.Len(t, w.Assignees, 4)
	assert.Equal(t, 10, w.Assignees[0].Tasks)
}

func TestAnalyzeWorkload_Distribution(t *testing.T) {
	var issues []jira.Issue
	issues = append(issues, tasksFor("ann", 4)...)
	issues = append(issues, tasksFor("bob", 2)...)
	w := AnalyzeWorkload(issues, now)
	// mean 3, gap 2: above half the mean, below the mean.
	assert.Equal(t, SomewhatUnbalanced, w.Distribution)
	assert.Empty(t, w.Overloaded)

	w = AnalyzeWorkload(append(tasksFor("ann", 3), tasksFor("bob", 3)...), now)
	assert.Equal(t, Balanced, w.Distribution)
	assert.Zero(t, w.Gap)
}

func TestAnalyzeWorkload_PerAssigneeCounts(t *testing.T) {
	issues := []jira.Issue{
		issue("A-1", assignee("ann"), priority("Highest"), due(-1)),
		issue("A-2", assignee("ann"), priority("High"), due(3)),
		issue("A-3", assignee("ann"), priority("Low"), due(7)),
		issue("A-4", assignee("ann"), due(8)),
		issue("A-5", assignee("ann"), due(-5), status("Done", "done")),
	}
	w := AnalyzeWorkload(issues, now)
	require.Len(t, w.Assignees, 1)
	a := w.Assignees[0]
	assert.Equal(t, 5, a.Tasks)
	assert.Equal(t, 2, a.HighPriority)
	assert.Equal(t, 1, a.Overdue)
	assert.Equal(t, 2, a.DueSoon)
}

func TestAnalyzeWorkload_OnlyUnassigned(t *testing.T) {
	w := AnalyzeWorkload([]jira.Issue{issue("U-1")}, now)
	assert.Equal(t, Balanced, w.Distribution)
	assert.Empty(t, w.Assignees)
	assert.Equal(t, 1, w.Unassigned.Tasks)
}

// =============================================================================
// Comparison
// =============================================================================

func TestComparisonKeys(t *testing.T) {
	a, b, ok := ComparisonKeys("compare PROJ-1 and top-5 and PROJ-3")
	require.True(t, ok)
	assert.Equal(t, "PROJ-1", a)
	assert.Equal(t, "PROJ-3", b)

	_, _, ok = ComparisonKeys("PROJ-1 vs PROJ-1")
	assert.False(t, ok, "one distinct key is not a comparison")

	_, _, ok = ComparisonKeys("show PROJ-1 and PROJ-2")
	assert.False(t, ok)
}

func TestCompareIssues(t *testing.T) {
	left := issue("PROJ-1", status("In Progress", "indeterminate"), assignee("Ann"), priority("High"), issueType("Bug"), due(3))
	left.Fields.Labels = []string{"backend", "urgent"}
	left.Fields.Comment = &jira.CommentPage{Total: 4}
	left.Fields.Created = jira.Time{Time: now.AddDate(0, 0, -10)}

	right := issue("PROJ-2", status("In Progress", "indeterminate"), assignee("Bob"), priority("High"), issueType("Story"), due(1))
	right.Fields.Labels = []string{"backend"}
	right.Fields.Comment = &jira.CommentPage{Total: 1}
	right.Fields.Created = jira.Time{Time: now.AddDate(0, 0, -2)}

	c := CompareIssues(&left, &right)

	diffs := make(map[string]Difference)
	for _, d := range c.Differences {
		diffs[d.Field] = d
	}
	sims := make(map[string]string)
	for _, s := range c.Similarities {
		sims[s.Field] = s.Value
	}

	assert.Equal(t, "In Progress", sims["Status"])
	assert.Equal(t, "High", sims["Priority"])
	assert.Equal(t, "None", sims["Components"])
	assert.Equal(t, "Ann", diffs["Assignee"].Left)
	assert.Equal(t, "Bob", diffs["Assignee"].Right)
	assert.Equal(t, "PROJ-2 is due earlier", diffs["Due date"].Note)
	assert.Equal(t, "only PROJ-1: urgent", diffs["Labels"].Note)
	assert.Equal(t, "PROJ-1 has 3 more comments", diffs["Comments"].Note)
	assert.Equal(t, "PROJ-1 was created earlier", diffs["Created"].Note)
	assert.Equal(t, "None", sims["Updated"])
}

// =============================================================================
// Issue types
// =============================================================================

func typedIssues(counts map[string]int) []jira.Issue {
	var out []jira.Issue
	for _, name := range []string{"Bug", "Task", "Story", "Epic"} {
		for i := range counts[name] {
			st := status("To Do", "new")
			if i == 0 {
				st = status("Done", "done")
			}
			out = append(out, issue(fmt.Sprintf("%s-%d", name, i), issueType(name), st))
		}
	}
	return out
}

func TestCountIssueTypes_UnknownTypeListsExisting(t *testing.T) {
	r := CountIssueTypes(typedIssues(map[string]int{"Bug": 5, "Task": 3}), "how many stories are there")

	assert.Equal(t, "Story", r.Asked)
	assert.False(t, r.AskedFound)
	assert.Zero(t, r.AskedCount.Total)
	require.Len(t, r.Types, 2)
	assert.Equal(t, TypeCount{Name: "Bug", Total: 5, Open: 4, Percent: 63}, r.Types[0])
	assert.Equal(t, TypeCount{Name: "Task", Total: 3, Open: 2, Percent: 38}, r.Types[1])
}

func TestCountIssueTypes_AskedType(t *testing.T) {
	r := CountIssueTypes(typedIssues(map[string]int{"Bug": 5, "Task": 3}), "How many tasks do we have?")
	assert.True(t, r.AskedFound)
	assert.Equal(t, 3, r.AskedCount.Total)
	assert.Equal(t, 38, r.AskedCount.Percent)
}

func TestCountIssueTypes_Breakdown(t *testing.T) {
	r := CountIssueTypes(typedIssues(map[string]int{"Bug": 1, "Epic": 1}), "show issue types")
	assert.Empty(t, r.Asked)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, "Bug", r.Types[0].Name, "ties sort by name")
}

func TestAskedIssueType(t *testing.T) {
	cases := map[string]string{
		"how many bugs":                "Bug",
		"number of open user stories":  "Story",
		"how many sub-tasks are there": "Sub-task",
		"count of epics":               "Epic",
		"show me the bugs":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, AskedIssueType(in), in)
	}
}

// =============================================================================
// Service
// =============================================================================

type fakeSearcher struct {
	mu       sync.Mutex
	result   *jira.SearchResult
	counts   map[string]int
	issues   map[string]*jira.Issue
	err      error
	searches []string
}

func (f *fakeSearcher) Search(_ context.Context, q string, _ int, _ []string) (*jira.SearchResult, error) {
	f.mu.Lock()
	f.searches = append(f.searches, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSearcher) SearchPage(_ context.Context, q string, startAt, maxResults int, _ []string) (*jira.SearchResult, error) {
	f.mu.Lock()
	f.searches = append(f.searches, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	lo := min(startAt, len(f.result.Issues))
	hi := min(lo+maxResults, len(f.result.Issues))
	return &jira.SearchResult{StartAt: startAt, MaxResults: maxResults, Total: f.result.Total, Issues: f.result.Issues[lo:hi]}, nil
}

func (f *fakeSearcher) Count(_ context.Context, q string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[q], nil
}

func (f *fakeSearcher) GetIssue(_ context.Context, key string, _ []string) (*jira.Issue, error) {
	if i, ok := f.issues[key]; ok {
		return i, nil
	}
	return nil, jira.ErrNotFound
}

func newService(t *testing.T, f *fakeSearcher) *Service {
	t.Helper()
	s, err := NewService(f, "PROJ", WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return s
}

func TestService_ProjectStatus(t *testing.T) {
	p := `project = "PROJ"`
	f := &fakeSearcher{counts: map[string]int{
		p: 40,
		p + ` AND statusCategory != "Done"`:                                     30,
		p + ` AND statusCategory = "In Progress"`:                               12,
		p + ` AND statusCategory = "Done"`:                                      10,
		p + ` AND priority in ("Highest", "High") AND statusCategory != "Done"`: 5,
		p + ` AND duedate < startOfDay() AND statusCategory != "Done"`:          3,
		p + ` AND assignee is EMPTY AND statusCategory != "Done"`:               2,
	}}
	r, err := newService(t, f).ProjectStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Total: 40, Open: 30, InProgress: 12, Done: 10, HighPriority: 5, Overdue: 3, Unassigned: 2}, r.Counts)
	assert.InDelta(t, 25.0, r.CompletionRate, 1e-9)
}

func TestService_ProjectStatusFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := newService(t, &fakeSearcher{err: boom}).ProjectStatus(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestService_Timeline(t *testing.T) {
	f := &fakeSearcher{result: &jira.SearchResult{Total: 2, Issues: []jira.Issue{issue("P-1", due(2)), issue("P-2", due(5))}}}
	r, err := newService(t, f).Timeline(context.Background(), "upcoming deadlines", session.Medium)
	require.NoError(t, err)
	assert.Equal(t, entities.Upcoming, r.Params.Kind)
	assert.Len(t, r.Buckets, 2)
	assert.Equal(t, r.Query, f.searches[0])
}

func TestService_Workload(t *testing.T) {
	f := &fakeSearcher{result: &jira.SearchResult{Total: 3, Issues: tasksFor("ann", 3)}}
	r, err := newService(t, f).Workload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Balanced, r.Distribution)
	assert.Contains(t, f.searches[0], `ORDER BY assignee ASC`)
}

func TestService_Compare(t *testing.T) {
	a, b := issue("PROJ-1"), issue("PROJ-2")
	f := &fakeSearcher{issues: map[string]*jira.Issue{"PROJ-1": &a, "PROJ-2": &b}}
	s := newService(t, f)

	c, err := s.Compare(context.Background(), "PROJ-1", "PROJ-2")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-1", c.LeftKey)

	_, err = s.Compare(context.Background(), "PROJ-1", "PROJ-9")
	assert.ErrorIs(t, err, jira.ErrNotFound)
}

func TestService_IssueTypes(t *testing.T) {
	f := &fakeSearcher{result: &jira.SearchResult{Total: 500, Issues: typedIssues(map[string]int{"Bug": 2})}}
	r, err := newService(t, f).IssueTypes(context.Background(), "how many bugs")
	require.NoError(t, err)
	assert.True(t, r.Sampled, "a short page leaves the breakdown incomplete")
	assert.True(t, r.AskedFound)
}

func TestService_IssueTypesPagesThroughProject(t *testing.T) {
	issues := typedIssues(map[string]int{"Bug": 30, "Story": 120, "Task": 100})
	f := &fakeSearcher{result: &jira.SearchResult{Total: len(issues), Issues: issues}}

	r, err := newService(t, f).IssueTypes(context.Background(), "how many bugs")
	require.NoError(t, err)

	assert.Len(t, f.searches, 3)
	assert.False(t, r.Sampled)
	assert.Equal(t, 250, r.Total)
	require.True(t, r.AskedFound)
	assert.Equal(t, 30, r.AskedCount.Total)
	assert.Equal(t, 12, r.AskedCount.Percent)
	require.NotEmpty(t, r.Types)
	assert.Equal(t, TypeCount{Name: "Story", Total: 120, Open: 119, Percent: 48}, r.Types[0])
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, "PROJ")
	assert.Error(t, err)
	_, err = NewService(&fakeSearcher{}, "")
	assert.Error(t, err)
}
