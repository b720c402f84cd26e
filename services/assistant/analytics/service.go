// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics implements the aggregate issue-tracker answers:
// timelines, workload distribution, issue comparison, issue-type counts and
// the project status report.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/projectassist/services/assistant/clients/jira"
	"github.com/AleutianAI/projectassist/services/assistant/intent"
	"github.com/AleutianAI/projectassist/services/assistant/jql"
	"github.com/AleutianAI/projectassist/services/assistant/querygen"
	"github.com/AleutianAI/projectassist/services/assistant/session"
)

const tracerName = "projectassist.analytics"

// compareFields are fetched for each side of a comparison.
var compareFields = []string{
	"summary", "status", "assignee", "priority", "issuetype", "duedate",
	"labels", "components", "comment", "created", "updated",
}

// IssueSearcher is the issue-tracker surface the handlers need.
// *jira.Client satisfies it.
type IssueSearcher interface {
	Search(ctx context.Context, jql string, maxResults int, fields []string) (*jira.SearchResult, error)
	SearchPage(ctx context.Context, jql string, startAt, maxResults int, fields []string) (*jira.SearchResult, error)
	Count(ctx context.Context, jql string) (int, error)
	GetIssue(ctx context.Context, key string, fields []string) (*jira.Issue, error)
}

// Service runs the aggregate handlers against one project.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	searcher   IssueSearcher
	projectKey string
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source used for due-date arithmetic.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service.
func NewService(searcher IssueSearcher, projectKey string, opts ...Option) (*Service, error) {
	if searcher == nil {
		return nil, errors.New("analytics: searcher must not be nil")
	}
	if projectKey == "" {
		return nil, errors.New("analytics: project key must not be empty")
	}
	s := &Service{
		searcher:   searcher,
		projectKey: projectKey,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TimelineReport is a bucketed timeline and the query that produced it.
type TimelineReport struct {
	*Timeline
	Params  TimelineParams
	Query   string
	Matched int
}

// Timeline answers a due-date question.
func (s *Service) Timeline(ctx context.Context, utterance string, v session.Verbosity) (*TimelineReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analytics.Service.Timeline")
	defer span.End()

	params := ParseTimeline(utterance)
	query := TimelineQuery(s.projectKey, params)
	span.SetAttributes(attribute.String("timeframe", string(params.Kind)))

	opts := querygen.SearchOptionsFor(intent.Timeline, v)
	res, err := s.searcher.Search(ctx, query, opts.MaxResults, opts.Fields)
	if err != nil {
		return nil, s.fail(span, "timeline search", err)
	}
	return &TimelineReport{
		Timeline: BucketTimeline(res.Issues, params.Kind, s.now()),
		Params:   params,
		Query:    query,
		Matched:  res.Total,
	}, nil
}

// WorkloadReport is a workload analysis and its query.
type WorkloadReport struct {
	*Workload
	Query   string
	Matched int
}

// Workload analyzes how open work is spread across assignees.
func (s *Service) Workload(ctx context.Context) (*WorkloadReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analytics.Service.Workload")
	defer span.End()

	query := jql.MustTemplate(jql.OpenByOwner, s.projectKey)
	opts := querygen.SearchOptionsFor(intent.Workload, session.DefaultVerbosity)
	res, err := s.searcher.Search(ctx, query, opts.MaxResults, opts.Fields)
	if err != nil {
		return nil, s.fail(span, "workload search", err)
	}
	w := AnalyzeWorkload(res.Issues, s.now())
	span.SetAttributes(
		attribute.Int("assignees", len(w.Assignees)),
		attribute.String("distribution", string(w.Distribution)))
	return &WorkloadReport{Workload: w, Query: query, Matched: res.Total}, nil
}

// Compare fetches two issues concurrently and diffs them.
func (s *Service) Compare(ctx context.Context, leftKey, rightKey string) (*Comparison, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analytics.Service.Compare")
	defer span.End()
	span.SetAttributes(attribute.String("left", leftKey), attribute.String("right", rightKey))

	var left, right *jira.Issue
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		left, err = s.searcher.GetIssue(gctx, leftKey, compareFields)
		return err
	})
	g.Go(func() error {
		var err error
		right, err = s.searcher.GetIssue(gctx, rightKey, compareFields)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(span, "compare fetch", err)
	}
	return CompareIssues(left, right), nil
}

// IssueTypesReport is an issue-type breakdown and its query.
type IssueTypesReport struct {
	*IssueTypeReport
	Query string

	// Sampled is true when fewer issues were fetched than the project holds,
	// either because a page came back short or maxIssueTypeScan was reached.
	Sampled bool
}

// maxIssueTypeScan bounds how many issues IssueTypes pages through.
const maxIssueTypeScan = 10000

// IssueTypes counts every issue of the project by type.
//
// Description:
//
//	Pages through the project with startAt until the server's Total is
//	reached, so counts and percentages cover the whole project rather
//	than the first page.
func (s *Service) IssueTypes(ctx context.Context, utterance string) (*IssueTypesReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analytics.Service.IssueTypes")
	defer span.End()

	query := jql.MustTemplate(jql.IssueTypes, s.projectKey)
	opts := querygen.SearchOptionsFor(intent.IssueTypes, session.DefaultVerbosity)
	fields := []string{"issuetype", "status"}

	var issues []jira.Issue
	total := 0
	for {
		res, err := s.searcher.SearchPage(ctx, query, len(issues), opts.MaxResults, fields)
		if err != nil {
			return nil, s.fail(span, "issue type search", err)
		}
		total = res.Total
		issues = append(issues, res.Issues...)
		if len(res.Issues) == 0 || len(issues) >= total || len(issues) >= maxIssueTypeScan {
			break
		}
	}
	span.SetAttributes(
		attribute.Int("issues.total", total),
		attribute.Int("issues.fetched", len(issues)),
	)
	return &IssueTypesReport{
		IssueTypeReport: CountIssueTypes(issues, utterance),
		Query:           query,
		Sampled:         total > len(issues),
	}, nil
}

// StatusCounts are the seven headline counts of a project.
type StatusCounts struct {
	Total        int
	Open         int
	InProgress   int
	Done         int
	HighPriority int
	Overdue      int
	Unassigned   int
}

// StatusReport is the project status summary.
type StatusReport struct {
	ProjectKey     string
	Counts         StatusCounts
	CompletionRate float64
}

type countQuery struct {
	query string
	dst   *int
}

// statusQueries pairs each count with its query.
func statusQueries(projectKey string, c *StatusCounts) []countQuery {
	p := jql.ProjectClause(projectKey)
	return []countQuery{
		{p, &c.Total},
		{p + ` AND statusCategory != "Done"`, &c.Open},
		{p + ` AND statusCategory = "In Progress"`, &c.InProgress},
		{p + ` AND statusCategory = "Done"`, &c.Done},
		{p + ` AND priority in ("Highest", "High") AND statusCategory != "Done"`, &c.HighPriority},
		{p + ` AND duedate < startOfDay() AND statusCategory != "Done"`, &c.Overdue},
		{p + ` AND assignee is EMPTY AND statusCategory != "Done"`, &c.Unassigned},
	}
}

// ProjectStatus runs the seven count queries concurrently and joins them.
// Any failed count fails the report.
func (s *Service) ProjectStatus(ctx context.Context) (*StatusReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analytics.Service.ProjectStatus")
	defer span.End()

	r := &StatusReport{ProjectKey: s.projectKey}
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range statusQueries(s.projectKey, &r.Counts) {
		g.Go(func() error {
			n, err := s.searcher.Count(gctx, q.query)
			if err != nil {
				return err
			}
			*q.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.fail(span, "status counts", err)
	}
	if r.Counts.Total > 0 {
		r.CompletionRate = float64(r.Counts.Done) * 100 / float64(r.Counts.Total)
	}
	span.SetAttributes(attribute.Int("total", r.Counts.Total))
	return r, nil
}

func (s *Service) fail(span trace.Span, what string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, what+" failed")
	s.logger.Warn("analytics "+what+" failed",
		slog.String("project", s.projectKey),
		slog.String("error", err.Error()))
	return fmt.Errorf("analytics: %s: %w", what, err)
}
