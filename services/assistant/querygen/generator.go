// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package querygen turns a classified utterance into a JQL query string.
package querygen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/entities"
	"github.com/AleutianAI/projectassist/services/assistant/intent"
	"github.com/AleutianAI/projectassist/services/assistant/jql"
	"github.com/AleutianAI/projectassist/services/assistant/oracle"
	"github.com/AleutianAI/projectassist/services/assistant/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "projectassist.querygen"

// DefaultOracleTimeout bounds each oracle call made by the generator.
const DefaultOracleTimeout = 15 * time.Second

// Tier names the stage that produced a query.
type Tier string

const (
	TierLiteral        Tier = "literal"
	TierIssueKey       Tier = "issue_key"
	TierIntentTemplate Tier = "intent_template"
	TierEntityTemplate Tier = "entity_template"
	TierAI             Tier = "ai"
	TierSimplifiedAI   Tier = "ai_simplified"
	TierStatic         Tier = "static"
)

// errUnsafeQuery marks oracle output that is still unscoped or limited
// after sanitizing.
var errUnsafeQuery = errors.New("generated query failed safety check")

var generationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "projectassist",
		Subsystem: "querygen",
		Name:      "generations_total",
		Help:      "Generated queries by producing tier.",
	},
	[]string{"tier"},
)

// Result is a generated query and where it came from.
type Result struct {
	Query      string           `json:"query"`
	Tier       Tier             `json:"tier"`
	Template   jql.TemplateName `json:"template,omitempty"`
	UsedOracle bool             `json:"used_oracle"`
}

// intentTemplates are intents whose query is never ambiguous.
var intentTemplates = map[intent.Intent]jql.TemplateName{
	intent.Conversation:  jql.RecentUpdates,
	intent.Greeting:      jql.RecentUpdates,
	intent.Sprint:        jql.CurrentSprint,
	intent.ProjectStatus: jql.ProjectStatus,
	intent.IssueTypes:    jql.IssueTypes,
}

// staticTemplates cover every remaining intent for the last tier.
var staticTemplates = map[intent.Intent]jql.TemplateName{
	intent.Blockers:      jql.Blockers,
	intent.Timeline:      jql.Upcoming,
	intent.AssignedTasks: jql.MyTasks,
	intent.TaskList:      jql.OpenTasks,
	intent.Workload:      jql.OpenByOwner,
}

// Generator produces safe JQL for one project.
//
// Description:
//
//	Seven tiers, each tried only when the previous yields nothing usable:
//	literal phrasing, issue key, intent template, entity template, oracle
//	with the full rule prompt, oracle with a reduced prompt, static
//	template. Oracle output is always sanitized and rejected unless it is
//	scoped and free of LIMIT. Generate never fails.
//
// Thread Safety: Generator is safe for concurrent use.
type Generator struct {
	projectKey string
	keys       entities.KeyMatcher
	oracle     oracle.Oracle
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithOracleTimeout sets the per-call oracle timeout.
func WithOracleTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a Generator.
//
// Inputs:
//   - projectKey: Issue-tracker project every query is scoped to. Required.
//   - o: Completion oracle. Nil means oracle.Disabled.
//
// Outputs:
//   - *Generator: The generator.
//   - error: Non-nil if projectKey is empty.
func NewGenerator(projectKey string, o oracle.Oracle, opts ...Option) (*Generator, error) {
	projectKey = strings.TrimSpace(projectKey)
	if projectKey == "" {
		return nil, fmt.Errorf("NewGenerator: project key must not be empty")
	}
	if o == nil {
		o = oracle.Disabled{}
	}
	g := &Generator{
		projectKey: projectKey,
		keys:       entities.NewKeyMatcher(projectKey),
		oracle:     o,
		timeout:    DefaultOracleTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ProjectKey is the project queries are scoped to.
func (g *Generator) ProjectKey() string { return g.projectKey }

// Generate builds the query for a classified utterance.
//
// Inputs:
//   - ctx: Context for oracle calls and tracing.
//   - utterance: Raw user text.
//   - in: The classified intent.
//   - prefs: Session preferences; PreferredSort replaces the ordering from
//     the intent template tier onward. May be nil.
//
// Outputs:
//   - Result: Always carries a project- or key-scoped query.
func (g *Generator) Generate(ctx context.Context, utterance string, in intent.Intent, prefs *session.Preferences) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "querygen.Generator.Generate",
		trace.WithAttributes(attribute.String("intent", string(in))),
	)
	defer span.End()

	res := g.generate(ctx, utterance, in, prefs)

	span.SetAttributes(
		attribute.String("tier", string(res.Tier)),
		attribute.Bool("used_oracle", res.UsedOracle),
	)
	generationsTotal.WithLabelValues(string(res.Tier)).Inc()
	g.logger.Debug("query generated",
		slog.String("intent", string(in)),
		slog.String("tier", string(res.Tier)),
		slog.String("query", res.Query),
	)
	return res
}

func (g *Generator) generate(ctx context.Context, utterance string, in intent.Intent, prefs *session.Preferences) Result {
	if q, name, ok := jql.LiteralTemplate(utterance, g.projectKey); ok {
		return Result{Query: q, Tier: TierLiteral, Template: name}
	}
	if key := g.keys.First(utterance); key != "" {
		return Result{Query: jql.KeyQuery(key), Tier: TierIssueKey}
	}

	var sort string
	if prefs != nil {
		sort = prefs.PreferredSort
	}
	withSort := func(r Result) Result {
		r.Query = jql.SetOrderBy(r.Query, sort)
		return r
	}

	if name, ok := intentTemplates[in]; ok {
		return withSort(Result{Query: jql.MustTemplate(name, g.projectKey), Tier: TierIntentTemplate, Template: name})
	}
	if q, ok := g.entityTemplate(utterance, in); ok {
		return withSort(Result{Query: q, Tier: TierEntityTemplate})
	}

	q, err := g.fromOracle(ctx, fullPrompt(g.projectKey), utterance, in, 0.1)
	if err == nil {
		return withSort(Result{Query: q, Tier: TierAI, UsedOracle: true})
	}
	g.logger.Debug("oracle query generation failed; trying reduced prompt",
		slog.String("error", err.Error()))
	trace.SpanFromContext(ctx).RecordError(err)

	q, err = g.fromOracle(ctx, simplifiedPrompt(g.projectKey), utterance, in, 0)
	if err == nil {
		return withSort(Result{Query: q, Tier: TierSimplifiedAI, UsedOracle: true})
	}
	g.logger.Debug("reduced oracle query generation failed; using static template",
		slog.String("error", err.Error()))

	name := StaticTemplate(in)
	return withSort(Result{Query: jql.MustTemplate(name, g.projectKey), Tier: TierStatic, Template: name})
}

// entityTemplate builds a parameterized query from extracted entities.
func (g *Generator) entityTemplate(utterance string, in intent.Intent) (string, bool) {
	switch in {
	case intent.AssignedTasks:
		if a := entities.Assignee(utterance); a != "" {
			return jql.AssigneeQuery(g.projectKey, a), true
		}
	case intent.TaskList:
		if p := entities.Priority(utterance); p != "" {
			return jql.PriorityQuery(g.projectKey, p), true
		}
		if s := entities.Status(utterance); s != "" {
			return jql.StatusQuery(g.projectKey, s), true
		}
	}
	return "", false
}

// fromOracle asks the oracle for a query and sanitizes the answer.
func (g *Generator) fromOracle(ctx context.Context, system, utterance string, in intent.Intent, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	answer, err := g.oracle.Complete(ctx, system, userPrompt(utterance, in), temperature)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(oracle.StripCodeFences(answer)) == "" {
		return "", oracle.ErrEmptyAnswer
	}
	q := jql.Sanitize(answer, g.projectKey)
	if !jql.HasScope(q) || jql.ContainsBareLimit(q) {
		return "", fmt.Errorf("%w: %q", errUnsafeQuery, q)
	}
	return q, nil
}

// StaticTemplate is the template used when every other tier failed. It is
// also the simplified re-fetch template after a failed search.
func StaticTemplate(in intent.Intent) jql.TemplateName {
	if name, ok := intentTemplates[in]; ok {
		return name
	}
	if name, ok := staticTemplates[in]; ok {
		return name
	}
	return jql.RecentUpdates
}
