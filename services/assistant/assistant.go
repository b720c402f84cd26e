// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant answers natural-language project questions.
//
// An utterance is routed to the code host, the documentation index or the
// issue tracker. Issue-tracker utterances are classified into an intent,
// answered either by a specialized aggregation handler or by a generated
// query, rendered as markdown and recorded in session memory.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/projectassist/services/assistant/analytics"
	"github.com/AleutianAI/projectassist/services/assistant/docs"
	"github.com/AleutianAI/projectassist/services/assistant/domain"
	"github.com/AleutianAI/projectassist/services/assistant/entities"
	"github.com/AleutianAI/projectassist/services/assistant/intent"
	"github.com/AleutianAI/projectassist/services/assistant/jql"
	"github.com/AleutianAI/projectassist/services/assistant/oracle"
	"github.com/AleutianAI/projectassist/services/assistant/querygen"
	"github.com/AleutianAI/projectassist/services/assistant/session"
	"github.com/AleutianAI/projectassist/services/assistant/usage"
	"github.com/AleutianAI/projectassist/services/llm"
)

const tracerName = "projectassist.assistant"

// IntentComparison is recorded for two-issue comparisons, which bypass the
// classifier.
const IntentComparison = "COMPARISON"

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "projectassist",
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Answered utterances by domain and outcome.",
		},
		[]string{"domain", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "projectassist",
			Subsystem: "assistant",
			Name:      "request_duration_seconds",
			Help:      "End-to-end answer latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

// IssueTracker is the issue-tracker surface the assistant needs.
// *jira.Client satisfies it.
type IssueTracker interface {
	analytics.IssueSearcher
	BrowseURL(key string) string
}

// Response is the answer to one utterance.
type Response struct {
	SessionID string        `json:"session_id"`
	Answer    string        `json:"answer"`
	Domain    domain.Domain `json:"domain"`
	Intent    string        `json:"intent"`

	// Tier is the classifier tier for issue-tracker intents.
	Tier intent.Tier `json:"tier,omitempty"`

	Query      string        `json:"query,omitempty"`
	QueryTier  querygen.Tier `json:"query_tier,omitempty"`
	Results    int           `json:"results"`
	UsedOracle bool          `json:"used_oracle"`
	Error      ErrorKind     `json:"error,omitempty"`
	Latency    time.Duration `json:"-"`
	LatencyMS  int64         `json:"latency_ms"`

	// Resolved is the utterance after pronoun resolution, when it changed.
	Resolved string `json:"resolved_utterance,omitempty"`
}

// answer accumulates the pieces of a Response while a request is handled.
type answer struct {
	markdown   string
	domain     domain.Domain
	intent     string
	tier       intent.Tier
	query      string
	queryTier  querygen.Tier
	results    int
	usedOracle bool

	// prose allows the oracle rewrite of markdown.
	prose bool
}

// Deps are the required collaborators of an Assistant.
type Deps struct {
	Tracker    IssueTracker
	Classifier *intent.Classifier
	Generator  *querygen.Generator

	// Store defaults to a new in-memory store.
	Store *session.Store

	// Router defaults to a router gated on the documentation index.
	Router *domain.Router

	// Oracle is used for document answers and prose. Nil means disabled.
	Oracle oracle.Oracle
}

// Assistant answers utterances.
//
// Thread Safety: Safe for concurrent use.
type Assistant struct {
	projectKey    string
	keys          entities.KeyMatcher
	tracker       IssueTracker
	router        *domain.Router
	classifier    *intent.Classifier
	generator     *querygen.Generator
	analytics     *analytics.Service
	store         *session.Store
	oracle        oracle.Oracle
	prose         *ProseWriter
	proseEnabled  bool
	format        Formatter
	code          CodeHost
	defaultRepo   string
	docs          DocsSource
	pages         PageResolver
	docRoots      []string
	usage         UsageSink
	oracleTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// UsageSink receives one event per answered utterance.
// *usage.InfluxSink satisfies it.
type UsageSink interface {
	Record(ev usage.Event)
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithUsageSink exports every answered utterance to sink.
func WithUsageSink(sink UsageSink) Option {
	return func(a *Assistant) { a.usage = sink }
}

// WithCodeHost enables code-host questions. defaultRepo answers questions
// that name no repository.
func WithCodeHost(ch CodeHost, defaultRepo string) Option {
	return func(a *Assistant) {
		a.code = ch
		a.defaultRepo = strings.TrimSpace(defaultRepo)
	}
}

// WithDocs enables documentation questions. resolver may be nil; roots are
// the configured root pages that a refresh recrawls.
func WithDocs(src DocsSource, resolver PageResolver, roots ...string) Option {
	return func(a *Assistant) {
		a.docs = src
		a.pages = resolver
		a.docRoots = append([]string(nil), roots...)
	}
}

// WithProse enables the oracle rewrite of markdown answers.
func WithProse(enabled bool) Option {
	return func(a *Assistant) { a.proseEnabled = enabled }
}

// WithOracleTimeout bounds the assistant's own oracle calls.
func WithOracleTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.oracleTimeout = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Assistant.
//
// Outputs:
//   - *Assistant: The assistant.
//   - error: Non-nil if a required dependency is missing.
func New(deps Deps, opts ...Option) (*Assistant, error) {
	if deps.Tracker == nil {
		return nil, errors.New("assistant: tracker must not be nil")
	}
	if deps.Classifier == nil {
		return nil, errors.New("assistant: classifier must not be nil")
	}
	if deps.Generator == nil {
		return nil, errors.New("assistant: generator must not be nil")
	}
	a := &Assistant{
		projectKey:    deps.Generator.ProjectKey(),
		keys:          entities.NewKeyMatcher(deps.Generator.ProjectKey()),
		tracker:       deps.Tracker,
		router:        deps.Router,
		classifier:    deps.Classifier,
		generator:     deps.Generator,
		store:         deps.Store,
		oracle:        deps.Oracle,
		oracleTimeout: querygen.DefaultOracleTimeout,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.oracle == nil {
		a.oracle = oracle.Disabled{}
	}
	if a.store == nil {
		a.store = session.NewStore(session.WithClock(a.now), session.WithLogger(a.logger))
	}
	if a.router == nil {
		ropts := []domain.Option{domain.WithLogger(a.logger)}
		if a.docs != nil {
			ropts = append(ropts, domain.WithIndex(a.docs.Index()))
		}
		a.router = domain.NewRouter(ropts...)
	}
	svc, err := analytics.NewService(a.tracker, a.projectKey,
		analytics.WithClock(a.now), analytics.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}
	a.analytics = svc
	if a.proseEnabled {
		a.prose = NewProseWriter(a.oracle, a.oracleTimeout, a.logger)
	}
	a.format = Formatter{browse: a.tracker.BrowseURL, loc: time.Local}
	return a, nil
}

// Store is the session store.
func (a *Assistant) Store() *session.Store { return a.store }

// ProjectKey is the issue-tracker project.
func (a *Assistant) ProjectKey() string { return a.projectKey }

// DocsIndex is the documentation index, or nil when documentation is not
// enabled.
func (a *Assistant) DocsIndex() *docs.Index {
	if a.docs == nil {
		return nil
	}
	return a.docs.Index()
}

// Ask answers one utterance for a session.
//
// Description:
//
//	Issue keys of the project are upper-cased ("proj-12" becomes PROJ-12)
//	and pronoun references are resolved against the session's last issue
//	key.
//	A comparison of two issue keys is handled first, then the domain router
//	picks the code host or documentation, and everything else is
//	classified and answered from the issue tracker. Failures are converted
//	to a user-facing message; an issue-tracker failure still attempts one
//	broad fetch of recent updates. Every answered utterance is recorded in
//	session memory.
//
// Outputs:
//   - *Response: Never nil.
//
// Thread Safety: Safe for concurrent use.
func (a *Assistant) Ask(ctx context.Context, sessionID, utterance string) *Response {
	start := a.now()
	id := strings.TrimSpace(sessionID)
	if id == "" {
		id = session.DefaultID
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "assistant.Assistant.Ask",
		trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return &Response{
			SessionID: id,
			Answer:    "Ask me about the project's issues, code or documentation.",
			Error:     KindMissingParam,
		}
	}

	utterance = a.keys.Canonicalize(utterance)
	a.store.GetOrCreate(id)
	resolved := a.store.ResolveReferences(id, utterance)
	dc := a.store.DerivedContext(id)
	v := dc.Preferences.Verbosity
	if detected, ok := session.DetectVerbosity(utterance); ok {
		v = detected
	}

	ans := &answer{domain: domain.IssueTracker}
	err := a.answer(ctx, ans, resolved, &dc, v)

	resp := &Response{SessionID: id}
	if resolved != utterance {
		resp.Resolved = resolved
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		resp.Error = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(resp.Error))
		a.logger.Warn("request failed",
			slog.String("session_id", id),
			slog.String("domain", string(ans.domain)),
			slog.String("intent", ans.intent),
			slog.String("kind", string(resp.Error)),
			slog.String("error", llm.SafeLogString(err.Error())),
		)
		ans.markdown = userMessageFor(err)
		ans.results = 0
		if ans.domain == domain.IssueTracker && resp.Error != KindMissingParam && ctx.Err() == nil {
			if extra, n := a.broadFetch(ctx, v); n > 0 {
				ans.markdown += "\n\n" + extra
				ans.results = n
			}
		}
	} else if ans.prose && a.prose != nil {
		text, used := a.prose.Rewrite(ctx, utterance, ans.markdown, v)
		ans.markdown = text
		ans.usedOracle = ans.usedOracle || used
	}

	latency := a.now().Sub(start)
	resp.Answer = ans.markdown
	resp.Domain = ans.domain
	resp.Intent = ans.intent
	resp.Tier = ans.tier
	resp.Query = ans.query
	resp.QueryTier = ans.queryTier
	resp.Results = ans.results
	resp.UsedOracle = ans.usedOracle
	resp.Latency = latency
	resp.LatencyMS = latency.Milliseconds()

	recorded := ans.intent
	if err != nil {
		recorded = string(intent.Error)
	}
	a.store.RecordInteraction(id, session.Interaction{
		Query:      resolved,
		Intent:     recorded,
		Response:   resp.Answer,
		Latency:    latency,
		UsedOracle: resp.UsedOracle,
		HadResults: resp.Results > 0,
	})

	if a.usage != nil {
		kind := string(resp.Error)
		if kind == "" {
			kind = "ok"
		}
		a.usage.Record(usage.Event{
			Time:       start,
			Domain:     string(resp.Domain),
			Intent:     recorded,
			Tier:       string(resp.Tier),
			QueryTier:  string(resp.QueryTier),
			Outcome:    kind,
			Results:    resp.Results,
			Latency:    latency,
			UsedOracle: resp.UsedOracle,
		})
	}

	span.SetAttributes(
		attribute.String("domain", string(resp.Domain)),
		attribute.String("intent", resp.Intent),
		attribute.Int("results", resp.Results),
	)
	requestsTotal.WithLabelValues(string(resp.Domain), outcome).Inc()
	requestDuration.WithLabelValues(string(resp.Domain)).Observe(latency.Seconds())
	return resp
}

// answer fills ans. ans.domain and ans.intent are set before any fetch so a
// failure can still be attributed.
func (a *Assistant) answer(ctx context.Context, ans *answer, utterance string, dc *session.DerivedContext, v session.Verbosity) error {
	if left, right, ok := analytics.ComparisonKeys(utterance); ok {
		ans.intent = IntentComparison
		cmp, err := a.analytics.Compare(ctx, left, right)
		if err != nil {
			return err
		}
		ans.markdown = a.format.Comparison(cmp)
		ans.results = 2
		ans.prose = true
		return nil
	}

	if routed := a.router.Route(utterance); routed != nil {
		ans.domain = routed.Domain
		ans.intent = routed.Name
		switch routed.Domain {
		case domain.CodeHost:
			return a.answerCodeHost(ctx, ans, routed, v)
		case domain.Docs:
			return a.answerDocs(ctx, ans, utterance, routed)
		}
	}

	cls := a.classifier.Classify(ctx, utterance, dc)
	ans.intent = string(cls.Intent)
	ans.tier = cls.Tier
	ans.usedOracle = cls.UsedOracle
	return a.answerIssues(ctx, ans, utterance, cls.Intent, dc, v)
}

// answerIssues runs a specialized handler or the generated-query search.
func (a *Assistant) answerIssues(ctx context.Context, ans *answer, utterance string, in intent.Intent, dc *session.DerivedContext, v session.Verbosity) error {
	ans.prose = true
	switch in {
	case intent.Timeline:
		r, err := a.analytics.Timeline(ctx, utterance, v)
		if err != nil {
			return err
		}
		ans.query, ans.results = r.Query, r.Total
		ans.markdown = a.format.Timeline(r, v)
		return nil
	case intent.Workload:
		r, err := a.analytics.Workload(ctx)
		if err != nil {
			return err
		}
		ans.query, ans.results = r.Query, r.Total
		ans.markdown = a.format.Workload(r, v)
		return nil
	case intent.IssueTypes:
		r, err := a.analytics.IssueTypes(ctx, utterance)
		if err != nil {
			return err
		}
		ans.query, ans.results = r.Query, r.Total
		ans.markdown = a.format.IssueTypes(r)
		return nil
	case intent.ProjectStatus:
		if entities.FirstIssueKey(utterance) == "" {
			r, err := a.analytics.ProjectStatus(ctx)
			if err != nil {
				return err
			}
			ans.results = r.Counts.Total
			ans.markdown = a.format.Status(r, v)
			return nil
		}
	}
	return a.search(ctx, ans, utterance, in, dc, v)
}

// search generates a query and fetches it, re-fetching with the intent's
// static template when the generated query fails upstream.
func (a *Assistant) search(ctx context.Context, ans *answer, utterance string, in intent.Intent, dc *session.DerivedContext, v session.Verbosity) error {
	gen := a.generator.Generate(ctx, utterance, in, &dc.Preferences)
	ans.query = gen.Query
	ans.queryTier = gen.Tier
	ans.usedOracle = ans.usedOracle || gen.UsedOracle
	opts := querygen.SearchOptionsFor(in, v)

	if gen.Tier == querygen.TierIssueKey {
		return a.lookupIssue(ctx, ans, utterance, in, opts, v)
	}

	res, err := a.tracker.Search(ctx, gen.Query, opts.MaxResults, opts.Fields)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		fallback := jql.MustTemplate(querygen.StaticTemplate(in), a.projectKey)
		if fallback == gen.Query {
			return err
		}
		a.logger.Warn("search failed; re-fetching with static template",
			slog.String("intent", string(in)),
			slog.String("query", gen.Query),
			slog.String("error", llm.SafeLogString(err.Error())),
		)
		res, err = a.tracker.Search(ctx, fallback, opts.MaxResults, opts.Fields)
		if err != nil {
			return err
		}
		ans.query = fallback
		ans.queryTier = querygen.TierStatic
	}

	ans.results = len(res.Issues)
	ans.markdown = a.format.IssueList(listTitle(in), res.Issues, res.Total, v)
	switch in {
	case intent.Greeting:
		ans.markdown = fmt.Sprintf("Hi! Here is what changed in %s recently.\n\n%s", a.projectKey, ans.markdown)
	case intent.Conversation:
		ans.markdown = "Here is what has been happening in the project.\n\n" + ans.markdown
	}
	return nil
}

// lookupIssue answers an utterance that names an issue key.
func (a *Assistant) lookupIssue(ctx context.Context, ans *answer, utterance string, in intent.Intent, opts querygen.SearchOptions, v session.Verbosity) error {
	key := entities.FirstIssueKey(utterance)
	if in != intent.Comments {
		opts = querygen.SearchOptionsFor(intent.TaskDetails, v)
	}
	issue, err := a.tracker.GetIssue(ctx, key, opts.Fields)
	if err != nil {
		return err
	}
	ans.results = 1
	if in == intent.Comments {
		ans.markdown = a.format.Comments(issue, v)
		return nil
	}
	// Session memory only tracks the last key for details answers.
	ans.intent = string(intent.TaskDetails)
	ans.markdown = a.format.IssueDetails(issue, v)
	return nil
}

// broadFetch lists recent updates after a failed request. It returns the
// rendered list and its size, or zero when nothing could be fetched.
func (a *Assistant) broadFetch(ctx context.Context, v session.Verbosity) (string, int) {
	q := jql.MustTemplate(jql.RecentUpdates, a.projectKey)
	res, err := a.tracker.Search(ctx, q, querygen.ListCap, querygen.DefaultFields)
	if err != nil || len(res.Issues) == 0 {
		return "", 0
	}
	return "Here are the most recently updated issues instead:\n\n" +
		a.format.IssueList("Recent updates", res.Issues, res.Total, v), len(res.Issues)
}

func listTitle(in intent.Intent) string {
	switch in {
	case intent.TaskList:
		return "Tasks"
	case intent.AssignedTasks:
		return "Assigned tasks"
	case intent.Blockers:
		return "Blockers"
	case intent.Sprint:
		return "Current sprint"
	case intent.Comments:
		return "Recently discussed issues"
	case intent.Greeting, intent.Conversation:
		return "Recent updates"
	case intent.ProjectStatus:
		return "Project issues"
	}
	return "Matching issues"
}
